// Package validate performs structural and consistency checks on an
// authorization context before policy evaluation. Any error-severity issue
// forces the decision to deny regardless of matched rules.
package validate

import (
	"time"

	"custos/internal/authz/models"
)

// Mode selects how strictly tenant anchoring is enforced.
type Mode int

const (
	// ModeDecide is the enforcement path: a missing tenant anchor is an error.
	ModeDecide Mode = iota
	// ModeSimulate is the tooling path: a missing tenant anchor is flagged as
	// a warning so partially specified contexts can still be explored.
	ModeSimulate
)

// Validate checks the context against the structural invariants. The tenant
// fallback from the object is the caller's responsibility and must have been
// applied before this call.
func Validate(actx *models.AuthorizationContext, now time.Time, mode Mode) []models.ValidationIssue {
	var issues []models.ValidationIssue

	if actx.TenantRootID == "" {
		severity := models.SeverityError
		if mode == ModeSimulate {
			severity = models.SeverityWarning
		}
		issues = append(issues, models.ValidationIssue{
			Severity: severity,
			Message:  "tenant_root_id is required for all authorization contexts",
		})
	}

	if actx.ContainsPHI != nil && *actx.ContainsPHI {
		if actx.ConsentOK == nil {
			issues = append(issues, models.ValidationIssue{
				Severity: models.SeverityError,
				Message:  "consent_ok must be evaluated when contains_phi is true",
			})
		}
		if actx.Purpose == "" {
			issues = append(issues, models.ValidationIssue{
				Severity: models.SeverityError,
				Message:  "purpose is required for PHI access",
			})
		}
	}

	if actx.Purpose != "" && !actx.Purpose.IsValid() {
		issues = append(issues, models.ValidationIssue{
			Severity: models.SeverityError,
			Message:  "purpose is not a recognized value",
		})
	}

	if actx.BreakGlassActive != nil && *actx.BreakGlassActive {
		switch {
		case actx.BreakGlassExpiresAt == nil:
			issues = append(issues, models.ValidationIssue{
				Severity: models.SeverityError,
				Message:  "bg_expires_at is required when break-glass is active",
			})
		case !actx.BreakGlassExpiresAt.After(now):
			issues = append(issues, models.ValidationIssue{
				Severity: models.SeverityError,
				Message:  "break-glass access has expired",
			})
		}
	}

	if actx.ConsentOK != nil && *actx.ConsentOK && actx.ConsentID == "" {
		issues = append(issues, models.ValidationIssue{
			Severity: models.SeverityWarning,
			Message:  "consent_id should be provided when consent_ok is true",
		})
	}

	return issues
}

// Errors filters the error-severity issues.
func Errors(issues []models.ValidationIssue) []models.ValidationIssue {
	var out []models.ValidationIssue
	for _, i := range issues {
		if i.Severity == models.SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Warnings filters the warning-severity issues.
func Warnings(issues []models.ValidationIssue) []models.ValidationIssue {
	var out []models.ValidationIssue
	for _, i := range issues {
		if i.Severity == models.SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}
