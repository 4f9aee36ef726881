// Package consent resolves whether PHI access is currently consented.
// Results are computed fresh per decision: consent can change between
// requests, so nothing here is cached beyond one call.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"custos/internal/authz/metrics"
	"custos/internal/authz/models"
	"custos/internal/platform/clock"
	dErrors "custos/pkg/domain-errors"
)

// RecordSource supplies externally managed consent records for a
// (subject user, object) pair.
type RecordSource interface {
	Lookup(ctx context.Context, userID, objectID string) ([]models.ConsentRecord, error)
}

// Evaluator applies the consent policy over supplied records.
type Evaluator struct {
	source      RecordSource
	clk         clock.Clock
	graceWindow time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithMetrics sets the metrics collector for the evaluator.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithLogger sets the logger for the evaluator.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// New creates a consent evaluator. The grace window is a required compliance
// parameter; panics on a missing source or clock - fail fast at startup.
func New(source RecordSource, clk clock.Clock, graceWindow time.Duration, opts ...Option) *Evaluator {
	if source == nil {
		panic("consent.New: record source is required")
	}
	if clk == nil {
		panic("consent.New: clock is required")
	}
	e := &Evaluator{
		source:      source,
		clk:         clk,
		graceWindow: graceWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate resolves the consent status for one decision. An active record
// covering the context purpose wins; failing that, a record that expired
// within its grace window is honored with GracePeriodActive set so the
// accommodation is visible in the audit trail, never a silent bypass.
func (e *Evaluator) Evaluate(ctx context.Context, userID, objectID string, actx *models.AuthorizationContext) (models.ConsentResult, error) {
	records, err := e.source.Lookup(ctx, userID, objectID)
	if err != nil {
		return models.ConsentResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "consent record lookup failed")
	}

	now := e.clk.Now()

	if r, ok := activeRecord(records, actx.Purpose, now); ok {
		return models.ConsentResult{
			ConsentOK:       true,
			ConsentID:       r.ID,
			Reason:          fmt.Sprintf("active consent %s covers purpose %s", r.ID, actx.Purpose),
			ExpiresAt:       r.ExpiresAt,
			ScopeType:       r.ScopeType,
			AllowedPurposes: r.AllowedPurposes,
		}, nil
	}

	if r, ok := e.graceRecord(records, actx.Purpose, now); ok {
		if e.metrics != nil {
			e.metrics.ConsentGraceUses.Inc()
		}
		if e.logger != nil {
			e.logger.WarnContext(ctx, "consent honored under grace period",
				"user_id", userID,
				"object_id", objectID,
				"consent_id", r.ID,
				"expired_at", r.ExpiresAt,
			)
		}
		return models.ConsentResult{
			ConsentOK:         true,
			ConsentID:         r.ID,
			GracePeriodActive: true,
			Reason:            fmt.Sprintf("consent %s expired at %s; honored within grace window", r.ID, r.ExpiresAt.Format(time.RFC3339)),
			ExpiresAt:         r.ExpiresAt,
			ScopeType:         r.ScopeType,
			AllowedPurposes:   r.AllowedPurposes,
		}, nil
	}

	return models.ConsentResult{
		ConsentOK: false,
		Reason:    noConsentReason(records, actx.Purpose),
	}, nil
}

// Merge applies a computed result onto the context. Explicit values set by a
// trusted caller take precedence; computed values fill gaps only.
func Merge(actx *models.AuthorizationContext, result models.ConsentResult) {
	if actx.ConsentOK == nil {
		actx.ConsentOK = models.Bool(result.ConsentOK)
	}
	if actx.ConsentID == "" {
		actx.ConsentID = result.ConsentID
	}
}

func activeRecord(records []models.ConsentRecord, purpose models.Purpose, now time.Time) (models.ConsentRecord, bool) {
	for _, r := range records {
		if !r.Active || r.RevokedAt != nil {
			continue
		}
		if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			continue
		}
		if !r.Covers(purpose) {
			continue
		}
		return r, true
	}
	return models.ConsentRecord{}, false
}

// graceRecord finds a record that expired recently enough to still be honored.
// Revoked records never qualify: revocation is an explicit withdrawal.
func (e *Evaluator) graceRecord(records []models.ConsentRecord, purpose models.Purpose, now time.Time) (models.ConsentRecord, bool) {
	for _, r := range records {
		if r.RevokedAt != nil {
			continue
		}
		if r.ExpiresAt == nil || r.ExpiresAt.After(now) {
			continue
		}
		if !r.Covers(purpose) {
			continue
		}
		window := e.graceWindow
		if r.GraceWindow > 0 {
			window = r.GraceWindow
		}
		if window <= 0 {
			continue
		}
		if now.Sub(*r.ExpiresAt) <= window {
			return r, true
		}
	}
	return models.ConsentRecord{}, false
}

func noConsentReason(records []models.ConsentRecord, purpose models.Purpose) string {
	if len(records) == 0 {
		return "no consent records exist for this subject and object"
	}
	for _, r := range records {
		if r.RevokedAt != nil && r.Covers(purpose) {
			return fmt.Sprintf("consent %s was revoked", r.ID)
		}
	}
	for _, r := range records {
		if r.ExpiresAt != nil && r.Covers(purpose) {
			return fmt.Sprintf("consent %s expired and the grace window has passed", r.ID)
		}
	}
	return fmt.Sprintf("no consent record covers purpose %s", purpose)
}
