// Package breakglass admits time-boxed emergency access windows. Every grant
// is capped at a configured maximum and emitted to the audit trail with
// who/what/when/until-when so the calling layer can persist it.
package breakglass

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"custos/internal/audit"
	"custos/internal/authz/metrics"
	"custos/internal/authz/models"
	"custos/internal/platform/clock"
	dErrors "custos/pkg/domain-errors"
)

// AuditPublisher receives the mandatory break-glass audit facts.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Manager validates and admits break-glass requests.
type Manager struct {
	maxDuration time.Duration
	clk         clock.Clock
	auditor     AuditPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithMetrics sets the metrics collector for the manager.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) {
		mg.metrics = m
	}
}

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(mg *Manager) {
		mg.logger = l
	}
}

// New creates a break-glass manager. The maximum duration is a required
// compliance parameter; the auditor is required because an unauditable
// emergency grant must never exist. Panics on missing dependencies - fail
// fast at startup.
func New(maxDuration time.Duration, clk clock.Clock, auditor AuditPublisher, opts ...Option) *Manager {
	if maxDuration <= 0 {
		panic("breakglass.New: maximum duration is required")
	}
	if clk == nil {
		panic("breakglass.New: clock is required")
	}
	if auditor == nil {
		panic("breakglass.New: auditor is required for compliance audit trail")
	}
	m := &Manager{
		maxDuration: maxDuration,
		clk:         clk,
		auditor:     auditor,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Admit evaluates an emergency access request. Break-glass applies only to
// PHI contexts where the ordinary consent/assignment path has already failed;
// the requested expiry is clamped to the configured maximum, never extended.
func (m *Manager) Admit(ctx context.Context, subject models.Subject, object models.Object, requestedExpiry time.Time, actx *models.AuthorizationContext) (models.BreakGlassDecision, error) {
	now := m.clk.Now()

	if reason, ok := m.eligible(actx); !ok {
		m.emitRejected(ctx, subject, object, actx, reason, now)
		return models.BreakGlassDecision{Active: false, Reason: reason}, nil
	}

	if !requestedExpiry.After(now) {
		reason := "requested expiry is not in the future"
		m.emitRejected(ctx, subject, object, actx, reason, now)
		return models.BreakGlassDecision{Active: false, Reason: reason}, nil
	}

	expiresAt := requestedExpiry
	cap := now.Add(m.maxDuration)
	clamped := false
	if expiresAt.After(cap) {
		expiresAt = cap
		clamped = true
		if m.metrics != nil {
			m.metrics.BreakGlassClamped.Inc()
		}
	}

	// The grant must be on the audit trail before it takes effect; an
	// unrecorded emergency access window is a compliance violation.
	event := audit.Event{
		Timestamp:     now,
		UserID:        subject.UserID,
		Role:          subject.Role,
		TenantRootID:  actx.TenantRootID,
		ObjectType:    object.Type,
		ObjectID:      object.ID,
		Purpose:       string(actx.Purpose),
		Action:        string(audit.EventBreakGlassAdmitted),
		Decision:      "admitted",
		Reason:        admissionReason(clamped, m.maxDuration),
		CorrelationID: actx.CorrelationID,
		ExpiresAt:     &expiresAt,
	}
	if err := m.auditor.Emit(ctx, event); err != nil {
		if m.logger != nil {
			m.logger.ErrorContext(ctx, "CRITICAL: audit failed for break-glass admission - rejecting grant",
				"user_id", subject.UserID,
				"object_id", object.ID,
				"error", err,
			)
		}
		return models.BreakGlassDecision{}, dErrors.New(dErrors.CodeInternal, "break-glass audit unavailable")
	}

	if m.metrics != nil {
		m.metrics.BreakGlassAdmissions.Inc()
	}
	if m.logger != nil {
		m.logger.WarnContext(ctx, "break-glass emergency access admitted",
			"user_id", subject.UserID,
			"role", subject.Role,
			"object_type", object.Type,
			"object_id", object.ID,
			"tenant_root_id", actx.TenantRootID,
			"expires_at", expiresAt,
		)
	}

	return models.BreakGlassDecision{
		Active:    true,
		ExpiresAt: expiresAt,
		Reason:    admissionReason(clamped, m.maxDuration),
	}, nil
}

// eligible checks the preconditions for requesting break-glass at all.
func (m *Manager) eligible(actx *models.AuthorizationContext) (string, bool) {
	if actx.ContainsPHI == nil || !*actx.ContainsPHI {
		return "break-glass applies only to PHI access", false
	}
	if actx.ConsentOK != nil && *actx.ConsentOK {
		return "consent is already satisfied; break-glass not needed", false
	}
	if actx.AssignedToUser != nil && *actx.AssignedToUser {
		return "subject is assigned to this record; use the standard path", false
	}
	return "", true
}

func (m *Manager) emitRejected(ctx context.Context, subject models.Subject, object models.Object, actx *models.AuthorizationContext, reason string, now time.Time) {
	event := audit.Event{
		Timestamp:     now,
		UserID:        subject.UserID,
		Role:          subject.Role,
		TenantRootID:  actx.TenantRootID,
		ObjectType:    object.Type,
		ObjectID:      object.ID,
		Purpose:       string(actx.Purpose),
		Action:        string(audit.EventBreakGlassRejected),
		Decision:      "rejected",
		Reason:        reason,
		CorrelationID: actx.CorrelationID,
	}
	if err := m.auditor.Emit(ctx, event); err != nil && m.logger != nil {
		m.logger.WarnContext(ctx, "failed to emit break-glass rejection event", "error", err)
	}
}

func admissionReason(clamped bool, max time.Duration) string {
	if clamped {
		return fmt.Sprintf("emergency access admitted; expiry clamped to the %s maximum", max)
	}
	return "emergency access admitted"
}
