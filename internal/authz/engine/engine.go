// Package engine evaluates subject/object/action/context against the loaded
// rule set. Decisions are pure given their inputs and the active snapshot;
// the engine supports unbounded concurrent evaluation with no shared mutable
// state between calls.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custos/internal/audit"
	"custos/internal/authz/consent"
	"custos/internal/authz/metrics"
	"custos/internal/authz/models"
	"custos/internal/authz/validate"
	"custos/internal/platform/clock"
	"custos/internal/platform/middleware"
	"custos/internal/policy"
	dErrors "custos/pkg/domain-errors"
)

// AuditPublisher receives decision audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine is the policy decision point. The goal is to keep the rules
// centralized and the evaluation trace reproducible.
type Engine struct {
	store    *policy.Store
	consents *consent.Evaluator
	scopes   ScopeSource
	auditor  AuditPublisher
	clk      clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures the Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collector for the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithScopeSource sets an external resolver for organizational scope facts.
func WithScopeSource(s ScopeSource) Option {
	return func(e *Engine) {
		e.scopes = s
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates the decision engine with required dependencies.
// Panics if required dependencies are nil - fail fast at startup.
// The auditor is required for compliance: every decision leaves a trail.
func New(store *policy.Store, consents *consent.Evaluator, auditor AuditPublisher, clk clock.Clock, opts ...Option) *Engine {
	if store == nil {
		panic("engine.New: policy store is required")
	}
	if consents == nil {
		panic("engine.New: consent evaluator is required for compliance")
	}
	if auditor == nil {
		panic("engine.New: auditor is required for compliance audit trail")
	}
	if clk == nil {
		panic("engine.New: clock is required")
	}
	e := &Engine{
		store:    store,
		consents: consents,
		auditor:  auditor,
		clk:      clk,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("custos/authz")
	}
	return e
}

// CurrentPolicyVersion reports the version of the active rule set snapshot.
func (e *Engine) CurrentPolicyVersion() string {
	return e.store.Version()
}

// Reload swaps in a fresh rule set snapshot. In-flight decisions keep the
// snapshot they started with.
func (e *Engine) Reload(ctx context.Context) error {
	err := e.store.Reload(ctx)
	if e.metrics != nil {
		if err != nil {
			e.metrics.IncrementPolicyReload("failure")
		} else {
			e.metrics.IncrementPolicyReload("success")
		}
	}
	return err
}

// Decide evaluates one enforcement decision. It fails closed: validation and
// consent problems come back as deny decisions, and only configuration or
// input errors surface as Go errors.
func (e *Engine) Decide(ctx context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.AuthorizationDecision, error) {
	result, err := e.evaluate(ctx, subject, object, action, actx, validate.ModeDecide)
	if err != nil {
		return nil, err
	}
	return &result.AuthorizationDecision, nil
}

// Simulate runs the same evaluation with the full trace attached. It accepts
// partially specified contexts: the tenant anchor falls back to the object
// and its absence is flagged instead of enforced.
func (e *Engine) Simulate(ctx context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.PolicySimulationResult, error) {
	return e.evaluate(ctx, subject, object, action, actx, validate.ModeSimulate)
}

func (e *Engine) evaluate(ctx context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext, mode validate.Mode) (*models.PolicySimulationResult, error) {
	if err := checkInputs(subject, object, action); err != nil {
		return nil, err
	}

	// One snapshot for the whole evaluation; a reload landing mid-decision
	// does not affect us.
	snap := e.store.Snapshot()
	if snap == nil || len(snap.Rules()) == 0 {
		return nil, dErrors.New(dErrors.CodeConfig, "no policy rule set is loaded")
	}

	// Single authoritative timestamp for the entire evaluation.
	evalTime := e.clk.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveEvaluateLatency(time.Since(evalTime))
		}
	}()

	ctx, span := e.tracer.Start(ctx, "authz.evaluate", trace.WithAttributes(
		attribute.String("authz.role", subject.Role),
		attribute.String("authz.object_type", object.Type),
		attribute.String("authz.action", action),
	))
	defer span.End()

	work := actx.Clone()
	if work.CorrelationID == "" {
		work.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	if work.CorrelationID == "" {
		work.CorrelationID = uuid.New().String()
	}
	work.PolicyVersion = snap.Version

	rec := newRecorder(subject, object, action)
	rec.step("Evaluated subject: role=%s user=%s", subject.Role, subject.UserID)

	// Tenant fallback is applied before validation; anchoring the decision is
	// the pipeline's job, not the validator's.
	if work.TenantRootID == "" && object.TenantRootID != "" {
		work.TenantRootID = object.TenantRootID
		rec.step("Tenant anchor: filled from object (%s)", object.TenantRootID)
	}

	e.downgradeExpiredBreakGlass(work, rec, evalTime)

	enriched, err := e.gatherEnrichment(ctx, subject, object, work)
	if err != nil {
		// Unresolvable consent is not an engine failure: fail closed with a
		// structured deny so the caller still gets a decision record.
		rec.warn("consent could not be resolved: " + err.Error())
		rec.step("Consent check: unresolved, failing closed")
		return e.conclude(ctx, rec, models.DecisionDeny, work, "", "consent status could not be resolved; failing closed", evalTime, span)
	}
	if enriched.scope != nil {
		applyScope(work, *enriched.scope)
		rec.step("Scope facts: resolved from membership source")
	}
	if enriched.consent != nil {
		consent.Merge(work, *enriched.consent)
		if enriched.consent.GracePeriodActive {
			rec.step("Consent check: ok (grace period)")
			rec.warn(enriched.consent.Reason)
		} else if enriched.consent.ConsentOK {
			rec.step("Consent check: ok (%s)", enriched.consent.ConsentID)
		} else {
			rec.step("Consent check: not consented")
		}
	} else if work.ConsentOK != nil {
		rec.step("Consent check: supplied by caller")
	}

	issues := validate.Validate(work, evalTime, mode)
	for _, issue := range issues {
		rec.step("Validation: %s (%s)", issue.Message, issue.Severity)
		if issue.Severity == models.SeverityWarning {
			rec.warn(issue.Message)
		}
		if e.metrics != nil {
			e.metrics.IncrementValidationFailure(string(issue.Severity))
		}
	}
	if errs := validate.Errors(issues); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, i := range errs {
			msgs = append(msgs, i.Message)
		}
		return e.conclude(ctx, rec, models.DecisionDeny, work, "", strings.Join(msgs, "; "), evalTime, span)
	}

	// Tenant isolation is a non-bypassable pre-condition. No rule, including
	// break-glass, can override a cross-tenant mismatch.
	if object.TenantRootID != "" && object.TenantRootID != work.TenantRootID {
		if e.metrics != nil {
			e.metrics.TenantMismatches.Inc()
		}
		rec.step("Tenant check: mismatch (object=%s context=%s)", object.TenantRootID, work.TenantRootID)
		return e.conclude(ctx, rec, models.DecisionDeny, work, "",
			"tenant isolation violation: object belongs to a different tenant", evalTime, span)
	}
	rec.step("Tenant check: match (%s)", work.TenantRootID)

	if work.BreakGlassActive != nil && *work.BreakGlassActive && work.BreakGlassExpiresAt != nil {
		rec.step("Break-glass: active until %s", work.BreakGlassExpiresAt.Format(time.RFC3339))
	}

	rule, ok := snap.Match(subject.Role, object.Type, action, work)
	if !ok {
		rec.step("No rule matched; default posture is deny")
		return e.conclude(ctx, rec, models.DecisionDeny, work, "",
			"no policy rule matched the request; default posture is deny", evalTime, span)
	}

	rec.step("Matched rule: %s", rule.ID)
	if rule.Effect == policy.EffectDeny {
		return e.conclude(ctx, rec, models.DecisionDeny, work, rule.ID, denyReasoning(rule), evalTime, span)
	}
	return e.conclude(ctx, rec, models.DecisionAllow, work, rule.ID, allowReasoning(rule), evalTime, span)
}

// downgradeExpiredBreakGlass normalizes stale break-glass before validation:
// an expired window is treated as inactive so evaluation falls through to the
// standard rules. A missing expiry stays put for the validator to reject.
func (e *Engine) downgradeExpiredBreakGlass(work *models.AuthorizationContext, rec *recorder, now time.Time) {
	if work.BreakGlassActive == nil || !*work.BreakGlassActive {
		return
	}
	if work.BreakGlassExpiresAt == nil || work.BreakGlassExpiresAt.After(now) {
		return
	}
	work.BreakGlassActive = models.Bool(false)
	rec.step("Break-glass: expired at %s, treated as inactive", work.BreakGlassExpiresAt.Format(time.RFC3339))
	rec.warn("break-glass window expired; standard rules applied")
	work.BreakGlassExpiresAt = nil
}

// conclude finalizes the record, emits audit, and updates metrics. PHI
// decisions use fail-closed audit semantics: if the trail cannot be written,
// the decision is withheld.
func (e *Engine) conclude(ctx context.Context, rec *recorder, effect models.DecisionEffect, work *models.AuthorizationContext, matchedPolicy, reasoning string, evalTime time.Time, span trace.Span) (*models.PolicySimulationResult, error) {
	result := rec.finalize(effect, work, matchedPolicy, reasoning, evalTime)

	span.SetAttributes(
		attribute.String("authz.decision", string(effect)),
		attribute.String("authz.matched_policy", matchedPolicy),
		attribute.String("authz.tenant_root_id", work.TenantRootID),
	)

	event := audit.Event{
		Timestamp:     evalTime,
		UserID:        result.Subject.UserID,
		Role:          result.Subject.Role,
		TenantRootID:  work.TenantRootID,
		ObjectType:    result.Object.Type,
		ObjectID:      result.Object.ID,
		Action:        string(audit.EventDecisionMade),
		Purpose:       string(work.Purpose),
		Decision:      string(effect),
		Reason:        reasoning,
		MatchedPolicy: matchedPolicy,
		PolicyVersion: work.PolicyVersion,
		CorrelationID: work.CorrelationID,
	}

	phi := work.ContainsPHI != nil && *work.ContainsPHI
	if err := e.auditor.Emit(ctx, event); err != nil {
		if phi {
			if e.logger != nil {
				e.logger.ErrorContext(ctx, "CRITICAL: audit failed for PHI decision - withholding response",
					"user_id", result.Subject.UserID,
					"tenant_root_id", work.TenantRootID,
					"error", err,
				)
			}
			return nil, dErrors.New(dErrors.CodeInternal, "decision audit unavailable")
		}
		if e.logger != nil {
			e.logger.WarnContext(ctx, "failed to emit decision audit event",
				"error", err,
				"user_id", result.Subject.UserID,
			)
		}
	}

	if e.metrics != nil {
		purpose := string(work.Purpose)
		if purpose == "" {
			purpose = "unspecified"
		}
		e.metrics.IncrementDecision(string(effect), purpose)
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, "authorization decision",
			"decision", effect,
			"role", result.Subject.Role,
			"object_type", result.Object.Type,
			"action", result.Action,
			"matched_policy", matchedPolicy,
			"tenant_root_id", work.TenantRootID,
			"correlation_id", work.CorrelationID,
		)
	}

	return result, nil
}

// checkInputs rejects structurally incomplete requests before evaluation.
func checkInputs(subject models.Subject, object models.Object, action string) error {
	switch {
	case subject.Role == "":
		return dErrors.New(dErrors.CodeBadRequest, "subject.role is required")
	case subject.UserID == "":
		return dErrors.New(dErrors.CodeBadRequest, "subject.user_id is required")
	case object.Type == "":
		return dErrors.New(dErrors.CodeBadRequest, "object.type is required")
	case object.ID == "":
		return dErrors.New(dErrors.CodeBadRequest, "object.id is required")
	case action == "":
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	return nil
}

func allowReasoning(rule policy.Rule) string {
	if rule.Guard != nil {
		return "rule " + rule.ID + " permitted access; conditions satisfied: " + rule.Guard.Describe()
	}
	if rule.Description != "" {
		return "rule " + rule.ID + " permitted access: " + rule.Description
	}
	return "rule " + rule.ID + " permitted access unconditionally"
}

func denyReasoning(rule policy.Rule) string {
	if rule.Description != "" {
		return "rule " + rule.ID + " denied access: " + rule.Description
	}
	if rule.Guard != nil {
		return "rule " + rule.ID + " denied access; conditions met: " + rule.Guard.Describe()
	}
	return "rule " + rule.ID + " denied access"
}
