package engine

import (
	"fmt"
	"time"

	"custos/internal/authz/models"
)

// recorder assembles the immutable decision record for one evaluation. Steps
// are appended in evaluation order so simulation consumers can replay exactly
// what the engine checked.
type recorder struct {
	subject models.Subject
	object  models.Object
	action  string

	steps    []string
	warnings []string
}

func newRecorder(subject models.Subject, object models.Object, action string) *recorder {
	return &recorder{subject: subject, object: object, action: action}
}

func (r *recorder) step(format string, args ...any) {
	r.steps = append(r.steps, fmt.Sprintf(format, args...))
}

func (r *recorder) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

// finalize stamps the record. The context snapshot it embeds is the fully
// resolved context the rules actually saw; nothing mutates the result after
// this returns.
func (r *recorder) finalize(effect models.DecisionEffect, work *models.AuthorizationContext, matchedPolicy, reasoning string, at time.Time) *models.PolicySimulationResult {
	return &models.PolicySimulationResult{
		AuthorizationDecision: models.AuthorizationDecision{
			Decision:      effect,
			Subject:       r.subject,
			Object:        r.object,
			Action:        r.action,
			Context:       work,
			MatchedPolicy: matchedPolicy,
			Reasoning:     reasoning,
			PolicyVersion: work.PolicyVersion,
			Timestamp:     at,
			CorrelationID: work.CorrelationID,
		},
		ContextSnapshot: work.Clone(),
		EvaluationSteps: append([]string(nil), r.steps...),
		Warnings:        append([]string(nil), r.warnings...),
	}
}
