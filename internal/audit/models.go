package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	UserID        string
	Role          string
	TenantRootID  string
	ObjectType    string
	ObjectID      string
	Action        string
	Purpose       string
	Decision      string
	Reason        string
	MatchedPolicy string
	PolicyVersion string
	CorrelationID string
	// ExpiresAt carries the until-when of a break-glass grant.
	ExpiresAt *time.Time
}

type AuditEvent string

const (
	EventDecisionMade       AuditEvent = "decision_made"
	EventBreakGlassAdmitted AuditEvent = "break_glass_admitted"
	EventBreakGlassRejected AuditEvent = "break_glass_rejected"
	EventPolicyReloaded     AuditEvent = "policy_reloaded"
)
