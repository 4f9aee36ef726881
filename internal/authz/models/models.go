package models

import (
	"time"
)

// Subject is the acting principal, already resolved by the caller.
type Subject struct {
	Role   string
	UserID string
}

// Object is the protected resource. TenantRootID is the fallback tenant anchor
// when the context omits one.
type Object struct {
	Type         string
	ID           string
	TenantRootID string
}

// AuthorizationContext carries the situational facts for one decision. Every
// optional boolean is a pointer so "not evaluated" stays distinguishable from
// "evaluated false" - the PHI consent invariant depends on that distinction.
//
// A context is owned by exactly one in-flight decision and never mutated
// concurrently; the engine works on its own Clone.
type AuthorizationContext struct {
	Purpose             Purpose
	LegalBasis          *bool
	DatasetDeidentified *bool
	IdentifiedOK        *bool
	ContainsPHI         *bool

	OrgScope     *bool
	SameOrg      *bool
	SameLocation *bool
	InNetwork    *bool

	// TenantRootID is the tenant isolation boundary. Required for every real
	// decision; simulation flags its absence instead of failing.
	TenantRootID string

	DelegatedFields []string
	Field           string

	ServiceClaimed     *bool
	AssignedToUser     *bool
	SharesProgram      *bool
	ProgramAccessLevel ProgramAccessLevel

	ConsentOK *bool
	ConsentID string

	SelfScope  *bool
	Affiliated *bool

	TempGrant     *bool
	TwoPersonRule *bool

	BreakGlassActive    *bool
	BreakGlassExpiresAt *time.Time

	// Populated by the engine when absent.
	PolicyVersion string
	CorrelationID string
}

// Bool returns a pointer to b, for building contexts with explicit optionals.
func Bool(b bool) *bool { return &b }

// Clone returns a deep copy the engine can enrich without touching the
// caller's context.
func (c *AuthorizationContext) Clone() *AuthorizationContext {
	if c == nil {
		return &AuthorizationContext{}
	}
	out := *c
	out.LegalBasis = cloneBool(c.LegalBasis)
	out.DatasetDeidentified = cloneBool(c.DatasetDeidentified)
	out.IdentifiedOK = cloneBool(c.IdentifiedOK)
	out.ContainsPHI = cloneBool(c.ContainsPHI)
	out.OrgScope = cloneBool(c.OrgScope)
	out.SameOrg = cloneBool(c.SameOrg)
	out.SameLocation = cloneBool(c.SameLocation)
	out.InNetwork = cloneBool(c.InNetwork)
	out.ServiceClaimed = cloneBool(c.ServiceClaimed)
	out.AssignedToUser = cloneBool(c.AssignedToUser)
	out.SharesProgram = cloneBool(c.SharesProgram)
	out.ConsentOK = cloneBool(c.ConsentOK)
	out.SelfScope = cloneBool(c.SelfScope)
	out.Affiliated = cloneBool(c.Affiliated)
	out.TempGrant = cloneBool(c.TempGrant)
	out.TwoPersonRule = cloneBool(c.TwoPersonRule)
	out.BreakGlassActive = cloneBool(c.BreakGlassActive)
	if c.BreakGlassExpiresAt != nil {
		t := *c.BreakGlassExpiresAt
		out.BreakGlassExpiresAt = &t
	}
	if c.DelegatedFields != nil {
		out.DelegatedFields = append([]string(nil), c.DelegatedFields...)
	}
	return &out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Flag resolves a boolean context field by its wire name. The second return
// reports whether the field was evaluated at all. Rule guards address fields
// through this accessor so the engine never reflects over the struct.
func (c *AuthorizationContext) Flag(name string) (value, present bool) {
	var p *bool
	switch name {
	case "legal_basis":
		p = c.LegalBasis
	case "dataset_deidentified":
		p = c.DatasetDeidentified
	case "identified_ok":
		p = c.IdentifiedOK
	case "contains_phi":
		p = c.ContainsPHI
	case "org_scope":
		p = c.OrgScope
	case "same_org":
		p = c.SameOrg
	case "same_location":
		p = c.SameLocation
	case "in_network":
		p = c.InNetwork
	case "service_claimed":
		p = c.ServiceClaimed
	case "assigned_to_user":
		p = c.AssignedToUser
	case "shares_program":
		p = c.SharesProgram
	case "consent_ok":
		p = c.ConsentOK
	case "self_scope":
		p = c.SelfScope
	case "affiliated":
		p = c.Affiliated
	case "temp_grant":
		p = c.TempGrant
	case "two_person_rule":
		p = c.TwoPersonRule
	case "break_glass_active":
		p = c.BreakGlassActive
	default:
		return false, false
	}
	if p == nil {
		return false, false
	}
	return *p, true
}

// StringField resolves a string-valued context field by its wire name.
func (c *AuthorizationContext) StringField(name string) (value string, present bool) {
	switch name {
	case "purpose":
		return string(c.Purpose), c.Purpose != ""
	case "tenant_root_id":
		return c.TenantRootID, c.TenantRootID != ""
	case "field":
		return c.Field, c.Field != ""
	case "program_access_level":
		return string(c.ProgramAccessLevel), c.ProgramAccessLevel != ""
	case "consent_id":
		return c.ConsentID, c.ConsentID != ""
	}
	return "", false
}

// FieldDelegated reports whether the context's specific field is covered by a
// delegation grant.
func (c *AuthorizationContext) FieldDelegated() bool {
	if c.Field == "" {
		return false
	}
	for _, f := range c.DelegatedFields {
		if f == c.Field {
			return true
		}
	}
	return false
}

// ValidationIssue is one finding from context validation.
type ValidationIssue struct {
	Severity Severity
	Message  string
}

// AuthorizationDecision is the immutable result of one evaluation.
type AuthorizationDecision struct {
	Decision      DecisionEffect
	Subject       Subject
	Object        Object
	Action        string
	Context       *AuthorizationContext
	MatchedPolicy string
	Reasoning     string
	PolicyVersion string
	Timestamp     time.Time
	CorrelationID string
}

// Allowed reports whether the decision grants access.
func (d *AuthorizationDecision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// PolicySimulationResult is a decision plus the full evaluation trace, for
// developer-facing tooling.
type PolicySimulationResult struct {
	AuthorizationDecision
	ContextSnapshot *AuthorizationContext
	EvaluationSteps []string
	Warnings        []string
}

// ConsentRecord is an externally supplied consent fact. Empty AllowedPurposes
// means the consent is unrestricted.
type ConsentRecord struct {
	ID              string
	Active          bool
	ExpiresAt       *time.Time
	RevokedAt       *time.Time
	AllowedPurposes []Purpose
	ScopeType       ConsentScope
	// GraceWindow overrides the configured default when positive.
	GraceWindow time.Duration
}

// Covers reports whether the record permits the given purpose.
func (r ConsentRecord) Covers(purpose Purpose) bool {
	if len(r.AllowedPurposes) == 0 {
		return true
	}
	for _, p := range r.AllowedPurposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// ConsentResult is the outcome of consent resolution for one decision. It is
// computed fresh per request and never cached across decisions.
type ConsentResult struct {
	ConsentOK         bool
	ConsentID         string
	Reason            string
	GracePeriodActive bool
	ExpiresAt         *time.Time
	ScopeType         ConsentScope
	AllowedPurposes   []Purpose
}

// BreakGlassDecision is the outcome of an emergency access admission.
type BreakGlassDecision struct {
	Active    bool
	ExpiresAt time.Time
	Reason    string
}
