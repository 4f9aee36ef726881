package httptransport

import (
	"time"

	"custos/internal/authz/models"
)

// subjectPayload identifies the acting principal. When the request carries a
// verified bearer token the token wins and this block is ignored.
type subjectPayload struct {
	Role   string `json:"role"`
	UserID string `json:"user_id"`
}

type objectPayload struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	TenantRootID string `json:"tenant_root_id,omitempty"`
}

// contextPayload is the wire form of the authorization context. Pointer
// fields keep the absent/false distinction across JSON.
type contextPayload struct {
	Purpose             string     `json:"purpose,omitempty"`
	LegalBasis          *bool      `json:"legal_basis,omitempty"`
	DatasetDeidentified *bool      `json:"dataset_deidentified,omitempty"`
	IdentifiedOK        *bool      `json:"identified_ok,omitempty"`
	ContainsPHI         *bool      `json:"contains_phi,omitempty"`
	OrgScope            *bool      `json:"org_scope,omitempty"`
	SameOrg             *bool      `json:"same_org,omitempty"`
	SameLocation        *bool      `json:"same_location,omitempty"`
	InNetwork           *bool      `json:"in_network,omitempty"`
	TenantRootID        string     `json:"tenant_root_id,omitempty"`
	DelegatedFields     []string   `json:"delegated_fields,omitempty"`
	Field               string     `json:"field,omitempty"`
	ServiceClaimed      *bool      `json:"service_claimed,omitempty"`
	AssignedToUser      *bool      `json:"assigned_to_user,omitempty"`
	SharesProgram       *bool      `json:"shares_program,omitempty"`
	ProgramAccessLevel  string     `json:"program_access_level,omitempty"`
	ConsentOK           *bool      `json:"consent_ok,omitempty"`
	ConsentID           string     `json:"consent_id,omitempty"`
	SelfScope           *bool      `json:"self_scope,omitempty"`
	Affiliated          *bool      `json:"affiliated,omitempty"`
	TempGrant           *bool      `json:"temp_grant,omitempty"`
	TwoPersonRule       *bool      `json:"two_person_rule,omitempty"`
	BreakGlassActive    *bool      `json:"break_glass_active,omitempty"`
	BreakGlassExpiresAt *time.Time `json:"bg_expires_at,omitempty"`
	PolicyVersion       string     `json:"policy_version,omitempty"`
	CorrelationID       string     `json:"correlation_id,omitempty"`
}

type decideRequest struct {
	Subject *subjectPayload `json:"subject,omitempty"`
	Object  objectPayload   `json:"object"`
	Action  string          `json:"action"`
	Context *contextPayload `json:"context,omitempty"`
}

type decisionResponse struct {
	Decision      string    `json:"decision"`
	MatchedPolicy string    `json:"matched_policy,omitempty"`
	Reasoning     string    `json:"reasoning"`
	PolicyVersion string    `json:"policy_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

type simulationResponse struct {
	decisionResponse
	EvaluationSteps []string        `json:"evaluation_steps"`
	Warnings        []string        `json:"warnings,omitempty"`
	ContextSnapshot *contextPayload `json:"context_snapshot"`
}

type policyVersionResponse struct {
	PolicyVersion string `json:"policy_version"`
}

func (p *contextPayload) toModel() *models.AuthorizationContext {
	if p == nil {
		return &models.AuthorizationContext{}
	}
	return &models.AuthorizationContext{
		Purpose:             models.Purpose(p.Purpose),
		LegalBasis:          p.LegalBasis,
		DatasetDeidentified: p.DatasetDeidentified,
		IdentifiedOK:        p.IdentifiedOK,
		ContainsPHI:         p.ContainsPHI,
		OrgScope:            p.OrgScope,
		SameOrg:             p.SameOrg,
		SameLocation:        p.SameLocation,
		InNetwork:           p.InNetwork,
		TenantRootID:        p.TenantRootID,
		DelegatedFields:     p.DelegatedFields,
		Field:               p.Field,
		ServiceClaimed:      p.ServiceClaimed,
		AssignedToUser:      p.AssignedToUser,
		SharesProgram:       p.SharesProgram,
		ProgramAccessLevel:  models.ProgramAccessLevel(p.ProgramAccessLevel),
		ConsentOK:           p.ConsentOK,
		ConsentID:           p.ConsentID,
		SelfScope:           p.SelfScope,
		Affiliated:          p.Affiliated,
		TempGrant:           p.TempGrant,
		TwoPersonRule:       p.TwoPersonRule,
		BreakGlassActive:    p.BreakGlassActive,
		BreakGlassExpiresAt: p.BreakGlassExpiresAt,
		CorrelationID:       p.CorrelationID,
	}
}

func contextFromModel(c *models.AuthorizationContext) *contextPayload {
	if c == nil {
		return nil
	}
	return &contextPayload{
		Purpose:             string(c.Purpose),
		LegalBasis:          c.LegalBasis,
		DatasetDeidentified: c.DatasetDeidentified,
		IdentifiedOK:        c.IdentifiedOK,
		ContainsPHI:         c.ContainsPHI,
		OrgScope:            c.OrgScope,
		SameOrg:             c.SameOrg,
		SameLocation:        c.SameLocation,
		InNetwork:           c.InNetwork,
		TenantRootID:        c.TenantRootID,
		DelegatedFields:     c.DelegatedFields,
		Field:               c.Field,
		ServiceClaimed:      c.ServiceClaimed,
		AssignedToUser:      c.AssignedToUser,
		SharesProgram:       c.SharesProgram,
		ProgramAccessLevel:  string(c.ProgramAccessLevel),
		ConsentOK:           c.ConsentOK,
		ConsentID:           c.ConsentID,
		SelfScope:           c.SelfScope,
		Affiliated:          c.Affiliated,
		TempGrant:           c.TempGrant,
		TwoPersonRule:       c.TwoPersonRule,
		BreakGlassActive:    c.BreakGlassActive,
		BreakGlassExpiresAt: c.BreakGlassExpiresAt,
		PolicyVersion:       c.PolicyVersion,
		CorrelationID:       c.CorrelationID,
	}
}

func decisionFromModel(d *models.AuthorizationDecision) decisionResponse {
	return decisionResponse{
		Decision:      string(d.Decision),
		MatchedPolicy: d.MatchedPolicy,
		Reasoning:     d.Reasoning,
		PolicyVersion: d.PolicyVersion,
		Timestamp:     d.Timestamp,
		CorrelationID: d.CorrelationID,
	}
}

func simulationFromModel(r *models.PolicySimulationResult) simulationResponse {
	return simulationResponse{
		decisionResponse: decisionFromModel(&r.AuthorizationDecision),
		EvaluationSteps:  r.EvaluationSteps,
		Warnings:         r.Warnings,
		ContextSnapshot:  contextFromModel(r.ContextSnapshot),
	}
}
