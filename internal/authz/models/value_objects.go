package models

// Purpose labels why PHI is being accessed. Purpose binding lets consent be
// granted for care without opening the data to research or billing flows.
type Purpose string

const (
	PurposeCare      Purpose = "care"
	PurposeBilling   Purpose = "billing"
	PurposeQA        Purpose = "qa"
	PurposeOversight Purpose = "oversight"
	PurposeResearch  Purpose = "research"
)

// ValidPurposes is the single source of truth for all valid access purposes.
var ValidPurposes = map[Purpose]bool{
	PurposeCare:      true,
	PurposeBilling:   true,
	PurposeQA:        true,
	PurposeOversight: true,
	PurposeResearch:  true,
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	return ValidPurposes[p]
}

// DecisionEffect is the final outcome of an authorization evaluation.
type DecisionEffect string

const (
	DecisionAllow DecisionEffect = "allow"
	DecisionDeny  DecisionEffect = "deny"
)

// Severity ranks a validation issue. Errors force a deny; warnings are
// surfaced on the decision record but do not block.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ProgramAccessLevel grades how much of a shared program's data a subject may touch.
type ProgramAccessLevel string

const (
	ProgramAccessView  ProgramAccessLevel = "view"
	ProgramAccessWrite ProgramAccessLevel = "write"
	ProgramAccessFull  ProgramAccessLevel = "full"
	ProgramAccessNone  ProgramAccessLevel = "none"
)

// IsValid checks if the level is one of the supported enum values.
func (l ProgramAccessLevel) IsValid() bool {
	switch l {
	case ProgramAccessView, ProgramAccessWrite, ProgramAccessFull, ProgramAccessNone:
		return true
	}
	return false
}

// ConsentScope describes the organizational reach of a consent record.
type ConsentScope string

const (
	ScopePlatform     ConsentScope = "platform"
	ScopeOrganization ConsentScope = "organization"
	ScopeLocation     ConsentScope = "location"
	ScopeHelper       ConsentScope = "helper"
	ScopeCompany      ConsentScope = "company"
)

// IsValid checks if the scope is one of the supported enum values.
func (s ConsentScope) IsValid() bool {
	switch s {
	case ScopePlatform, ScopeOrganization, ScopeLocation, ScopeHelper, ScopeCompany:
		return true
	}
	return false
}
