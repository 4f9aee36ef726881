// Package policy holds the immutable, strongly-typed rule set the decision
// engine evaluates. The engine never parses rule syntax; it only walks
// already-parsed predicate structures.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"custos/internal/authz/models"
	dErrors "custos/pkg/domain-errors"
)

// Effect is what a matched rule grants.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// PredicateKind tags the guard variants.
type PredicateKind string

const (
	PredEquality   PredicateKind = "eq"
	PredMembership PredicateKind = "in"
	PredFlag       PredicateKind = "flag"
	PredAll        PredicateKind = "all"
	PredAny        PredicateKind = "any"
)

// fieldDelegated is a virtual flag satisfied when the context's specific
// field is covered by a delegation grant.
const fieldDelegated = "field_delegated"

// Predicate is one guard condition over the resolved context. Composite kinds
// carry children; leaf kinds carry a field reference.
type Predicate struct {
	Kind   PredicateKind
	Field  string
	Value  string
	Values []string
	Preds  []Predicate
}

// Evaluate walks the predicate against the context. Unset optional fields
// never satisfy a leaf condition.
func (p Predicate) Evaluate(actx *models.AuthorizationContext) bool {
	switch p.Kind {
	case PredFlag:
		if p.Field == fieldDelegated {
			return actx.FieldDelegated()
		}
		v, present := actx.Flag(p.Field)
		return present && v
	case PredEquality:
		v, present := actx.StringField(p.Field)
		return present && v == p.Value
	case PredMembership:
		v, present := actx.StringField(p.Field)
		if !present {
			return false
		}
		for _, candidate := range p.Values {
			if v == candidate {
				return true
			}
		}
		return false
	case PredAll:
		for _, child := range p.Preds {
			if !child.Evaluate(actx) {
				return false
			}
		}
		return true
	case PredAny:
		for _, child := range p.Preds {
			if child.Evaluate(actx) {
				return true
			}
		}
		return false
	}
	return false
}

// Describe renders the predicate for human-readable decision reasoning.
func (p Predicate) Describe() string {
	switch p.Kind {
	case PredFlag:
		return p.Field
	case PredEquality:
		return fmt.Sprintf("%s=%s", p.Field, p.Value)
	case PredMembership:
		return fmt.Sprintf("%s in [%s]", p.Field, strings.Join(p.Values, ", "))
	case PredAll:
		return "(" + joinDescriptions(p.Preds, " and ") + ")"
	case PredAny:
		return "(" + joinDescriptions(p.Preds, " or ") + ")"
	}
	return "unknown"
}

func joinDescriptions(preds []Predicate, sep string) string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, p.Describe())
	}
	return strings.Join(parts, sep)
}

// Wildcard matches any role, object type, or action in a rule pattern.
const Wildcard = "*"

// Rule binds a (role, object type, action) pattern to an effect, optionally
// guarded by a predicate over the context.
type Rule struct {
	ID          string
	Role        string
	ObjectType  string
	Action      string
	Effect      Effect
	Guard       *Predicate
	Description string

	// ordinal is the declaration position, the tie-breaker for equal
	// specificity. Set by NewSnapshot.
	ordinal int
}

// Matches reports whether the rule's patterns cover the request triple.
func (r Rule) Matches(role, objectType, action string) bool {
	return matchPattern(r.Role, role) &&
		matchPattern(r.ObjectType, objectType) &&
		matchPattern(r.Action, action)
}

func matchPattern(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

// specificity weights exact components so a role-specific rule outranks an
// object-specific one, which outranks an action-specific one. Higher is more
// specific.
func (r Rule) specificity() int {
	score := 0
	if r.Role != Wildcard {
		score += 4
	}
	if r.ObjectType != Wildcard {
		score += 2
	}
	if r.Action != Wildcard {
		score++
	}
	return score
}

// GuardSatisfied evaluates the guard; a nil guard is always satisfied.
func (r Rule) GuardSatisfied(actx *models.AuthorizationContext) bool {
	if r.Guard == nil {
		return true
	}
	return r.Guard.Evaluate(actx)
}

// Snapshot is one complete, immutable rule set. In-flight decisions hold the
// snapshot they started with; reloads swap in a whole new one.
type Snapshot struct {
	Version string
	rules   []Rule
}

// NewSnapshot validates the rules and fixes their evaluation order: most
// specific first, declaration order breaking ties. The ordering is a pure
// function of the rule set, so two engines loaded with the same rules always
// agree.
func NewSnapshot(version string, rules []Rule) (*Snapshot, error) {
	if version == "" {
		return nil, dErrors.New(dErrors.CodeConfig, "policy version is required")
	}
	if len(rules) == 0 {
		return nil, dErrors.New(dErrors.CodeConfig, "policy rule set is empty")
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	seen := make(map[string]bool, len(ordered))
	for i := range ordered {
		r := &ordered[i]
		if r.ID == "" {
			return nil, dErrors.New(dErrors.CodeConfig, fmt.Sprintf("rule at position %d has no id", i))
		}
		if seen[r.ID] {
			return nil, dErrors.New(dErrors.CodeConfig, fmt.Sprintf("duplicate rule id %q", r.ID))
		}
		seen[r.ID] = true
		if r.Effect != EffectAllow && r.Effect != EffectDeny {
			return nil, dErrors.New(dErrors.CodeConfig, fmt.Sprintf("rule %q has invalid effect %q", r.ID, r.Effect))
		}
		if r.Role == "" {
			r.Role = Wildcard
		}
		if r.ObjectType == "" {
			r.ObjectType = Wildcard
		}
		if r.Action == "" {
			r.Action = Wildcard
		}
		r.ordinal = i
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := ordered[i].specificity(), ordered[j].specificity()
		if si != sj {
			return si > sj
		}
		return ordered[i].ordinal < ordered[j].ordinal
	})

	return &Snapshot{Version: version, rules: ordered}, nil
}

// Rules returns the rules in evaluation order. Callers must not mutate.
func (s *Snapshot) Rules() []Rule {
	return s.rules
}

// Match returns the first rule covering the request triple whose guard holds
// over the resolved context.
func (s *Snapshot) Match(role, objectType, action string, actx *models.AuthorizationContext) (Rule, bool) {
	for _, r := range s.rules {
		if !r.Matches(role, objectType, action) {
			continue
		}
		if !r.GuardSatisfied(actx) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}
