package policy

import (
	"testing"

	"custos/internal/authz/models"
	dErrors "custos/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateEvaluation(t *testing.T) {
	actx := &models.AuthorizationContext{
		Purpose:         models.PurposeCare,
		TenantRootID:    "org_1",
		SameOrg:         models.Bool(true),
		ConsentOK:       models.Bool(false),
		Field:           "diagnosis",
		DelegatedFields: []string{"diagnosis"},
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"flag true", Predicate{Kind: PredFlag, Field: "same_org"}, true},
		{"flag false", Predicate{Kind: PredFlag, Field: "consent_ok"}, false},
		{"flag unset never satisfies", Predicate{Kind: PredFlag, Field: "assigned_to_user"}, false},
		{"virtual delegation flag", Predicate{Kind: PredFlag, Field: "field_delegated"}, true},
		{"equality", Predicate{Kind: PredEquality, Field: "purpose", Value: "care"}, true},
		{"equality mismatch", Predicate{Kind: PredEquality, Field: "purpose", Value: "billing"}, false},
		{"equality on unset field", Predicate{Kind: PredEquality, Field: "program_access_level", Value: "view"}, false},
		{"membership", Predicate{Kind: PredMembership, Field: "purpose", Values: []string{"care", "billing"}}, true},
		{"membership miss", Predicate{Kind: PredMembership, Field: "purpose", Values: []string{"research"}}, false},
		{
			"all short-circuits on first failure",
			Predicate{Kind: PredAll, Preds: []Predicate{
				{Kind: PredFlag, Field: "same_org"},
				{Kind: PredFlag, Field: "consent_ok"},
			}},
			false,
		},
		{
			"any succeeds on second branch",
			Predicate{Kind: PredAny, Preds: []Predicate{
				{Kind: PredFlag, Field: "consent_ok"},
				{Kind: PredFlag, Field: "same_org"},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Evaluate(actx))
		})
	}
}

func TestPredicateDescribe(t *testing.T) {
	p := Predicate{Kind: PredAll, Preds: []Predicate{
		{Kind: PredFlag, Field: "same_org"},
		{Kind: PredAny, Preds: []Predicate{
			{Kind: PredEquality, Field: "purpose", Value: "care"},
			{Kind: PredMembership, Field: "purpose", Values: []string{"qa", "oversight"}},
		}},
	}}

	assert.Equal(t, "(same_org and (purpose=care or purpose in [qa, oversight]))", p.Describe())
}

func TestSnapshotOrderingMostSpecificFirst(t *testing.T) {
	rules := []Rule{
		{ID: "any_any_any", Role: "*", ObjectType: "*", Action: "*", Effect: EffectDeny},
		{ID: "role_only", Role: "CaseManager", ObjectType: "*", Action: "*", Effect: EffectAllow},
		{ID: "exact", Role: "CaseManager", ObjectType: "Client", Action: "read", Effect: EffectAllow},
		{ID: "object_action", Role: "*", ObjectType: "Client", Action: "read", Effect: EffectDeny},
	}

	snap, err := NewSnapshot("v1", rules)
	require.NoError(t, err)

	var ids []string
	for _, r := range snap.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"exact", "role_only", "object_action", "any_any_any"}, ids)
}

func TestSnapshotOrderingIsStableForTies(t *testing.T) {
	rules := []Rule{
		{ID: "first", Role: "CaseManager", ObjectType: "Client", Action: "read", Effect: EffectAllow},
		{ID: "second", Role: "CaseManager", ObjectType: "Client", Action: "read", Effect: EffectDeny},
	}

	// Ties resolve by declaration order, every time.
	for i := 0; i < 20; i++ {
		snap, err := NewSnapshot("v1", rules)
		require.NoError(t, err)
		assert.Equal(t, "first", snap.Rules()[0].ID)
		assert.Equal(t, "second", snap.Rules()[1].ID)
	}
}

func TestSnapshotMatchRespectsGuards(t *testing.T) {
	guarded := Predicate{Kind: PredFlag, Field: "same_org"}
	rules := []Rule{
		{ID: "guarded_allow", Role: "CaseManager", ObjectType: "Client", Action: "read", Effect: EffectAllow, Guard: &guarded},
		{ID: "fallback_deny", Role: "*", ObjectType: "*", Action: "*", Effect: EffectDeny},
	}
	snap, err := NewSnapshot("v1", rules)
	require.NoError(t, err)

	withOrg := &models.AuthorizationContext{SameOrg: models.Bool(true)}
	r, ok := snap.Match("CaseManager", "Client", "read", withOrg)
	require.True(t, ok)
	assert.Equal(t, "guarded_allow", r.ID)

	withoutOrg := &models.AuthorizationContext{}
	r, ok = snap.Match("CaseManager", "Client", "read", withoutOrg)
	require.True(t, ok)
	assert.Equal(t, "fallback_deny", r.ID, "unsatisfied guard falls through to the next match")
}

func TestSnapshotMatchNoRule(t *testing.T) {
	rules := []Rule{{ID: "r1", Role: "Nurse", ObjectType: "Chart", Action: "read", Effect: EffectAllow}}
	snap, err := NewSnapshot("v1", rules)
	require.NoError(t, err)

	_, ok := snap.Match("CaseManager", "Client", "read", &models.AuthorizationContext{})
	assert.False(t, ok)
}

func TestNewSnapshotValidation(t *testing.T) {
	t.Run("empty rule set", func(t *testing.T) {
		_, err := NewSnapshot("v1", nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfig))
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := NewSnapshot("", []Rule{{ID: "r1", Effect: EffectAllow}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfig))
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := NewSnapshot("v1", []Rule{
			{ID: "r1", Effect: EffectAllow},
			{ID: "r1", Effect: EffectDeny},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("invalid effect", func(t *testing.T) {
		_, err := NewSnapshot("v1", []Rule{{ID: "r1", Effect: Effect("maybe")}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfig))
	})

	t.Run("empty patterns default to wildcard", func(t *testing.T) {
		snap, err := NewSnapshot("v1", []Rule{{ID: "r1", Effect: EffectDeny}})
		require.NoError(t, err)
		assert.True(t, snap.Rules()[0].Matches("Anyone", "Anything", "write"))
	})
}
