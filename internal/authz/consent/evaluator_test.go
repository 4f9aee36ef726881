package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"custos/internal/authz/models"
	"custos/internal/platform/clock"
	dErrors "custos/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

type EvaluatorSuite struct {
	suite.Suite
	source *mockRecordSource
	clk    *clock.Fixed
	eval   *Evaluator
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) SetupTest() {
	s.source = &mockRecordSource{}
	s.clk = clock.NewFixed(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	s.eval = New(s.source, s.clk, 72*time.Hour)
}

func (s *EvaluatorSuite) careContext() *models.AuthorizationContext {
	return &models.AuthorizationContext{Purpose: models.PurposeCare, TenantRootID: "org_1"}
}

func (s *EvaluatorSuite) TestActiveConsentCoversPurpose() {
	expiry := s.clk.Now().Add(30 * 24 * time.Hour)
	s.source.records = []models.ConsentRecord{{
		ID:              "consent_1",
		Active:          true,
		ExpiresAt:       &expiry,
		AllowedPurposes: []models.Purpose{models.PurposeCare},
		ScopeType:       models.ScopeOrganization,
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.True(result.ConsentOK)
	s.Equal("consent_1", result.ConsentID)
	s.False(result.GracePeriodActive)
	s.Equal(models.ScopeOrganization, result.ScopeType)
}

func (s *EvaluatorSuite) TestUnrestrictedConsentCoversAnyPurpose() {
	s.source.records = []models.ConsentRecord{{ID: "consent_1", Active: true}}

	actx := s.careContext()
	actx.Purpose = models.PurposeResearch
	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", actx)

	s.Require().NoError(err)
	s.True(result.ConsentOK)
}

func (s *EvaluatorSuite) TestPurposeMismatchIsNotConsented() {
	s.source.records = []models.ConsentRecord{{
		ID:              "consent_1",
		Active:          true,
		AllowedPurposes: []models.Purpose{models.PurposeBilling},
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.False(result.ConsentOK)
	s.Contains(result.Reason, "no consent record covers purpose care")
}

func (s *EvaluatorSuite) TestGracePeriodHonoredAndFlagged() {
	expired := s.clk.Now().Add(-24 * time.Hour)
	s.source.records = []models.ConsentRecord{{
		ID:        "consent_1",
		Active:    false,
		ExpiresAt: &expired,
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.True(result.ConsentOK)
	s.True(result.GracePeriodActive, "grace usage must be visible, never a silent bypass")
	s.Contains(result.Reason, "grace window")
}

func (s *EvaluatorSuite) TestGraceWindowExceeded() {
	expired := s.clk.Now().Add(-96 * time.Hour)
	s.source.records = []models.ConsentRecord{{
		ID:        "consent_1",
		ExpiresAt: &expired,
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.False(result.ConsentOK)
	s.Contains(result.Reason, "grace window has passed")
}

func (s *EvaluatorSuite) TestPerRecordGraceWindowOverride() {
	expired := s.clk.Now().Add(-96 * time.Hour)
	s.source.records = []models.ConsentRecord{{
		ID:          "consent_1",
		ExpiresAt:   &expired,
		GraceWindow: 120 * time.Hour,
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.True(result.ConsentOK)
	s.True(result.GracePeriodActive)
}

func (s *EvaluatorSuite) TestRevokedConsentNeverGraced() {
	expired := s.clk.Now().Add(-time.Hour)
	revoked := s.clk.Now().Add(-time.Hour)
	s.source.records = []models.ConsentRecord{{
		ID:        "consent_1",
		ExpiresAt: &expired,
		RevokedAt: &revoked,
	}}

	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.False(result.ConsentOK)
	s.Contains(result.Reason, "revoked")
}

func (s *EvaluatorSuite) TestNoRecords() {
	result, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().NoError(err)
	s.False(result.ConsentOK)
	s.Equal("no consent records exist for this subject and object", result.Reason)
}

func (s *EvaluatorSuite) TestSourceFailureIsInternalError() {
	s.source.err = errors.New("backend down")

	_, err := s.eval.Evaluate(context.Background(), "user_1", "client_1", s.careContext())

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *EvaluatorSuite) TestMergeDoesNotOverrideExplicitValues() {
	actx := s.careContext()
	actx.ConsentOK = models.Bool(false)
	actx.ConsentID = "explicit_consent"

	Merge(actx, models.ConsentResult{ConsentOK: true, ConsentID: "computed_consent"})

	s.False(*actx.ConsentOK, "explicit values take precedence")
	s.Equal("explicit_consent", actx.ConsentID)
}

func (s *EvaluatorSuite) TestMergeFillsGaps() {
	actx := s.careContext()

	Merge(actx, models.ConsentResult{ConsentOK: true, ConsentID: "computed_consent"})

	s.Require().NotNil(actx.ConsentOK)
	s.True(*actx.ConsentOK)
	s.Equal("computed_consent", actx.ConsentID)
}

// =============================================================================
// Mock implementations
// =============================================================================

type mockRecordSource struct {
	records []models.ConsentRecord
	err     error
}

func (m *mockRecordSource) Lookup(ctx context.Context, userID, objectID string) ([]models.ConsentRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}
