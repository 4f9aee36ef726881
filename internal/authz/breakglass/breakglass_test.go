package breakglass

import (
	"context"
	"errors"
	"testing"
	"time"

	"custos/internal/audit"
	"custos/internal/authz/models"
	"custos/internal/platform/clock"
	dErrors "custos/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

type ManagerSuite struct {
	suite.Suite
	clk     *clock.Fixed
	auditor *mockAuditPublisher
	manager *Manager
	subject models.Subject
	object  models.Object
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.clk = clock.NewFixed(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	s.auditor = &mockAuditPublisher{}
	s.manager = New(4*time.Hour, s.clk, s.auditor)
	s.subject = models.Subject{Role: "Physician", UserID: "user_9"}
	s.object = models.Object{Type: "Client", ID: "client_123", TenantRootID: "org_456"}
}

func (s *ManagerSuite) phiContext() *models.AuthorizationContext {
	return &models.AuthorizationContext{
		TenantRootID: "org_456",
		Purpose:      models.PurposeCare,
		ContainsPHI:  models.Bool(true),
		ConsentOK:    models.Bool(false),
	}
}

func (s *ManagerSuite) TestAdmitsWithinCap() {
	requested := s.clk.Now().Add(2 * time.Hour)

	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, requested, s.phiContext())

	s.Require().NoError(err)
	s.True(decision.Active)
	s.Equal(requested, decision.ExpiresAt)
	s.Require().Len(s.auditor.events, 1)

	event := s.auditor.events[0]
	s.Equal(string(audit.EventBreakGlassAdmitted), event.Action)
	s.Equal("user_9", event.UserID)
	s.Equal("client_123", event.ObjectID)
	s.Require().NotNil(event.ExpiresAt)
	s.Equal(requested, *event.ExpiresAt)
}

func (s *ManagerSuite) TestClampsToMaximum() {
	requested := s.clk.Now().Add(48 * time.Hour)

	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, requested, s.phiContext())

	s.Require().NoError(err)
	s.True(decision.Active)
	s.Equal(s.clk.Now().Add(4*time.Hour), decision.ExpiresAt, "caller-requested expiry must be clamped")
	s.Contains(decision.Reason, "clamped")
}

func (s *ManagerSuite) TestRejectsNonPHI() {
	actx := s.phiContext()
	actx.ContainsPHI = models.Bool(false)

	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, s.clk.Now().Add(time.Hour), actx)

	s.Require().NoError(err)
	s.False(decision.Active)
	s.Contains(decision.Reason, "PHI")
	s.Require().Len(s.auditor.events, 1)
	s.Equal(string(audit.EventBreakGlassRejected), s.auditor.events[0].Action)
}

func (s *ManagerSuite) TestRejectsWhenConsentAlreadySatisfied() {
	actx := s.phiContext()
	actx.ConsentOK = models.Bool(true)

	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, s.clk.Now().Add(time.Hour), actx)

	s.Require().NoError(err)
	s.False(decision.Active)
	s.Contains(decision.Reason, "consent is already satisfied")
}

func (s *ManagerSuite) TestRejectsWhenAssigned() {
	actx := s.phiContext()
	actx.AssignedToUser = models.Bool(true)

	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, s.clk.Now().Add(time.Hour), actx)

	s.Require().NoError(err)
	s.False(decision.Active)
	s.Contains(decision.Reason, "standard path")
}

func (s *ManagerSuite) TestRejectsPastExpiry() {
	decision, err := s.manager.Admit(context.Background(), s.subject, s.object, s.clk.Now().Add(-time.Minute), s.phiContext())

	s.Require().NoError(err)
	s.False(decision.Active)
	s.Contains(decision.Reason, "not in the future")
}

func (s *ManagerSuite) TestAuditFailureBlocksGrant() {
	s.auditor.err = errors.New("sink down")

	_, err := s.manager.Admit(context.Background(), s.subject, s.object, s.clk.Now().Add(time.Hour), s.phiContext())

	s.Require().Error(err, "an unrecorded emergency grant must never be returned")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Mock implementations
// =============================================================================

type mockAuditPublisher struct {
	events []audit.Event
	err    error
}

func (m *mockAuditPublisher) Emit(ctx context.Context, event audit.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}
