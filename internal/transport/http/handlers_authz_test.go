package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custos/internal/authz/models"
	jwttoken "custos/internal/jwt_token"
	"custos/internal/platform/health"
	"custos/internal/platform/logger"
	dErrors "custos/pkg/domain-errors"
)

func newTestRouter(svc *mockDecisionService) (http.Handler, *jwttoken.Service) {
	tokens := jwttoken.NewService("test-key", "custos", "custos-api", time.Hour)
	return NewRouter(NewAuthzHandler(svc), NewBreakGlassHandler(&mockBreakGlassService{}), health.New(), tokens, "", logger.New()), tokens
}

func postJSON(t *testing.T, router http.Handler, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decideBody() map[string]any {
	return map[string]any{
		"subject": map[string]any{"role": "CaseManager", "user_id": "user_1"},
		"object":  map[string]any{"type": "Client", "id": "client_9", "tenant_root_id": "org_123"},
		"action":  "read",
		"context": map[string]any{
			"purpose":        "care",
			"contains_phi":   true,
			"consent_ok":     true,
			"same_org":       true,
			"tenant_root_id": "org_123",
		},
	}
}

func TestHandleDecide(t *testing.T) {
	svc := &mockDecisionService{
		decision: &models.AuthorizationDecision{
			Decision:      models.DecisionAllow,
			MatchedPolicy: "care-team-read",
			Reasoning:     "rule care-team-read permitted access",
			PolicyVersion: "v1",
			CorrelationID: "corr-1",
		},
	}
	router, _ := newTestRouter(svc)

	rec := postJSON(t, router, "/authz/decide", decideBody(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp decisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "allow", resp.Decision)
	assert.Equal(t, "care-team-read", resp.MatchedPolicy)

	require.NotNil(t, svc.gotContext)
	assert.Equal(t, "CaseManager", svc.gotSubject.Role)
	assert.Equal(t, "org_123", svc.gotContext.TenantRootID)
	require.NotNil(t, svc.gotContext.ContainsPHI)
	assert.True(t, *svc.gotContext.ContainsPHI)
}

func TestHandleDecideInvalidBody(t *testing.T) {
	router, _ := newTestRouter(&mockDecisionService{})

	req := httptest.NewRequest(http.MethodPost, "/authz/decide", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_input")
}

func TestHandleDecideEngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad request", dErrors.New(dErrors.CodeBadRequest, "action is required"), http.StatusBadRequest},
		{"audit unavailable", dErrors.New(dErrors.CodeInternal, "decision audit unavailable"), http.StatusInternalServerError},
		{"broken rule set", dErrors.New(dErrors.CodeConfig, "no policy rule set is loaded"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(&mockDecisionService{err: tt.err})
			rec := postJSON(t, router, "/authz/decide", decideBody(), nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleSimulate(t *testing.T) {
	svc := &mockDecisionService{
		simulation: &models.PolicySimulationResult{
			AuthorizationDecision: models.AuthorizationDecision{
				Decision:      models.DecisionDeny,
				Reasoning:     "no policy rule matched the request; default posture is deny",
				PolicyVersion: "v1",
			},
			ContextSnapshot: &models.AuthorizationContext{TenantRootID: "org_123"},
			EvaluationSteps: []string{"Tenant check: match (org_123)"},
			Warnings:        []string{"tenant_root_id is required for all authorization contexts"},
		},
	}
	router, _ := newTestRouter(svc)

	rec := postJSON(t, router, "/authz/simulate", decideBody(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp simulationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "deny", resp.Decision)
	assert.NotEmpty(t, resp.EvaluationSteps)
	assert.NotEmpty(t, resp.Warnings)
	require.NotNil(t, resp.ContextSnapshot)
	assert.Equal(t, "org_123", resp.ContextSnapshot.TenantRootID)
}

func TestTokenSubjectWinsOverBody(t *testing.T) {
	svc := &mockDecisionService{decision: &models.AuthorizationDecision{Decision: models.DecisionDeny}}
	router, tokens := newTestRouter(svc)

	token, err := tokens.Mint("token_user", "Auditor", "org_123", time.Now())
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	rec := postJSON(t, router, "/authz/decide", decideBody(), header)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token_user", svc.gotSubject.UserID)
	assert.Equal(t, "Auditor", svc.gotSubject.Role)
}

func TestTokenTenantMismatchRejected(t *testing.T) {
	svc := &mockDecisionService{decision: &models.AuthorizationDecision{Decision: models.DecisionDeny}}
	router, tokens := newTestRouter(svc)

	token, err := tokens.Mint("token_user", "Auditor", "org_other", time.Now())
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	rec := postJSON(t, router, "/authz/decide", decideBody(), header)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	router, _ := newTestRouter(&mockDecisionService{})

	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")
	rec := postJSON(t, router, "/authz/decide", decideBody(), header)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePolicyVersionAndReload(t *testing.T) {
	svc := &mockDecisionService{version: "2026-03-01"}
	router, _ := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/authz/policy/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2026-03-01")

	rec = postJSON(t, router, "/authz/policy/reload", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.reloaded)
}

func TestReloadRequiresAdminToken(t *testing.T) {
	svc := &mockDecisionService{version: "v1"}
	tokens := jwttoken.NewService("test-key", "custos", "custos-api", time.Hour)
	router := NewRouter(NewAuthzHandler(svc), NewBreakGlassHandler(&mockBreakGlassService{}), health.New(), tokens, "ops-secret", logger.New())

	rec := postJSON(t, router, "/authz/policy/reload", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, svc.reloaded)

	header := http.Header{}
	header.Set("X-Admin-Token", "ops-secret")
	rec = postJSON(t, router, "/authz/policy/reload", map[string]any{}, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.reloaded)
}

func TestHandleReloadFailureKeepsServing(t *testing.T) {
	svc := &mockDecisionService{
		version:   "v1",
		reloadErr: dErrors.New(dErrors.CodeConfig, "policy reload failed"),
	}
	router, _ := newTestRouter(svc)

	rec := postJSON(t, router, "/authz/policy/reload", map[string]any{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(&mockDecisionService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// =====================================================================
// Mocks
// =====================================================================

type mockDecisionService struct {
	decision   *models.AuthorizationDecision
	simulation *models.PolicySimulationResult
	err        error
	version    string
	reloadErr  error
	reloaded   bool

	gotSubject models.Subject
	gotObject  models.Object
	gotAction  string
	gotContext *models.AuthorizationContext
}

func (m *mockDecisionService) Decide(_ context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.AuthorizationDecision, error) {
	m.gotSubject, m.gotObject, m.gotAction, m.gotContext = subject, object, action, actx
	if m.err != nil {
		return nil, m.err
	}
	return m.decision, nil
}

func (m *mockDecisionService) Simulate(_ context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.PolicySimulationResult, error) {
	m.gotSubject, m.gotObject, m.gotAction, m.gotContext = subject, object, action, actx
	if m.err != nil {
		return nil, m.err
	}
	return m.simulation, nil
}

func (m *mockDecisionService) Reload(_ context.Context) error {
	if m.reloadErr != nil {
		return m.reloadErr
	}
	m.reloaded = true
	return nil
}

func (m *mockDecisionService) CurrentPolicyVersion() string {
	return m.version
}

type mockBreakGlassService struct {
	decision models.BreakGlassDecision
	err      error

	gotSubject models.Subject
	gotExpiry  time.Time
}

func (m *mockBreakGlassService) Admit(_ context.Context, subject models.Subject, _ models.Object, requestedExpiry time.Time, _ *models.AuthorizationContext) (models.BreakGlassDecision, error) {
	m.gotSubject, m.gotExpiry = subject, requestedExpiry
	if m.err != nil {
		return models.BreakGlassDecision{}, m.err
	}
	return m.decision, nil
}
