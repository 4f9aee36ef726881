package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/authz/models"
	httpjson "custos/internal/transport/http/json"
	"custos/internal/transport/http/shared"
	dErrors "custos/pkg/domain-errors"
)

// DecisionService is the engine surface the transport depends on.
type DecisionService interface {
	Decide(ctx context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.AuthorizationDecision, error)
	Simulate(ctx context.Context, subject models.Subject, object models.Object, action string, actx *models.AuthorizationContext) (*models.PolicySimulationResult, error)
	Reload(ctx context.Context) error
	CurrentPolicyVersion() string
}

type AuthzHandler struct {
	decisions DecisionService
}

func NewAuthzHandler(decisions DecisionService) *AuthzHandler {
	if decisions == nil {
		panic("httptransport.NewAuthzHandler: decision service is required")
	}
	return &AuthzHandler{decisions: decisions}
}

func (h *AuthzHandler) Register(r chi.Router) {
	r.Post("/authz/decide", h.handleDecide)
	r.Post("/authz/simulate", h.handleSimulate)
	r.Get("/authz/policy/version", h.handlePolicyVersion)
}

// RegisterAdmin mounts the operational endpoints; the router puts these
// behind the admin token guard.
func (h *AuthzHandler) RegisterAdmin(r chi.Router) {
	r.Post("/authz/policy/reload", h.handlePolicyReload)
}

func (h *AuthzHandler) handleDecide(w http.ResponseWriter, r *http.Request) {
	subject, object, action, actx, err := h.parseDecideRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	decision, err := h.decisions.Decide(r.Context(), subject, object, action, actx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, decisionFromModel(decision))
}

func (h *AuthzHandler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	subject, object, action, actx, err := h.parseDecideRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.decisions.Simulate(r.Context(), subject, object, action, actx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, simulationFromModel(result))
}

func (h *AuthzHandler) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if err := h.decisions.Reload(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, policyVersionResponse{
		PolicyVersion: h.decisions.CurrentPolicyVersion(),
	})
}

func (h *AuthzHandler) handlePolicyVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteJSON(w, http.StatusOK, policyVersionResponse{
		PolicyVersion: h.decisions.CurrentPolicyVersion(),
	})
}

// parseDecideRequest decodes the body and resolves the acting subject. A
// verified bearer token always wins over the body's subject block, and the
// token's tenant claim must agree with the context's tenant anchor.
func (h *AuthzHandler) parseDecideRequest(r *http.Request) (models.Subject, models.Object, string, *models.AuthorizationContext, error) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return models.Subject{}, models.Object{}, "", nil, dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}

	actx := req.Context.toModel()

	var subject models.Subject
	if verified, ok := subjectFromContext(r.Context()); ok {
		subject = verified.subject
		if actx.TenantRootID == "" {
			actx.TenantRootID = verified.tenantRootID
		} else if verified.tenantRootID != "" && actx.TenantRootID != verified.tenantRootID {
			return models.Subject{}, models.Object{}, "", nil,
				dErrors.New(dErrors.CodeForbidden, "context tenant does not match token tenant")
		}
	} else if req.Subject != nil {
		subject = models.Subject{Role: req.Subject.Role, UserID: req.Subject.UserID}
	}

	object := models.Object{
		Type:         req.Object.Type,
		ID:           req.Object.ID,
		TenantRootID: req.Object.TenantRootID,
	}

	return subject, object, req.Action, actx, nil
}
