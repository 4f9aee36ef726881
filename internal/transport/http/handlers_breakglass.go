package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custos/internal/authz/models"
	httpjson "custos/internal/transport/http/json"
	"custos/internal/transport/http/shared"
	dErrors "custos/pkg/domain-errors"
)

// BreakGlassService admits emergency access windows.
type BreakGlassService interface {
	Admit(ctx context.Context, subject models.Subject, object models.Object, requestedExpiry time.Time, actx *models.AuthorizationContext) (models.BreakGlassDecision, error)
}

type BreakGlassHandler struct {
	admissions BreakGlassService
}

func NewBreakGlassHandler(admissions BreakGlassService) *BreakGlassHandler {
	if admissions == nil {
		panic("httptransport.NewBreakGlassHandler: break-glass service is required")
	}
	return &BreakGlassHandler{admissions: admissions}
}

func (h *BreakGlassHandler) Register(r chi.Router) {
	r.Post("/authz/breakglass", h.handleAdmit)
}

type breakGlassRequest struct {
	Subject         *subjectPayload `json:"subject,omitempty"`
	Object          objectPayload   `json:"object"`
	RequestedExpiry time.Time       `json:"requested_expiry"`
	Context         *contextPayload `json:"context,omitempty"`
}

type breakGlassResponse struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

// handleAdmit evaluates a break-glass admission request. The returned window,
// if any, is what callers put into their decision context as
// break_glass_active / bg_expires_at.
func (h *BreakGlassHandler) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req breakGlassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	var subject models.Subject
	if verified, ok := subjectFromContext(r.Context()); ok {
		subject = verified.subject
	} else if req.Subject != nil {
		subject = models.Subject{Role: req.Subject.Role, UserID: req.Subject.UserID}
	}
	if subject.UserID == "" || subject.Role == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject identity is required"))
		return
	}

	object := models.Object{
		Type:         req.Object.Type,
		ID:           req.Object.ID,
		TenantRootID: req.Object.TenantRootID,
	}

	decision, err := h.admissions.Admit(r.Context(), subject, object, req.RequestedExpiry, req.Context.toModel())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := breakGlassResponse{
		Active: decision.Active,
		Reason: decision.Reason,
	}
	if decision.Active {
		resp.ExpiresAt = &decision.ExpiresAt
	}
	httpjson.WriteJSON(w, http.StatusOK, resp)
}
