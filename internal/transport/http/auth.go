package httptransport

import (
	"context"
	"net/http"

	"custos/internal/authz/models"
	jwttoken "custos/internal/jwt_token"
	"custos/internal/transport/http/shared"
)

type subjectContextKey struct{}

// verifiedSubject is what the bearer token resolved to. TenantRootID is the
// token's tenant claim, used as a trust boundary check against the request.
type verifiedSubject struct {
	subject      models.Subject
	tenantRootID string
}

// SubjectAuth verifies the bearer token when one is present and stashes the
// resolved subject in the request context. Requests without a token pass
// through untouched so trusted in-cluster callers can supply the subject in
// the body.
func SubjectAuth(tokens *jwttoken.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := jwttoken.ExtractBearer(header)
			if err != nil {
				shared.WriteError(w, err)
				return
			}
			subject, tenant, err := tokens.Verify(raw)
			if err != nil {
				shared.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey{}, verifiedSubject{
				subject:      subject,
				tenantRootID: tenant,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func subjectFromContext(ctx context.Context) (verifiedSubject, bool) {
	v, ok := ctx.Value(subjectContextKey{}).(verifiedSubject)
	return v, ok
}
