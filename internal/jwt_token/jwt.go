// Package jwttoken resolves the acting subject from signed bearer tokens.
// The decision API trusts the caller's subject; this package is where that
// trust is established for the HTTP surface.
package jwttoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"custos/internal/authz/models"
	dErrors "custos/pkg/domain-errors"
)

// SubjectClaims carries the identity facts the decision engine needs.
type SubjectClaims struct {
	Role         string `json:"role"`
	TenantRootID string `json:"tenant_root_id,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies subject tokens with a shared HS256 key.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
}

func NewService(signingKey, issuer, audience string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// Mint issues a signed subject token. Used by the token generator tool and
// by tests; production callers bring tokens from their identity provider.
func (s *Service) Mint(userID, role, tenantRootID string, now time.Time) (string, error) {
	if userID == "" || role == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id and role are required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SubjectClaims{
		Role:         role,
		TenantRootID: tenantRootID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.New().String(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "token signing failed")
	}
	return signed, nil
}

// Verify checks signature, algorithm, expiry, issuer and audience, and
// returns the resolved subject.
func (s *Service) Verify(tokenString string) (models.Subject, string, error) {
	if tokenString == "" {
		return models.Subject{}, "", dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	claims := new(SubjectClaims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing algorithm")
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Subject{}, "", dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return models.Subject{}, "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Subject == "" || claims.Role == "" {
		return models.Subject{}, "", dErrors.New(dErrors.CodeUnauthorized, "token is missing subject identity")
	}

	return models.Subject{Role: claims.Role, UserID: claims.Subject}, claims.TenantRootID, nil
}

// ExtractBearer pulls the raw token out of an Authorization header.
func ExtractBearer(authHeader string) (string, error) {
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid authorization header")
	}
	return authHeader[len(prefix):], nil
}
