// Package main provides a CLI tool for generating test subject tokens for the
// Custos API. These tokens use the dev signing key and will NOT work in
// production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	jwttoken "custos/internal/jwt_token"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "custos"
	defaultAudience = "custos-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Tenant    string `json:"tenant_root_id,omitempty"`
	ExpiresIn string `json:"expires_in"`
	Usage     string `json:"usage"`
}

func main() {
	userID := flag.String("user-id", "", "Subject user ID. Generated if empty.")
	role := flag.String("role", "CaseManager", "Subject role")
	tenant := flag.String("tenant", "", "Tenant root ID claim (optional)")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	key := flag.String("key", "", "Signing key. Defaults to the dev key.")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *userID == "" {
		*userID = uuid.New().String()
	}
	signingKey := *key
	if signingKey == "" {
		signingKey = devSigningKey
	}

	svc := jwttoken.NewService(signingKey, defaultIssuer, defaultAudience, *ttl)
	token, err := svc.Mint(*userID, *role, *tenant, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			UserID:    *userID,
			Role:      *role,
			Tenant:    *tenant,
			ExpiresIn: ttl.String(),
			Usage:     `curl -H "Authorization: Bearer <token>" ...`,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println(token)
}
