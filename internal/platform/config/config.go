package config

import (
	"os"
	"time"
)

// Server captures service level configuration.
//
// ConsentGraceWindow and BreakGlassMaxDuration are compliance parameters, not
// tuning knobs: the grace window bounds how long recently expired consent is
// still honored, and the break-glass cap bounds every emergency access window
// regardless of what the caller requested.
type Server struct {
	Addr                  string
	PolicyFile            string
	JWTSigningKey         string
	AdminToken            string
	ConsentGraceWindow    time.Duration
	BreakGlassMaxDuration time.Duration
	AuditBufferSize       int
}

const (
	defaultConsentGraceWindow    = 72 * time.Hour
	defaultBreakGlassMaxDuration = 4 * time.Hour
	defaultAuditBufferSize       = 1024
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CUSTOS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	policyFile := os.Getenv("CUSTOS_POLICY_FILE")
	if policyFile == "" {
		policyFile = "policy.yaml"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	graceWindow := durationFromEnv("CUSTOS_CONSENT_GRACE_WINDOW", defaultConsentGraceWindow)
	breakGlassMax := durationFromEnv("CUSTOS_BREAKGLASS_MAX_DURATION", defaultBreakGlassMaxDuration)

	// Empty admin token disables the guard on operational endpoints; set it
	// anywhere that is not a local dev loop.
	adminToken := os.Getenv("CUSTOS_ADMIN_TOKEN")

	return Server{
		Addr:                  addr,
		PolicyFile:            policyFile,
		JWTSigningKey:         jwtSigningKey,
		AdminToken:            adminToken,
		ConsentGraceWindow:    graceWindow,
		BreakGlassMaxDuration: breakGlassMax,
		AuditBufferSize:       defaultAuditBufferSize,
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
