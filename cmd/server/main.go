package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"custos/internal/audit"
	"custos/internal/authz/breakglass"
	"custos/internal/authz/consent"
	consentstore "custos/internal/authz/consent/store"
	"custos/internal/authz/engine"
	"custos/internal/authz/metrics"
	jwttoken "custos/internal/jwt_token"
	"custos/internal/platform/clock"
	"custos/internal/platform/config"
	"custos/internal/platform/health"
	"custos/internal/platform/httpserver"
	"custos/internal/platform/logger"
	"custos/internal/policy"
	httptransport "custos/internal/transport/http"
)

var errNoPolicy = errors.New("no policy rule set loaded")

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing custos",
		"addr", cfg.Addr,
		"policy_file", cfg.PolicyFile,
	)

	ctx := context.Background()
	clk := clock.Real{}
	m := metrics.New()

	store, err := policy.NewStore(ctx, policy.NewFileLoader(cfg.PolicyFile), policy.WithLogger(log))
	if err != nil {
		log.Error("policy load failed", "error", err, "policy_file", cfg.PolicyFile)
		os.Exit(1)
	}

	auditStore := audit.NewInMemoryStore()
	auditor := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(cfg.AuditBufferSize),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	consents := consent.New(consentstore.New(), clk, cfg.ConsentGraceWindow,
		consent.WithMetrics(m),
		consent.WithLogger(log),
	)

	eng := engine.New(store, consents, auditor, clk,
		engine.WithMetrics(m),
		engine.WithLogger(log),
	)

	healthHandler := health.New()
	healthHandler.RegisterCheck("policy", func() error {
		if eng.CurrentPolicyVersion() == "" {
			return errNoPolicy
		}
		return nil
	})

	admissions := breakglass.New(cfg.BreakGlassMaxDuration, clk, auditor,
		breakglass.WithMetrics(m),
		breakglass.WithLogger(log),
	)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "custos", "custos-api", time.Hour)
	router := httptransport.NewRouter(
		httptransport.NewAuthzHandler(eng),
		httptransport.NewBreakGlassHandler(admissions),
		healthHandler,
		tokens,
		cfg.AdminToken,
		log,
	)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server",
		"addr", cfg.Addr,
		"policy_version", eng.CurrentPolicyVersion(),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
