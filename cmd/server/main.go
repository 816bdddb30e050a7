package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	adminhandler "verethfier/internal/admin/handler"
	assignmentservice "verethfier/internal/assignment/service"
	jwttoken "verethfier/internal/jwt_token"
	nonceservice "verethfier/internal/nonce/service"
	"verethfier/internal/platform/config"
	"verethfier/internal/platform/httpserver"
	"verethfier/internal/platform/logger"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/ratelimit"
	"verethfier/internal/reconcile"
	ruleservice "verethfier/internal/rules/service"
	"verethfier/internal/signature"
	httptransport "verethfier/internal/transport/http"
	"verethfier/internal/verification/engine"
	verificationhandler "verethfier/internal/verification/handler"
	verificationservice "verethfier/internal/verification/service"
)

const (
	adminTokenIssuer   = "verethfier"
	adminTokenAudience = "verethfier-admin"
	shutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the services, serves HTTP and drives the reverification
// scheduler until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	deps, err := buildInfra(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer deps.Close()

	nonces, err := nonceservice.New(deps.nonces,
		nonceservice.WithTTL(cfg.Nonce.TTL),
		nonceservice.WithLogger(log),
		nonceservice.WithMetrics(m),
		nonceservice.WithAuditPublisher(deps.audit),
	)
	if err != nil {
		return err
	}
	rules, err := ruleservice.New(deps.rules,
		ruleservice.WithLogger(log),
		ruleservice.WithAuditPublisher(deps.audit),
	)
	if err != nil {
		return err
	}
	eng, err := engine.New(deps.rules, deps.oracle,
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	assignments, err := assignmentservice.New(deps.assignments, deps.platform,
		assignmentservice.WithLogger(log),
		assignmentservice.WithMetrics(m),
		assignmentservice.WithAuditPublisher(deps.audit),
	)
	if err != nil {
		return err
	}
	verifier, err := verificationservice.New(signature.NewVerifier(), nonces, deps.rules, eng, assignments,
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(m),
		verificationservice.WithAuditPublisher(deps.audit),
	)
	if err != nil {
		return err
	}

	reconcileOpts := []reconcile.Option{
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithAuditPublisher(deps.audit),
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithBatchDelay(cfg.Reconcile.BatchDelay),
		reconcile.WithStaleness(cfg.Reconcile.Staleness),
		reconcile.WithRetryWindow(cfg.Reconcile.RetryWindow),
	}
	if cfg.Reconcile.GrantNew {
		reconcileOpts = append(reconcileOpts, reconcile.WithGrantNewRules(deps.rules, assignments))
	}
	reconciler, err := reconcile.New(deps.assignments, eng, deps.platform, reconcileOpts...)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(deps.limits, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
		ratelimit.WithTrustForwardedFor(cfg.RateLimit.TrustForwardedFor),
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
	)
	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, adminTokenIssuer, adminTokenAudience)
	registrars := []httptransport.Registrar{
		httptransport.WithMiddleware(verificationhandler.New(verifier, log), limiter.Limit("verification")),
		adminhandler.New(rules, reconciler, assignments, jwt, log),
	}
	router := httptransport.NewRouter(log, registrars,
		httptransport.WithMetricsGatherer(registry),
		httptransport.WithReadinessChecks(deps.checks...),
	)
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting verethfier", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if cfg.Reconcile.Enabled {
		scheduler, err := reconcile.NewScheduler(reconciler, cfg.Reconcile.Interval,
			reconcile.WithSchedulerLogger(log),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if janitor := deps.nonceJanitor; janitor != nil {
		g.Go(func() error {
			janitor.RunJanitor(gctx, cfg.Nonce.JanitorInterval, log)
			return nil
		})
	}

	return g.Wait()
}
