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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"titleregistry/internal/admin"
	"titleregistry/internal/document"
	jwttoken "titleregistry/internal/jwt_token"
	"titleregistry/internal/ledger"
	"titleregistry/internal/ledger/fabric"
	ledgermetrics "titleregistry/internal/ledger/metrics"
	"titleregistry/internal/platform/config"
	"titleregistry/internal/platform/httpserver"
	"titleregistry/internal/platform/logger"
	"titleregistry/internal/platform/metrics"
	"titleregistry/internal/platform/redis"
	"titleregistry/internal/ratelimit"
	"titleregistry/internal/title/handler"
	"titleregistry/internal/title/identity"
	titlemetrics "titleregistry/internal/title/metrics"
	"titleregistry/internal/title/service"
	httptransport "titleregistry/internal/transport/http"
	"titleregistry/pkg/platform/audit/publisher"
	"titleregistry/pkg/platform/circuit"
	authmw "titleregistry/pkg/platform/middleware/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal service packages.
func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	health := map[string]httptransport.HealthCheck{}

	algorithm, err := identity.ParseAlgorithm(cfg.Documents.DigestAlgorithm)
	if err != nil {
		return err
	}
	hasher, err := identity.New(algorithm)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient.Health
	}

	sink, err := openAuditSink(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer sink.close()
	for name, check := range sink.health {
		health[name] = check
	}

	auditPublisher := publisher.NewPublisher(sink.store,
		publisher.WithAsyncBuffer(cfg.Audit.Buffer),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	manager, breaker, err := newLedger(cfg.Ledger, log, reg)
	if err != nil {
		return err
	}
	health["ledger"] = func(context.Context) error {
		if breaker.IsOpen() {
			return errors.New("ledger circuit open")
		}
		return nil
	}

	titles := service.New(manager,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(titlemetrics.New(reg)),
		service.WithHasher(hasher),
		service.WithTransactions(cfg.Ledger.Transactions),
	)
	documents := document.NewFileStore(cfg.Documents.Dir,
		document.WithMaxSize(cfg.Documents.MaxSize),
		document.WithHasher(hasher),
		document.WithLogger(log),
	)

	deps := httptransport.Deps{
		Titles:     handler.New(titles, documents, log, cfg.Documents.MaxSize),
		AdminToken: cfg.Auth.AdminToken,
		Metrics:    metrics.Handler(reg),
		Health:     health,
		Logger:     log,
	}
	if sink.reader != nil {
		deps.Audit = admin.New(sink.reader, log)
	}
	if cfg.Auth.JWTSigningKey != "" {
		jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
		var revocations authmw.TokenRevocationChecker
		if redisClient != nil {
			revocations = redis.NewRevocations(redisClient.Client)
		}
		deps.Auth = authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), revocations, log)
	} else {
		log.Warn("JWT_SIGNING_KEY not set, title routes are unauthenticated",
			"default_identity", manager.DefaultIdentity(),
		)
	}

	var limiterStore ratelimit.Store = ratelimit.NewInMemoryStore()
	if redisClient != nil {
		limiterStore = ratelimit.NewRedisStore(redisClient.Client)
	}
	deps.RateLimit = ratelimit.New(limiterStore, ratelimit.Limits{
		Read:   cfg.RateLimit.Reads,
		Write:  cfg.RateLimit.Writes,
		Window: cfg.RateLimit.Window,
	}, log).Handler

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting title registry",
			"addr", cfg.Server.Addr,
			"channel", manager.Config().Channel,
			"contract", manager.Config().Contract,
			"audit_sink", cfg.Audit.Sink,
			"digest", hasher.Algorithm(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	if cfg.Audit.Consume {
		g.Go(func() error {
			return runAuditConsumer(gctx, cfg, log)
		})
	}

	err = g.Wait()
	log.Info("title registry stopped")
	return err
}

func newLedger(cfg config.LedgerConfig, log *slog.Logger, reg prometheus.Registerer) (*ledger.Manager, *circuit.Breaker, error) {
	lcfg := ledger.Config{
		ProfilePath:   cfg.ProfilePath,
		WalletPath:    cfg.WalletPath,
		Channel:       cfg.Channel,
		Contract:      cfg.Contract,
		Identity:      cfg.Identity,
		CommitTimeout: cfg.CommitTimeout,
		AsLocalhost:   cfg.AsLocalhost,
	}
	if err := lcfg.Validate(); err != nil {
		return nil, nil, err
	}

	var walletOpts []fabric.WalletOption
	if cfg.WalletAgeKey != "" {
		ids, err := fabric.LoadAgeIdentities(cfg.WalletAgeKey)
		if err != nil {
			return nil, nil, err
		}
		walletOpts = append(walletOpts, fabric.WithAgeIdentities(ids...))
	}

	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown),
	)
	manager := ledger.New(lcfg,
		fabric.ProfileLoader{AsLocalhost: cfg.AsLocalhost},
		fabric.NewWallet(cfg.WalletPath, walletOpts...),
		fabric.NewBinder(lcfg.WithDefaults(), fabric.WithLogger(log)),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New(reg)),
		ledger.WithBreaker(breaker),
		ledger.WithTracer(otel.Tracer("titleregistry/ledger")),
	)
	return manager, breaker, nil
}
