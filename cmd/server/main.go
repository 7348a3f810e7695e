package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/answergate/answergate/internal/audit"
	"github.com/answergate/answergate/internal/authn"
	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/gate"
	"github.com/answergate/answergate/internal/index"
	"github.com/answergate/answergate/internal/pipeline"
	"github.com/answergate/answergate/internal/rankcache"
	"github.com/answergate/answergate/internal/ranker"
	"github.com/answergate/answergate/internal/ratelimit"
	"github.com/answergate/answergate/internal/server"
	"github.com/answergate/answergate/pkg/config"
	"github.com/answergate/answergate/pkg/health"
	"github.com/answergate/answergate/pkg/kafka"
	"github.com/answergate/answergate/pkg/logger"
	"github.com/answergate/answergate/pkg/metrics"
	"github.com/answergate/answergate/pkg/postgres"
	pkgredis "github.com/answergate/answergate/pkg/redis"
	"github.com/answergate/answergate/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting answer gate", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source, "fga_mode", cfg.FGA.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collection, pgClient, err := loadCorpus(ctx, cfg)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	if pgClient != nil {
		defer pgClient.Close()
	}

	ix, err := index.Build(collection)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}
	slog.Info("index built", "documents", ix.DocCount(), "terms", ix.TermCount())

	m := metrics.New()

	checker, err := newChecker(cfg)
	if err != nil {
		slog.Error("failed to create authorization checker", "error", err)
		os.Exit(1)
	}
	g := gate.New(checker, cfg.FGA.CheckTimeout, m)

	opts := []pipeline.Option{pipeline.WithMetrics(m)}

	var redisClient *pkgredis.Client
	if cfg.Retrieval.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, rank caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			byID := make(map[string]corpus.Document, len(collection))
			for _, doc := range collection {
				byID[doc.ID] = doc
			}
			cache := rankcache.New(redisClient, cfg.Redis, func(id string) (corpus.Document, bool) {
				doc, ok := byID[id]
				return doc, ok
			})
			opts = append(opts, pipeline.WithRankCache(cache))
			slog.Info("rank cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var trail *audit.Trail
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.AuditTopic)
		defer producer.Close()
		trail = audit.NewTrail(producer, 4096)
		trail.Start(ctx)
		defer trail.Close()
		opts = append(opts, pipeline.WithAuditTrail(trail))
		slog.Info("audit trail started", "topic", cfg.Kafka.AuditTopic)
	}

	p := pipeline.New(ranker.New(ix), g, cfg.Retrieval.TopK, opts...)

	healthChecker := health.NewChecker()
	healthChecker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if ix.DocCount() > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents indexed", ix.DocCount())}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "empty index"}
	})
	healthChecker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if fgaChecker, ok := checker.(*authz.FGAChecker); ok {
		healthChecker.Register("fga", func(ctx context.Context) health.ComponentHealth {
			state := fgaChecker.BreakerState()
			if state == resilience.StateOpen {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit breaker open"}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: "circuit breaker " + state.String()}
		})
	}
	if pgClient != nil {
		healthChecker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, time.Minute)
	defer limiter.Close()

	router := server.Router(server.RouterConfig{
		Handler:        server.New(p, collection),
		Authenticator:  newAuthenticator(cfg),
		Limiter:        limiter,
		Health:         healthChecker,
		Metrics:        m,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			slog.Info("metrics endpoint listening", "addr", addr)
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("answer gate listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Wait for Shutdown to finish draining in-flight requests before the
	// deferred closes (audit trail, limiter, clients) run.
	<-shutdownDone
	slog.Info("answer gate stopped")
}

// loadCorpus reads the document collection from the configured source.
// The postgres client is returned so main can close it and register its
// health check; it is nil for the file source.
func loadCorpus(ctx context.Context, cfg *config.Config) ([]corpus.Document, *postgres.Client, error) {
	switch cfg.Corpus.Source {
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		docs, err := corpus.LoadPostgres(ctx, client, cfg.Corpus.Table)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return docs, client, nil
	default:
		docs, err := corpus.LoadFile(cfg.Corpus.Path)
		return docs, nil, err
	}
}

// newChecker selects the authorization decision point: the remote FGA
// Check API, or the offline role policy for local demos.
func newChecker(cfg *config.Config) (authz.Checker, error) {
	switch cfg.FGA.Mode {
	case "fga":
		return authz.NewFGAChecker(cfg.FGA), nil
	case "roles":
		slog.Warn("using offline role policy; enable fga.mode=fga for real authorization")
		return authz.NewRolePolicy(), nil
	default:
		return nil, fmt.Errorf("unknown fga.mode %q", cfg.FGA.Mode)
	}
}

// newAuthenticator builds the credential chain: JWT when a tenant is
// configured, plus the dev header when explicitly allowed.
func newAuthenticator(cfg *config.Config) authn.Authenticator {
	var chain authn.Chain
	if cfg.Auth.Domain != "" || cfg.Auth.Issuer != "" {
		chain = append(chain, authn.NewJWT(cfg.Auth))
	}
	if cfg.Auth.AllowDevAuth {
		chain = append(chain, authn.DevHeader{})
	}
	if len(chain) == 0 {
		slog.Warn("no authenticator configured; all requests will be rejected")
	}
	return chain
}
