package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"honeypot-lab/internal/api"
	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/domain/services/ai"
	grpcserver "honeypot-lab/internal/grpc"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if cfg.IsProduction() {
		log = logger.NewProduction()
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting honeypot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra := initInfrastructure(ctx, cfg, log)
	defer infra.close()

	// Session state
	store := services.NewSessionStore(services.SessionStoreConfig{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
	}, log)
	patterns := services.NewPatternLibrary()
	aggregator := services.NewSessionAggregator(store, services.NewEvidenceExtractor(patterns, log), patterns, log)

	// Reply generation
	persona := ai.NewPersonaResponder(log)
	generators := make([]ai.ReplyGenerator, 0, 2)
	if cfg.LLM.Enabled {
		gemini, err := ai.NewGeminiResponder(ctx, ai.GeminiConfig{
			APIKeys: cfg.LLM.APIKeys,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Gemini, using persona replies only")
		} else {
			generators = append(generators, gemini)
		}
	}
	generators = append(generators, persona)
	replies := ai.NewFallbackChain(log, generators...)

	// runs under the store's lock: must not call back into the store
	store.OnEvict(func(sessionID string) {
		persona.Forget(sessionID)
		metrics.SessionsEvictedTotal.Inc()
		metrics.ActiveSessions.Dec()
	})

	// Report delivery
	policy, err := services.NewReportPolicy(cfg.Report.Policy, cfg.Report.MinMessages, cfg.Report.MaxMessages)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid report policy")
	}
	if cfg.Callback.URL == "" {
		log.Warn().Msg("no callback URL configured, reports will not be delivered")
	}
	dispatcher := services.NewCallbackDispatcher(services.CallbackDispatcherConfig{
		URL:         cfg.Callback.URL,
		Timeout:     cfg.Callback.Timeout,
		Workers:     cfg.Callback.Workers,
		QueueSize:   cfg.Callback.QueueSize,
		MaxAttempts: cfg.Callback.MaxAttempts,
		BaseDelay:   cfg.Callback.BaseDelay,
	}, log)

	// Event streaming
	eventBus := streaming.NewEventBus(infra.nats, log)
	wsHub := streaming.NewWebSocketHub(log)
	eventPublisher := streaming.NewEventBusPublisher(eventBus, wsHub)
	dispatcher.AddObserver(eventPublisher)

	deps := handlers.Dependencies{
		Dispatcher:       dispatcher,
		EventBus:         eventBus,
		WSHub:            wsHub,
		Checks:           make(map[string]handlers.Pinger),
		MaxMessageLength: cfg.Server.MaxMessageLength,
		Version:          cfg.App.Version,
		Logger:           log,
	}
	healthChecks := make(map[string]grpcserver.Checker)

	var rateStore apimiddleware.RateLimitStore
	if infra.redis != nil {
		reportCache := cache.NewReportCache(infra.redis, cfg.Redis.ReportTTL, log)
		dispatcher.AddObserver(reportCache)
		deps.Reports = reportCache
		deps.Checks["redis"] = infra.redis
		healthChecks["redis"] = infra.redis
		rateStore = infra.redis
	}
	if infra.db != nil {
		reports := repository.NewReportRepository(infra.db.Pool())
		dispatcher.AddObserver(reports)
		deps.Archive = reports
		deps.Checks["postgres"] = infra.db
		healthChecks["postgres"] = infra.db
	}
	if infra.nats != nil {
		deps.Checks["nats"] = infra.nats
		healthChecks["nats"] = infra.nats
	}
	if cfg.RateLimit.Enabled && rateStore == nil {
		log.Warn().Msg("rate limiting needs Redis, continuing without it")
	}

	engagement := services.NewEngagementService(services.EngagementDeps{
		Aggregator: aggregator,
		Detector:   services.NewScamDetector(patterns),
		Policy:     policy,
		Replies:    replies,
		Submitter:  dispatcher,
		Events:     eventPublisher,
	}, log)
	deps.Engagement = engagement

	router := api.NewRouter(*cfg, handlers.NewHandlers(deps), rateStore, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}
	grpcServer := grpc.NewServer()
	healthServer := grpcserver.NewHealthServer(healthChecks, 10*time.Second, log)
	healthServer.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		healthServer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", grpcListener.Addr().String()).Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		healthServer.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}

	dispatcher.Stop()
	eventBus.Close()

	log.Info().
		Int64("sessions_created", store.Stats().Created).
		Int64("reports_delivered", dispatcher.Stats().Delivered).
		Msg("shutdown complete")
}

type infrastructure struct {
	db    *database.PostgresDB
	redis *cache.RedisCache
	nats  *streaming.NATSPublisher
}

// initInfrastructure connects every enabled backend. Each one is optional:
// a failed connection is logged and the service runs without it.
func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) *infrastructure {
	infra := &infrastructure{}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without report archive")
		} else {
			infra.db = db
		}
	}

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without report cache")
		} else {
			infra.redis = redisCache
		}
	}

	if cfg.NATS.Enabled {
		nats, err := streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without event replication")
		} else {
			infra.nats = nats
		}
	}

	return infra
}

// close releases the stores; the NATS connection belongs to the event bus
func (i *infrastructure) close() {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close Redis")
		}
	}
	if i.db != nil {
		i.db.Close()
	}
}
