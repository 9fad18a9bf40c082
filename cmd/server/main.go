package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"deltadebate/config"
	"deltadebate/db"
	"deltadebate/internal/debate"
	"deltadebate/internal/matching"
	"deltadebate/internal/memstore"
	"deltadebate/internal/pairing"
	"deltadebate/internal/phase"
	"deltadebate/internal/scoring"
	"deltadebate/middlewares"
	"deltadebate/routes"
	"deltadebate/services"
	"deltadebate/utils"
	"deltadebate/websocket"
)

// stores groups the storage backends selected by configuration.
type stores struct {
	phases  phase.Store
	debates services.DebateStore
	matches matching.Store
	reviews scoring.Store
	close   func(context.Context)
}

func main() {
	configPath := flag.String("config", "./config/config.yml", "path to the YAML configuration")
	seed := flag.Bool("seed", false, "queue the sample debate prompts on startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer st.close(context.Background())

	hub := websocket.NewPhaseHub(logger)
	var (
		locker    debate.Locker    = debate.NewMemoryLocker()
		publisher debate.Publisher = hub
	)
	if cfg.Redis.Enabled {
		rdb, err := debate.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		locker, publisher = startRedis(ctx, rdb, cfg.Redis.Stream, hub, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
	}

	phaseCfg, err := cfg.PhaseConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid phase config")
	}
	phases, err := phase.NewScheduler(st.phases, phaseCfg, logger,
		phase.WithLocker(locker),
		phase.WithPublisher(publisher),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create scheduler")
	}

	svc := services.NewDebateService(
		st.debates,
		phases,
		matching.NewMatcher(st.matches, st.debates, locker, logger),
		scoring.NewScorer(st.reviews, st.debates, logger),
		pairing.NewSolver(pairing.SimplexEngine{}, logger),
		logger,
	)

	if *seed {
		if _, err := utils.SeedDebateData(ctx, svc, utils.SamplePrompts, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed sample debates")
		}
	}

	enforcer, err := middlewares.NewEnforcer(cfg.RBAC.Policies)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build RBAC enforcer")
	}

	router := setupRouter(cfg, logger)
	routes.Setup(router, routes.Deps{Service: svc, Enforcer: enforcer, Hub: hub, Logger: logger})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Str("driver", cfg.Database.Driver).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.Database.Driver != "mongo" {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		debates := memstore.NewDebateStore()
		return &stores{
			phases:  memstore.NewPhaseStore(),
			debates: debates,
			matches: memstore.NewMatchStore(),
			reviews: memstore.NewReviewStore(),
			close:   func(context.Context) {},
		}, nil
	}

	client, database, err := db.ConnectMongoDB(ctx, cfg.Database.URI, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &stores{
		phases:  db.NewPhaseStore(database),
		debates: db.NewDebateStore(database),
		matches: db.NewMatchStore(database),
		reviews: db.NewReviewStore(database),
		close: func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				logger.Warn().Err(err).Msg("mongo disconnect failed")
			}
		},
	}, nil
}

// startRedis routes phase events through the stream so every instance's
// hub sees them, and shares locks across instances.
func startRedis(ctx context.Context, rdb *redis.Client, stream string, hub *websocket.PhaseHub, logger zerolog.Logger) (debate.Locker, debate.Publisher) {
	consumer := debate.NewStreamConsumer(rdb, stream, hub, logger)
	if err := consumer.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("stream consumer unavailable; broadcasting locally")
		return debate.NewRedisLocker(rdb, 0, 0).WithLogger(logger), hub
	}
	go consumer.Run(ctx)
	return debate.NewRedisLocker(rdb, 0, 0).WithLogger(logger), debate.NewStreamPublisher(rdb, stream)
}

func setupRouter(cfg *config.Config, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middlewares.RequestLogger(logger))

	router.SetTrustedProxies([]string{"127.0.0.1", "localhost"})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middlewares.UserHeader, middlewares.RoleHeader, middlewares.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middlewares.RequestIDHeader},
		AllowCredentials: true,
	}))
	router.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}
