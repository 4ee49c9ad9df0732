package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"quiz-arena/internal/app"
	"quiz-arena/internal/config"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
	"quiz-arena/internal/infra/postgres"
	infraredis "quiz-arena/internal/infra/redis"
	"quiz-arena/internal/logging"
	"quiz-arena/internal/telemetry"
	transport "quiz-arena/internal/transport/http"
)

const serviceName = "quiz-arena"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz arena server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServer(ctx, *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	checks := map[string]transport.HealthCheck{}

	// --- Postgres ---
	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		if cfg.Postgres.AutoMigrate {
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		db = postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		logger.Info("connected to postgres")
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	// --- Quiz content ---
	seeds, err := loadSeedQuizzes(cfg.Quiz.SeedFile)
	if err != nil {
		return err
	}
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(seeds)
	if pool != nil {
		pgLoader := postgres.NewQuizLoader(pool)
		for _, quiz := range seeds {
			if err := pgLoader.SaveQuiz(ctx, quiz); err != nil {
				return err
			}
		}
		loader = pgLoader
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	// --- Sessions ---
	var registry app.SessionRegistry = memory.NewSessionStore()
	var gateway app.Gateway = memory.NewGateway()
	var redisStore *infraredis.SessionStore
	broker := memory.NewBroker()
	var publisher app.Publisher = broker
	if redisClient != nil {
		host, _ := os.Hostname()
		redisStore = infraredis.NewSessionStore(redisClient, redisTTL, host)
		registry = redisStore
		gateway = infraredis.NewGateway(redisClient, config.TTLDuration(cfg.Session.Retention, time.Hour))
		publisher = app.MultiPublisher{broker, infraredis.NewPublisher(redisClient)}
	}
	if db != nil {
		gateway = postgres.NewGateway(db)
	}

	if !cfg.Auth.OpenRegistration {
		logger.Warn("registration is closed; only admins and registered participants can join")
	}
	clock := clockwork.NewRealClock()
	deps := app.SessionDeps{
		Publisher:   publisher,
		Gateway:     gateway,
		Authorizer:  memory.NewAuthorizer(cfg.Auth.OpenRegistration, cfg.Auth.Admins...),
		Clock:       clock,
		Logger:      logger,
		IdleTimeout: config.TTLDuration(cfg.Session.IdleTimeout, 30*time.Minute),
		RetryDelay:  config.TTLDuration(cfg.Session.RetryDelay, time.Second),
	}
	sessions := app.NewQuizService(registry, quizRepo, deps, config.TTLDuration(cfg.Session.Retention, time.Hour))
	tournaments := app.NewTournamentService(sessions, gateway, publisher, clock, logger)

	router := transport.NewRouter(transport.Deps{
		Sessions:    sessions,
		Tournaments: tournaments,
		Events:      broker,
		Defaults:    cfg.SessionDefaults(),
		Checks:      checks,
		Logger:      logger,
	})
	server := transport.NewServer(":"+finalPort, router,
		config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
		logger)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return server.Shutdown(context.Background())
	})

	if redisStore != nil {
		g.Go(func() error {
			return refreshLiveness(gctx, redisStore, redisTTL/2, logger)
		})
	}

	return g.Wait()
}

// refreshLiveness keeps this node's session markers from expiring.
func refreshLiveness(ctx context.Context, store *infraredis.SessionStore, every time.Duration, logger *slog.Logger) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := store.Refresh(ctx); err != nil {
				logger.Warn("refresh session markers", "error", err)
			}
		}
	}
}

// loadSeedQuizzes reads a YAML list of quizzes; without a file it serves a small built-in set.
func loadSeedQuizzes(path string) (map[string]domain.Quiz, error) {
	if path == "" {
		return sampleQuizzes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var list []domain.Quiz
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	out := make(map[string]domain.Quiz, len(list))
	for _, quiz := range list {
		out[quiz.ID] = quiz
	}
	return out, nil
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Prompt: "Which planet is closest to the sun?",
					Options: []domain.Option{
						{ID: "o1", Text: "Mercury", Correct: true},
						{ID: "o2", Text: "Venus"},
						{ID: "o3", Text: "Mars"},
					},
					TimeLimitSeconds: 15,
				},
			},
		},
	}
}
