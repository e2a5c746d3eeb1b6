package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mockmate-judge/internal/config"
	"github.com/noah-isme/mockmate-judge/internal/database"
	"github.com/noah-isme/mockmate-judge/internal/handler"
	"github.com/noah-isme/mockmate-judge/internal/judge"
	"github.com/noah-isme/mockmate-judge/internal/middleware"
	"github.com/noah-isme/mockmate-judge/internal/repository"
	"github.com/noah-isme/mockmate-judge/internal/router"
	"github.com/noah-isme/mockmate-judge/internal/service"
	"github.com/noah-isme/mockmate-judge/internal/worker"
	dockerexec "github.com/noah-isme/mockmate-judge/pkg/docker"
	"github.com/noah-isme/mockmate-judge/pkg/executor"
	"github.com/noah-isme/mockmate-judge/pkg/language"
	"github.com/noah-isme/mockmate-judge/pkg/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := zerolog.InfoLevel
	if cfg.AppEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, logger)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; result cache and cross-node status events disabled")
	}

	runner, closeRunner, err := newRunner(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create executor: %v", err)
	}
	defer closeRunner()

	evaluator := judge.New(
		language.NewRegistry(cfg.LanguageOptions()...),
		runner,
		workspace.NewManager(cfg.WorkspaceRoot, "judge-"),
		judge.Config{
			Timeout:        cfg.ExecutionTimeout,
			CompileEnabled: cfg.CompileEnabled,
			FailFast:       cfg.FailFast,
			Logger:         logger,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the pool handler resolves the service lazily; both are built below
	var submissions service.CodingSubmissionService
	var dispatcher worker.Dispatcher
	var pool *worker.Pool
	var natsConn *nats.Conn

	process := func(ctx context.Context, id uint) error {
		return submissions.Process(ctx, id)
	}

	if cfg.EvaluationMode == config.EvaluationModeAsync {
		pool = worker.NewPool(process, worker.PoolConfig{
			Workers:   cfg.EvaluationWorkers,
			QueueSize: cfg.EvaluationQueueSize,
			Logger:    logger,
		})
		dispatcher = pool

		if cfg.NATSURL != "" {
			natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
			if err != nil {
				log.Fatalf("failed to connect to nats: %v", err)
			}
			natsDispatcher, err := worker.NewNATSDispatcher(natsConn, cfg.NATSSubject, worker.DefaultQueueGroup, pool, logger)
			if err != nil {
				log.Fatalf("failed to create nats dispatcher: %v", err)
			}
			if err := natsDispatcher.Start(ctx); err != nil {
				log.Fatalf("failed to subscribe to evaluations: %v", err)
			}
			dispatcher = natsDispatcher
		}
	} else {
		dispatcher = worker.NewInline(process)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissions = service.NewCodingSubmissionService(
		repository.NewCodingSubmissionRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewInterviewSessionRepository(db),
		evaluator,
		redisClient,
		validate,
		logger,
		service.CodingSubmissionConfig{
			Dispatcher:         dispatcher,
			EvaluationDeadline: cfg.EvaluationDeadline,
			CacheTTL:           cfg.ResultCacheTTL,
		},
	)
	submissions.Start(ctx)
	if pool != nil {
		pool.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		CodingSubmissionHandler: handler.NewCodingSubmissionHandler(submissions, cfg.StatusWait, logger),
		JWTMiddleware:           middleware.JWTProtected(cfg.JWTSecret),
		TestRateLimiter:         middleware.RateLimit("code-test", cfg.TestRateLimit, cfg.TestRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("executor", cfg.ExecutorBackend).
		Str("evaluation_mode", cfg.EvaluationMode).
		Msg("judge api started")

	waitForShutdown(app)

	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
	if pool != nil {
		pool.Stop()
	}
	cancel()
}

func newRunner(cfg config.Config, logger zerolog.Logger) (executor.Runner, func(), error) {
	if cfg.ExecutorBackend == config.ExecutorBackendDocker {
		containerRunner, err := dockerexec.NewExecutor(dockerexec.Config{
			Host:           cfg.DockerHost,
			Timeout:        cfg.ExecutionTimeout,
			MemoryLimitMB:  int64(cfg.CodeRunMemoryMB),
			CPUShares:      int64(cfg.CodeRunCPUShares),
			MaxOutputBytes: cfg.MaxOutputBytes,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return containerRunner, func() { _ = containerRunner.Close() }, nil
	}

	processRunner := executor.NewProcessRunner(executor.Config{
		Timeout:        cfg.ExecutionTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Logger:         logger,
	})
	return processRunner, func() {}, nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
