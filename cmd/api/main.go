package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/mail-helpdesk/internal/api/http"
	"github.com/spec-kit/mail-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/mail-helpdesk/internal/auth"
	"github.com/spec-kit/mail-helpdesk/internal/classify"
	"github.com/spec-kit/mail-helpdesk/internal/config"
	"github.com/spec-kit/mail-helpdesk/internal/dispatch"
	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/drafts"
	"github.com/spec-kit/mail-helpdesk/internal/errorqueue"
	"github.com/spec-kit/mail-helpdesk/internal/events"
	"github.com/spec-kit/mail-helpdesk/internal/idempotency"
	"github.com/spec-kit/mail-helpdesk/internal/knowledge"
	"github.com/spec-kit/mail-helpdesk/internal/memory"
	"github.com/spec-kit/mail-helpdesk/internal/observability"
	"github.com/spec-kit/mail-helpdesk/internal/parser"
	"github.com/spec-kit/mail-helpdesk/internal/persistence"
	"github.com/spec-kit/mail-helpdesk/internal/pipeline"
	"github.com/spec-kit/mail-helpdesk/internal/queue"
	"github.com/spec-kit/mail-helpdesk/internal/resilience"
	"github.com/spec-kit/mail-helpdesk/internal/resolution"
	"github.com/spec-kit/mail-helpdesk/internal/service"
	"github.com/spec-kit/mail-helpdesk/internal/tickets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rds := persistence.NewRedis(cfg.Redis, logger)
	defer rds.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	notifications := service.NewNotificationService(cfg.Notification, dispatcher, logger)
	notifications.RegisterHandlers()

	newInvoker := func(name string) *resilience.Invoker {
		return resilience.NewInvoker(name, resilience.Config{
			MaxAttempts:      cfg.Resilience.MaxAttempts,
			BaseDelay:        cfg.Resilience.BaseDelay,
			MaxDelay:         cfg.Resilience.MaxDelay,
			FailureThreshold: cfg.Resilience.FailureThreshold,
			Cooldown:         cfg.Resilience.Cooldown,
			Timeout:          cfg.Resilience.PerCallTimeout,
		}, logger)
	}

	// Durable backends when configured, in-memory fallbacks for local runs.
	pool := pg.PoolHandle()
	var ticketStore tickets.Store
	var convLog memory.Log
	if pool != nil {
		ticketStore = tickets.NewPostgresStore(pool)
		convLog = memory.NewPostgresLog(pool)
	} else {
		logger.Warn("no postgres pool; tickets and conversation memory are in-memory only")
		ticketStore = tickets.NewMemoryStore()
		convLog = memory.NewInMemoryLog()
	}

	var idemStore idempotency.Store
	var errQueue errorqueue.Queue
	if err := rds.Ping(ctx); err == nil {
		idemStore = idempotency.NewRedisStore(rds.Client, cfg.Pipeline.IdempotencyTTL, logger)
		errQueue = errorqueue.NewRedisQueue(rds.Client, logger)
	} else {
		logger.Warn("redis unreachable; idempotency and error queue are in-memory only", zap.Error(err))
		idemStore = idempotency.NewMemoryStore(cfg.Pipeline.IdempotencyTTL)
		errQueue = errorqueue.NewMemoryQueue()
	}

	classifier, err := classify.NewGeminiClassifier(ctx, cfg.Classifier.APIKey, cfg.Classifier.Model)
	if err != nil {
		logger.Fatal("failed to init classifier", zap.Error(err))
	}

	var drafter drafts.Creator
	if cfg.Drafts.Endpoint != "" {
		drafter = drafts.NewHTTPCreator(cfg.Drafts.Endpoint, cfg.Drafts.Token)
	} else {
		logger.Warn("no draft endpoint configured; drafts run dry")
		drafter = drafts.NewLogCreator(logger)
	}

	resolver := resolution.NewEngine(ticketStore, newInvoker("tickets"),
		resolution.Config{ReopenClosedTickets: cfg.Pipeline.ReopenClosedTickets}, logger)

	fallback := dispatch.NewEscalationHandler(notifications, newInvoker("notify"), cfg.Notification.Team)
	router := dispatch.NewRouter(fallback, cfg.Pipeline.ConfidenceThreshold, logger)
	router.Register(domain.IntentBankStatement, dispatch.NewBankStatementHandler())
	router.Register(domain.IntentPasswordUpdate, dispatch.NewPasswordUpdateHandler())
	router.Register(domain.IntentUrgentHuman, fallback)
	router.Register(domain.IntentFallbackHuman, fallback)
	if pool != nil {
		kb := knowledge.NewPostgresStore(pool)
		router.Register(domain.IntentGeneralQuery,
			dispatch.NewGeneralQueryHandler(kb, newInvoker("knowledge"), classifier, newInvoker("responder")))
	} else {
		logger.Warn("no knowledge base available; general queries escalate to the team")
	}

	processor := pipeline.NewProcessor(pipeline.Deps{
		Idempotency:        idemStore,
		IdempotencyInvoker: newInvoker("idempotency"),
		Parser:             parser.New(),
		Classifier:         classifier,
		ClassifierInvoker:  newInvoker("classifier"),
		Resolver:           resolver,
		Memory:             convLog,
		MemoryInvoker:      newInvoker("memory"),
		Router:             router,
		Drafts:             drafter,
		DraftsInvoker:      newInvoker("drafts"),
		ErrorQueue:         errQueue,
		Events:             dispatcher,
		Metrics:            metrics,
		Logger:             logger,
		ContextTurns:       cfg.Pipeline.ContextTurns,
	})

	coordinator := queue.NewCoordinator(queue.Config{
		WorkerPoolSize:    cfg.Pipeline.WorkerPoolSize,
		LaneCapacity:      cfg.Pipeline.LaneCapacity,
		ProcessingCeiling: cfg.Pipeline.ProcessingCeiling,
	}, processor, parser.LaneKey, logger)
	coordinator.Start(ctx)

	authMiddleware := auth.NewMiddleware(auth.NewVerifier(cfg.Auth.PushSecret, cfg.Auth.PushAudience))

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rds),
		Webhooks:       handlers.NewWebhookHandler(coordinator, logger),
		Tickets:        handlers.NewTicketsHandler(ticketStore, convLog),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	coordinator.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
