package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonflow-backend/internal/app"
	redisclient "github.com/yungbote/lessonflow-backend/internal/clients/redis"
	"github.com/yungbote/lessonflow-backend/internal/db"
	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/handlers"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/middleware"
	"github.com/yungbote/lessonflow-backend/internal/repos"
	"github.com/yungbote/lessonflow-backend/internal/server"
	"github.com/yungbote/lessonflow-backend/internal/services"
	"github.com/yungbote/lessonflow-backend/internal/sse"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg := app.LoadConfig(log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	lessonRepo := repos.NewLessonRepo(thePG, log)
	flowSnapshotRepo := repos.NewFlowSnapshotRepo(thePG, log)
	flowEventRepo := repos.NewFlowEventRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Fan-out: local hub by default, redis pub/sub when the deployment runs
	// more than one replica.
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	var sseBus redisclient.SSEBus
	if cfg.RedisOn {
		sseBus, err = redisclient.NewSSEBus(log)
		if err != nil {
			log.Error("Could not init RedisSSEBus", "error", err)
			os.Exit(1)
		}
		if err := sseBus.StartForwarder(baseCtx, func(m sse.SSEMessage) { sseHub.Broadcast(m) }); err != nil {
			log.Error("Could not start redis forwarder", "error", err)
			os.Exit(1)
		}
		emitter = &services.RedisEmitter{Bus: sseBus}
	}

	// Services
	log.Info("Setting up Services from main...")
	lessonService := services.NewLessonService(lessonRepo, log)
	contentService := services.NewContentService(lessonRepo, log)
	classifierService := services.NewClassifierService(log)
	snapshotService := services.NewSnapshotService(flowSnapshotRepo, flowEventRepo, log)
	flowNotifier := services.NewFlowNotifier(emitter)

	// Flow registry
	registry, err := flow.NewRegistry(baseCtx, flow.Deps{
		Log:         log,
		Notifier:    flowNotifier,
		Content:     contentService,
		Classifier:  classifierService,
		Persistence: snapshotService,
		Pacing:      cfg.Pacing,
	})
	if err != nil {
		log.Error("Could not init FlowRegistry", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	flowHandler := handlers.NewFlowHandler(log, registry)
	lessonHandler := handlers.NewLessonHandler(lessonService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)

	// Middleware
	identityMiddleware := middleware.NewIdentityMiddleware(log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IdentityMiddleware: identityMiddleware,
		FlowHandler:        flowHandler,
		LessonHandler:      lessonHandler,
		SSEHandler:         sseHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(baseCtx)
	g.Go(func() error {
		log.Info("Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)

		registry.Shutdown()
		if sseBus != nil {
			_ = sseBus.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
