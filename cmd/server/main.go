package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/escrow-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-backend/internal/http/router"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/processor"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/scheduler"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/storage"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
	}
	logger.Init(logLevel, cfg.Env)
	goroutine.SetLogger(logger.Log)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidencePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	processorClient := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorTimeout)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	deadlineRepo := repository.NewDeadlineRepository(dbConn)
	timelineRepo := repository.NewTimelineRepository(dbConn)
	alertRepo := repository.NewAlertRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты и push уведомления.
	notificationService := service.NewNotificationService(notificationRepo)
	hub := ws.NewHub(ctx, logger.Log)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	goroutine.SafeGo(hub.Run)

	notifier := service.NewHubNotifier(hub, logger.Log)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager, logger.Log)
	ledgerService := service.NewLedgerService(escrowRepo, jobRepo, userRepo, timelineRepo, processorClient, notifier, cfg.Escrow, cfg.Scheduler, logger.Log)
	milestoneService := service.NewMilestoneService(milestoneRepo, escrowRepo, jobRepo, timelineRepo, ledgerService, notifier, logger.Log)
	disputeService := service.NewDisputeService(disputeRepo, ledgerService, notifier, cfg.Scheduler, logger.Log)
	deadlineService := service.NewDeadlineService(deadlineRepo, ledgerService, disputeRepo, timelineRepo, alertRepo, notifier, cfg.Scheduler, logger.Log)
	monitorService := service.NewMonitorService(alertRepo, escrowRepo, disputeRepo, deadlineRepo, notifier, logger.Log)

	// Взаимные ссылки сервисов: леджер планирует дедлайны,
	// споры их отменяют.
	ledgerService.SetScheduler(deadlineService)
	disputeService.SetDeadlines(deadlineService)

	// Фоновые обходы.
	sched := scheduler.New(deadlineService, disputeService, monitorService, cfg.Scheduler, logger.Log)
	sched.Start(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	escrowHandler := httpHandlers.NewEscrowHandler(ledgerService, jobRepo, userRepo)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService, evidenceStorage)
	deadlineHandler := httpHandlers.NewDeadlineHandler(deadlineService, ledgerService)
	monitorHandler := httpHandlers.NewMonitorHandler(monitorService, deadlineService, disputeService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, processorClient)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, logger.Log, authHandler, escrowHandler, milestoneHandler, disputeHandler, deadlineHandler, monitorHandler, notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
