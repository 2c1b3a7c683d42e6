package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vpn-backend/internal/api"
	"vpn-backend/internal/config"
	"vpn-backend/internal/db"
	"vpn-backend/internal/gates/certapi"
	"vpn-backend/internal/gates/kassa"
	"vpn-backend/internal/notify"
	"vpn-backend/internal/scheduler"
	"vpn-backend/internal/service"
)

func main() {
	// Настраиваем структурированное логирование
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	slog.Info("Starting backend-service", "version", "1.0.0", "pid", os.Getpid())

	// Загружаем конфигурацию
	cfg := config.Load()
	slog.Info("Configuration loaded",
		"addr", cfg.Addr,
		"db_dsn", cfg.DBDsn,
		"has_cert_api_token", cfg.CertAPIToken != "",
		"has_kassa_credentials", cfg.KassaShopID != "" && cfg.KassaSecretKey != "",
		"has_bot_token", cfg.BotToken != "",
	)

	// Инициализируем репозиторий
	repo, err := db.NewRepository(cfg.DBDsn)
	if err != nil {
		slog.Error("Failed to initialize database repository", "error", err, "dsn", cfg.DBDsn)
		os.Exit(1)
	}
	if err := repo.AutoMigrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	if err := repo.SeedPrices(); err != nil {
		slog.Error("Price seeding failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready")

	// Шлюзы
	certClient := certapi.NewClient(certapi.Config{Token: cfg.CertAPIToken})
	kassaClient := kassa.NewClient(kassa.Config{
		APIURL:    cfg.KassaAPIURL,
		ShopID:    cfg.KassaShopID,
		SecretKey: cfg.KassaSecretKey,
		ReturnURL: cfg.KassaReturnURL,
	})

	var notifier service.Notifier
	if cfg.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.BotToken)
		if err != nil {
			slog.Error("Failed to create Telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = tg
	} else {
		slog.Warn("Bot token is not configured - notifications will only be logged")
		notifier = notify.LogNotifier{}
	}

	// Сервисы
	selector := service.NewNodeSelector(repo, certClient)
	provisioner := service.NewCertificateProvisioner(repo, repo, certClient)
	orch := service.NewSubscriptionOrchestrator(repo, selector, provisioner, kassaClient, notifier)
	bonuses := service.NewReferralBonusEngine(repo)
	reconciler := service.NewPaymentReconciler(repo, repo, orch, bonuses)
	users := service.NewUserService(repo)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.NewHandler(users, orch, reconciler, bonuses, repo, repo).Register(router)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	// Планировщик
	sched := scheduler.NewScheduler(orch, repo, certClient)
	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		slog.Warn("Continuing without scheduler - sweep must be triggered externally")
	} else {
		defer sched.Stop()
	}

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to stop HTTP server", "error", err)
	}

	slog.Info("Backend service shutdown completed")
}
