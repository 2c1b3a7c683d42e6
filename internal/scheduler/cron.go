package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"vpn-backend/internal/service"
)

// Scheduler - встроенный планировщик: ежедневный проход по подпискам
// и периодический опрос здоровья нод.
type Scheduler struct {
	cron    *cron.Cron
	orch    *service.SubscriptionOrchestrator
	servers service.ServerStore
	api     service.CertAPI
}

func NewScheduler(orch *service.SubscriptionOrchestrator, servers service.ServerStore, api service.CertAPI) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		orch:    orch,
		servers: servers,
		api:     api,
	}
}

func (s *Scheduler) Start() error {
	// Плановый проход по подпискам (ежедневно в 00:10)
	_, err := s.cron.AddFunc("10 0 * * *", s.runSweep)
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	// Опрос здоровья нод (каждые 5 минут)
	_, err = s.cron.AddFunc("*/5 * * * *", s.checkNodes)
	if err != nil {
		return fmt.Errorf("failed to add node health job: %w", err)
	}

	s.cron.Start()
	slog.Info("Cron scheduler started")

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Info("Cron scheduler stopped")
}

// runSweep деактивирует истекшие подписки и рассылает напоминания.
func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := s.orch.Sweep(ctx)
	if err != nil {
		slog.Error("Scheduled sweep failed", "error", err)
		return
	}
	slog.Info("Scheduled sweep finished",
		"deactivated", report.Deactivated,
		"expiring", report.Expiring,
		"failed", report.Failed,
	)
}

// checkNodes опрашивает все активные ноды и логирует недоступные.
func (s *Scheduler) checkNodes() {
	servers, err := s.servers.AllActiveServers()
	if err != nil {
		slog.Error("Failed to list active servers", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	healthy := 0
	for _, server := range servers {
		if err := s.api.Health(ctx, server.Address); err != nil {
			slog.Warn("Node health check failed",
				"server_id", server.ID,
				"address", server.Address,
				"error", err,
			)
			continue
		}
		healthy++
	}
	slog.Info("Node health check completed", "healthy", healthy, "total", len(servers))
}
