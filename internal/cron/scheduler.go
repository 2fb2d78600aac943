package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"botdesk/internal/config"
	"botdesk/internal/repository"
	"botdesk/internal/selection"
)

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	logger  *zap.Logger
	repos   *CronRepos
	manager *selection.Manager
}

// CronRepos bundles repositories needed by cron jobs.
type CronRepos struct {
	Bot       *repository.BotRepository
	Customer  *repository.CustomerRepository
	Order     *repository.OrderRepository
	Broadcast *repository.BroadcastRepository
	Log       *repository.LogRepository
}

// New creates a new cron scheduler.
func New(cfg *config.Config, repos *CronRepos, manager *selection.Manager, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		logger:  logger,
		repos:   repos,
		manager: manager,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Refresh open dashboard sessions - every 30 seconds
	s.cron.AddFunc("*/30 * * * * *", func() {
		s.logger.Debug("Running: refresh sessions")
		s.refreshSessions()
	})

	// Drop idle sessions - every 5 minutes
	s.cron.AddFunc("0 */5 * * * *", func() {
		s.logger.Debug("Running: prune idle sessions")
		s.pruneIdleSessions()
	})

	// Queue-backed broadcasts - every minute
	s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: queued broadcasts")
		s.processBroadcasts()
	})

	// Expire unpaid orders - every hour
	s.cron.AddFunc("0 0 * * * *", func() {
		s.logger.Debug("Running: expire pending orders")
		s.expirePendingOrders()
	})

	// Log retention - daily at 3 AM
	s.cron.AddFunc("0 0 3 * * *", func() {
		s.logger.Debug("Running: prune logs")
		s.pruneLogs()
	})

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) refreshSessions() {
	defer s.recoverFromPanic("refreshSessions")

	if s.manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	s.manager.RefreshAll(ctx)
}

func (s *Scheduler) pruneIdleSessions() {
	defer s.recoverFromPanic("pruneIdleSessions")

	if s.manager == nil {
		return
	}
	if n := s.manager.PruneIdle(s.cfg.Selection.SessionIdle); n > 0 {
		s.logger.Info("Closed idle sessions", zap.Int("count", n), zap.Int("open", s.manager.Len()))
	}
}

func (s *Scheduler) expirePendingOrders() {
	defer s.recoverFromPanic("expirePendingOrders")

	n, err := s.repos.Order.ExpirePending(time.Now().Add(-s.cfg.Orders.PendingTTL))
	if err != nil {
		s.logger.Error("Failed to expire pending orders", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Expired pending orders", zap.Int64("count", n))
	}
}

func (s *Scheduler) pruneLogs() {
	defer s.recoverFromPanic("pruneLogs")

	cutoff := time.Now().Add(-s.cfg.Telegram.EventRetention)
	events, err := s.repos.Log.PruneWebhookEvents(cutoff)
	if err != nil {
		s.logger.Error("Failed to prune webhook events", zap.Error(err))
	}
	logs, err := s.repos.Log.PruneAPILogs(cutoff)
	if err != nil {
		s.logger.Error("Failed to prune API logs", zap.Error(err))
	}
	s.logger.Info("Pruned logs", zap.Int64("webhook_events", events), zap.Int64("api_logs", logs))
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
