// Package scheduler запускает периодическую сверку балансов кошельков.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
)

// Reconciler сверяет сохранённые балансы с леджером.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]model.Discrepancy, error)
}

// Scheduler держит gocron-планировщик с единственной задачей сверки.
type Scheduler struct {
	sched   gocron.Scheduler
	logger  *zap.Logger
	rec     Reconciler
	timeout time.Duration
}

// NewScheduler создаёт планировщик. При interval <= 0 возвращает nil: сверка выключена.
func NewScheduler(logger *zap.Logger, rec Reconciler, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:   sched,
		logger:  logger,
		rec:     rec,
		timeout: interval,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.reconcile),
		gocron.WithName("reconcile balances"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule reconcile: %w", err)
	}

	return s, nil
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.rec.Reconcile(ctx)
	if err != nil {
		s.logger.Error("reconcile balances error", zap.Error(err))
		return
	}
	if len(res) > 0 {
		s.logger.Warn("balance discrepancies found", zap.Int("count", len(res)))
		return
	}
	s.logger.Debug("balances reconciled")
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.sched.Start()
}

// Shutdown останавливает планировщик и ждёт завершения текущей сверки.
func (s *Scheduler) Shutdown() error {
	if s == nil {
		return nil
	}
	return s.sched.Shutdown()
}
