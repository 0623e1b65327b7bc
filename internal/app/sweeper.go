package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/clock"
)

type holdSweeper interface {
	SweepExpiredHolds(ctx context.Context) (int64, error)
}

type confirmRetrier interface {
	RetryUnnotified(ctx context.Context, olderThan time.Time, limit int) error
}

// Sweeper управляет фоновыми задачами: уборка истёкших hold'ов и
// повторная доставка подтверждений
type Sweeper struct {
	locker         holdSweeper
	verifier       confirmRetrier
	clock          clock.Clock
	sweepInterval  time.Duration
	notifyInterval time.Duration
	logger         *zap.Logger
	stopChan       chan struct{}
}

// notifyRetryBatch сколько bookings берём за один проход retry
const notifyRetryBatch = 50

// NewSweeper создаёт новый планировщик фоновых задач
func NewSweeper(
	locker holdSweeper,
	verifier confirmRetrier,
	clk clock.Clock,
	sweepInterval, notifyInterval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		locker:         locker,
		verifier:       verifier,
		clock:          clk,
		sweepInterval:  sweepInterval,
		notifyInterval: notifyInterval,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting background sweeper")

	go s.runSweepTask(ctx)
	go s.runNotifyRetryTask(ctx)
}

// Stop останавливает фоновые задачи
func (s *Sweeper) Stop() {
	s.logger.Info("Stopping background sweeper")
	close(s.stopChan)
}

// runSweepTask периодически убирает истёкшие hold'ы
// Уборка идемпотентна и безопасна при конкурентных claim'ах
func (s *Sweeper) runSweepTask(ctx context.Context) {
	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sweep task cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.locker.SweepExpiredHolds(ctx); err != nil {
		s.logger.Error("Failed to sweep expired holds", zap.Error(err))
	}
}

// runNotifyRetryTask повторяет неудавшиеся отправки подтверждений
// Booking остаётся durable независимо от судьбы доставки
func (s *Sweeper) runNotifyRetryTask(ctx context.Context) {
	ticker := time.NewTicker(s.notifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.retryNotify(ctx)
		case <-s.stopChan:
			s.logger.Info("Notify retry task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Notify retry task cancelled")
			return
		}
	}
}

func (s *Sweeper) retryNotify(ctx context.Context) {
	// Берём только записи старше одного интервала, чтобы не гонять
	// bookings, чья первая отправка ещё идёт
	olderThan := s.clock.Now().Add(-s.notifyInterval)
	if err := s.verifier.RetryUnnotified(ctx, olderThan, notifyRetryBatch); err != nil {
		s.logger.Error("Failed to retry confirmations", zap.Error(err))
	}
}
