package usecase

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sweepLockKey = "lock:stock:sweep"

// Locker is a best-effort distributed lock. *cache.RedisClient satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

// Sweeper expires abandoned reservations on a fixed interval. The lock only
// avoids duplicate work between replicas; correctness comes from the
// per-reservation transition in the ledger.
type Sweeper struct {
	uc       stock.UseCase
	locker   Locker
	interval time.Duration
	now      func() time.Time
	logger   logger.ZapLogger
}

func NewSweeper(uc stock.UseCase, locker Locker, interval time.Duration, log logger.ZapLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		uc:       uc,
		locker:   locker,
		interval: interval,
		now:      time.Now,
		logger:   log,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting reservation expiry sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reservation expiry sweeper")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep and returns how many reservations expired.
// It returns 0 without sweeping when another replica holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		token := uuid.New().String()
		ok, err := s.locker.AcquireLock(ctx, sweepLockKey, token, s.interval)
		switch {
		case err != nil:
			s.logger.Warn("sweep lock unavailable, sweeping unguarded", zap.Error(err))
		case !ok:
			s.logger.Debug("sweep lock held elsewhere, skipping tick")
			return 0, nil
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
					s.logger.Warn("failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	count, err := s.uc.SweepExpired(ctx, s.now())
	if count > 0 {
		s.logger.Info("expired reservations released", zap.Int("count", count))
	}
	return count, err
}
