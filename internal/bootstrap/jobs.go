package bootstrap

import (
	"context"
	"fmt"
	"time"

	accountsrepo "github.com/staffboard/staffboard-backend/internal/accounts/repository"
	"github.com/staffboard/staffboard-backend/internal/monitor"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"go.uber.org/zap"
)

const (
	pendingPruneSchedule = "0 */15 * * * *"
	snapshotSchedule     = "0 0 * * * *"
	purgeSchedule        = "0 30 3 * * *"
	sentRetention        = 7 * 24 * time.Hour
)

// JobDeps are the periodic jobs' collaborators. Nil members skip their job.
type JobDeps struct {
	Dispatcher     *notify.Dispatcher
	OutboxSchedule string
	Outbox         *notify.OutboxRepository
	Pending        *accountsrepo.PendingRepository
	Collector      *monitor.Collector
	Logger         *zap.Logger
}

// RegisterJobs adds outbox delivery, pending-index pruning, the hourly
// storage snapshot and the sent-outbox purge to s.
func RegisterJobs(s *notify.Scheduler, dep JobDeps) error {
	logger := dep.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if dep.Dispatcher != nil {
		schedule := dep.OutboxSchedule
		if schedule == "" {
			schedule = "@every 10s"
		}
		err := s.Add(schedule, "outbox-delivery", time.Minute, func(ctx context.Context) error {
			res, err := dep.Dispatcher.DeliverPending(ctx)
			if res.Sent > 0 || res.Failed > 0 || res.Expired > 0 {
				logger.Info("outbox delivered", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Int("expired", res.Expired))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule outbox delivery: %w", err)
		}
	}

	if dep.Pending != nil {
		err := s.Add(pendingPruneSchedule, "pending-prune", 30*time.Second, func(ctx context.Context) error {
			n, err := dep.Pending.PruneIndex(ctx, time.Now())
			if n > 0 {
				logger.Info("pruned expired registrations", zap.Int64("count", n))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule pending prune: %w", err)
		}
	}

	if dep.Collector != nil {
		err := s.Add(snapshotSchedule, "storage-snapshot", time.Minute, func(ctx context.Context) error {
			snap, err := dep.Collector.Collect(ctx)
			if err != nil {
				return err
			}
			monitor.Log(logger, snap)
			return nil
		})
		if err != nil {
			return fmt.Errorf("schedule storage snapshot: %w", err)
		}
	}

	if dep.Outbox != nil {
		err := s.Add(purgeSchedule, "outbox-purge", time.Minute, func(ctx context.Context) error {
			n, err := dep.Outbox.PurgeSent(ctx, time.Now().Add(-sentRetention))
			if n > 0 {
				logger.Info("purged sent notifications", zap.Int64("count", n))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule outbox purge: %w", err)
		}
	}
	return nil
}
