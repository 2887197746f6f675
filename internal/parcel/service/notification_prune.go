package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartNotificationPruneJob deletes notifications older than the
// retention window on a fixed interval. It blocks until ctx is
// cancelled; run it in a goroutine.
func (s *Service) StartNotificationPruneJob(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("notification prune job started",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention),
	)

	s.pruneNotifications(ctx, retention)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("notification prune job stopped")
			return
		case <-ticker.C:
			s.pruneNotifications(ctx, retention)
		}
	}
}

func (s *Service) pruneNotifications(ctx context.Context, retention time.Duration) {
	if s.notifs == nil {
		return
	}

	if err := s.notifs.PruneOlderThan(ctx, retention); err != nil {
		s.log.Error("failed to prune old notifications", zap.Error(err))
		return
	}

	s.log.Debug("old notifications pruned",
		zap.Duration("retention", retention),
	)
}
