package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEventRetention   = 90 * 24 * time.Hour
	defaultArchiveRetention = 180 * 24 * time.Hour
)

type eventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type archivePruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job drops audit events and archived rejections past their retention window.
type Job struct {
	events           eventPruner
	archive          archivePruner
	eventRetention   time.Duration
	archiveRetention time.Duration
	now              func() time.Time
	logger           *zap.Logger
}

func New(events eventPruner, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		events:           events,
		eventRetention:   defaultEventRetention,
		archiveRetention: defaultArchiveRetention,
		now:              time.Now,
		logger:           logger,
	}
}

func (j *Job) SetEventRetention(retention time.Duration) {
	if retention > 0 {
		j.eventRetention = retention
	}
}

func (j *Job) AttachArchive(archive archivePruner, retention time.Duration) {
	j.archive = archive
	if retention > 0 {
		j.archiveRetention = retention
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.events != nil {
		cutoff := j.now().Add(-j.eventRetention)
		rows, err := j.events.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup tip events: %w", err)
		}
		if rows > 0 {
			j.logger.Info("cleanup tip events completed", zap.Int64("deleted", rows), zap.Time("cutoff", cutoff))
		}
	}

	if j.archive != nil {
		cutoff := j.now().Add(-j.archiveRetention)
		removed, err := j.archive.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup rejected archive: %w", err)
		}
		if removed > 0 {
			j.logger.Info("cleanup rejected archive completed", zap.Int64("deleted", removed), zap.Time("cutoff", cutoff))
		}
	}

	return nil
}

// Loop runs the job once, then every interval until ctx is done. Failed runs are logged and retried on the next tick.
func (j *Job) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	if err := j.Run(ctx); err != nil {
		j.logger.Warn("cleanup run failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup run failed", zap.Error(err))
			}
		}
	}
}
