package core

// scheduler.go runs audit log maintenance on a cron schedule:
//  1. Move entries older than the hot retention into audit_log_archive
//  2. Purge archived entries older than the archive retention
//
// Failures are logged and retried on the next run; they never stop the server.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	db "github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
)

// ArchiveConfig holds configuration for the archive scheduler.
type ArchiveConfig struct {
	HotRetentionDays      int    // Days to keep in audit_log
	ArchiveRetentionYears int    // Years to keep in audit_log_archive
	BatchSize             int    // Rows moved per statement
	Schedule              string // Cron spec or descriptor, e.g. "@daily"
}

// maxArchiveBatches bounds one run so a large backlog drains over several runs.
const maxArchiveBatches = 100

// archiveStore is the subset of queries the archive job needs.
type archiveStore interface {
	ArchiveOldAuditLogs(ctx context.Context, arg db.ArchiveOldAuditLogsParams) (int64, error)
	PurgeOldArchives(ctx context.Context, years int32) (int64, error)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

// StartArchiveScheduler schedules the archive job and starts the cron runner.
// The runner stops when ctx is cancelled; Stop on the returned cron waits for
// a running job.
func (s *Service) StartArchiveScheduler(ctx context.Context, cfg ArchiveConfig) (*cron.Cron, error) {
	logger := cronLogger{l: slog.Default().With("component", "archive")}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(cfg.Schedule, func() {
		runArchiveJob(ctx, s.queries(), cfg)
	}); err != nil {
		return nil, fmt.Errorf("schedule archive job %q: %w", cfg.Schedule, err)
	}

	c.Start()
	slog.Info("archive scheduler started",
		"schedule", cfg.Schedule,
		"hot_retention_days", cfg.HotRetentionDays,
		"archive_retention_years", cfg.ArchiveRetentionYears,
		"batch_size", cfg.BatchSize,
	)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		slog.Info("archive scheduler stopped")
	}()

	return c, nil
}

// runArchiveJob performs one archive + purge cycle.
func runArchiveJob(ctx context.Context, store archiveStore, cfg ArchiveConfig) (archived, purged int64) {
	start := time.Now()

	for i := 0; i < maxArchiveBatches && ctx.Err() == nil; i++ {
		n, err := store.ArchiveOldAuditLogs(ctx, db.ArchiveOldAuditLogsParams{
			Days:      int32(cfg.HotRetentionDays),
			BatchSize: int32(cfg.BatchSize),
		})
		if err != nil {
			slog.Error("archive failed", "error", err)
			break
		}
		archived += n
		if n < int64(cfg.BatchSize) {
			break
		}
	}

	purged, err := store.PurgeOldArchives(ctx, int32(cfg.ArchiveRetentionYears))
	if err != nil {
		slog.Error("purge failed", "error", err)
	}

	slog.Info("archive job completed",
		"entries_archived", archived,
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return archived, purged
}
