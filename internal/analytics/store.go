// Package analytics implements an embedded append-only `download_events`
// log with a file-lock-guarded schema init, retrying insertion, an hourly
// retention sweep, and the per-share/per-IP/recent aggregation queries the
// admin HTTP surface reads.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/mattborg/galleryedge/internal/database"
)

const (
	maxInitLockAttempts   = 10
	initLockBaseDelay     = 50 * time.Millisecond
	maxInsertAttempts     = 3
	insertRetryDelay      = 20 * time.Millisecond
	maxRetentionDays      = 3650
)

// Store owns the embedded SQLite database and the retention cron.
type Store struct {
	db     *database.DB
	logger *slog.Logger

	retentionDays     int
	retentionInterval time.Duration

	cron *cron.Cron
}

// Open connects to the embedded database at cfg.Path and, for a file-backed
// database, holds an exclusive lock file ("<path>.initlock") while it runs
// AutoMigrate, so concurrent workers migrate one at a time. The lock is
// tried up to 10 times without blocking, sleeping a delay that grows 1.5x
// per attempt in between; every call to Open takes the lock again.
func Open(cfg database.Config, retentionDays int, retentionInterval time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.New(cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("opening analytics database: %w", err)
	}

	if cfg.Path != ":memory:" {
		lock := flock.New(cfg.Path + ".initlock")
		if err := acquireWithRetry(lock); err != nil {
			return nil, fmt.Errorf("acquiring analytics schema lock: %w", err)
		}
		defer lock.Unlock()
	}

	if err := db.AutoMigrate(&DownloadEvent{}); err != nil {
		return nil, fmt.Errorf("migrating analytics schema: %w", err)
	}

	return &Store{
		db:                db,
		logger:            logger,
		retentionDays:     retentionDays,
		retentionInterval: retentionInterval,
	}, nil
}

func acquireWithRetry(lock *flock.Flock) error {
	var lastErr error
	for attempt := 0; attempt < maxInitLockAttempts; attempt++ {
		ok, err := lock.TryLock()
		if err != nil {
			lastErr = err
		} else if ok {
			return nil
		}
		delay := initLockBaseDelay * time.Duration(math.Pow(1.5, float64(attempt)))
		time.Sleep(delay)
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("timed out acquiring schema init lock")
}

// InsertEvent inserts one DownloadEvent, retrying up to 3 times on
// transient lock errors. Any failure is logged and swallowed — analytics
// insertion never fails the user-facing request.
func (s *Store) InsertEvent(ctx context.Context, event *DownloadEvent) {
	var lastErr error
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		err := s.db.WithContext(ctx).Create(event).Error
		if err == nil {
			return
		}
		lastErr = err
		if !isTransientLockError(err) {
			break
		}
		time.Sleep(insertRetryDelay * time.Duration(attempt+1))
	}
	s.logger.Warn("analytics event insert failed", slog.String("error", lastErr.Error()))
}

func isTransientLockError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

// StartRetentionSweep launches the hourly-at-most retention cron job. A
// no-op when retentionDays <= 0.
func (s *Store) StartRetentionSweep() {
	if s.retentionDays <= 0 {
		return
	}

	interval := s.retentionInterval
	if interval < time.Hour {
		interval = time.Hour
	}

	s.cron = cron.New()
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if err := s.sweep(); err != nil {
			s.logger.Warn("retention sweep failed", slog.String("error", err.Error()))
		}
	}))
	s.cron.Start()
}

// StopRetentionSweep stops the cron job, if running.
func (s *Store) StopRetentionSweep() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Store) sweep() error {
	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour).Unix()
	result := s.db.Where("created_at < ?", cutoff).Delete(&DownloadEvent{})
	if result.Error != nil {
		return result.Error
	}
	s.logger.Info("retention sweep complete", slog.Int64("deleted", result.RowsAffected))
	return nil
}

// Close releases the underlying database connection and stops the cron.
func (s *Store) Close() error {
	s.StopRetentionSweep()
	return s.db.Close()
}

// gormDB exposes the underlying *gorm.DB for the queries file, kept
// unexported so callers always go through Store's typed methods.
func (s *Store) gormDB() *gorm.DB {
	return s.db.DB
}
