// Package retention removes recordings that were never uploaded and have
// outlived the configured age.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"segment-recorder/internal/platform/metrics"

	"github.com/shirou/gopsutil/v4/disk"
)

const day = 24 * time.Hour

// Sweeper periodically deletes old regular files directly under a directory
// and reports the disk usage of the filesystem holding it.
type Sweeper struct {
	dir        string
	maxAgeDays int
	interval   time.Duration
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// New returns a Sweeper for dir. Files are deleted once their age in whole
// days exceeds maxAgeDays. Metrics may be nil.
func New(dir string, maxAgeDays int, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		dir:        dir,
		maxAgeDays: maxAgeDays,
		interval:   interval,
		now:        time.Now,
		log:        log.With("component", "retention"),
		metrics:    m,
	}
}

// Enabled reports whether the sweeper deletes anything.
func (s *Sweeper) Enabled() bool {
	return s.maxAgeDays > 0 && s.interval > 0
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info("retention sweeper disabled")
		return
	}
	s.log.Info("retention sweeper started",
		slog.String("dir", s.dir),
		slog.Int("max_age_days", s.maxAgeDays),
		slog.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("sweep failed", slog.String("error", err.Error()))
	}
	if err := s.ReportUsage(ctx); err != nil {
		s.log.Debug("disk usage unavailable", slog.String("error", err.Error()))
	}
}

// Sweep deletes every regular file directly under the directory that is too
// old and returns how many were removed. Files that cannot be deleted are
// logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.dir, err)
	}

	now := s.now()
	deleted := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !s.tooOld(now, info.ModTime()) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		s.log.Info("file is too old, deleting", slog.String("file", e.Name()), slog.Time("modified", info.ModTime()))
		if err := os.Remove(path); err != nil {
			s.log.Warn("could not delete old file", slog.String("file", path), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}
	s.metrics.AddSweptFiles(deleted)
	return deleted, nil
}

// tooOld compares whole elapsed days, so with a limit of 1 a file goes once
// it is two full days old.
func (s *Sweeper) tooOld(now, modified time.Time) bool {
	return int64(now.Sub(modified)/day) > int64(s.maxAgeDays)
}

// ReportUsage publishes the used percentage of the filesystem holding the
// directory.
func (s *Sweeper) ReportUsage(ctx context.Context) error {
	usage, err := disk.UsageWithContext(ctx, s.dir)
	if err != nil {
		return err
	}
	s.metrics.SetStorageUsedPercent(usage.UsedPercent)
	return nil
}
