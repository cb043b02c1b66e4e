// Package services hosts background workers that run alongside the HTTP
// server: the journal replayer and the lifecycle manager.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/internal/infrastructure/journal"
	"github.com/taskboard/backend/usecase/relation"
)

// ConnectionHealth reports whether the document store is reachable.
type ConnectionHealth interface {
	IsOnline() bool
}

// ReplayerConfig tunes the journal drain schedule.
type ReplayerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

func (c *ReplayerConfig) normalize() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
}

// Replayer periodically re-applies journaled relation operations that were
// interrupted mid-sequence. Operations are idempotent, so applying an entry
// whose original call actually completed changes nothing.
type Replayer struct {
	journal     *journal.Store
	coordinator *relation.Coordinator
	health      ConnectionHealth
	config      ReplayerConfig
	logger      *zap.Logger
	cron        *cron.Cron
}

func NewReplayer(store *journal.Store, coordinator *relation.Coordinator, health ConnectionHealth, config ReplayerConfig, logger *zap.Logger) *Replayer {
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		journal:     store,
		coordinator: coordinator,
		health:      health,
		config:      config,
		logger:      logger,
	}
}

// Start schedules the drain loop.
func (r *Replayer) Start() error {
	if r.cron != nil {
		return nil
	}
	r.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", int(r.config.Interval.Seconds()))
	if _, err := r.cron.AddFunc(spec, r.drainOnce); err != nil {
		return fmt.Errorf("schedule journal replayer: %w", err)
	}
	r.cron.Start()
	r.logger.Info("journal replayer started", zap.Duration("interval", r.config.Interval))
	return nil
}

// Stop halts the schedule and waits for a running drain to finish.
func (r *Replayer) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron = nil
	r.logger.Info("journal replayer stopped")
}

func (r *Replayer) drainOnce() {
	if r.health != nil && !r.health.IsOnline() {
		return
	}
	if err := r.Drain(context.Background()); err != nil {
		r.logger.Error("journal drain failed", zap.Error(err))
	}
}

// Drain applies up to one batch of pending journal entries. Entries whose
// documents no longer exist are dropped, as are entries that exhausted their
// retry budget.
func (r *Replayer) Drain(ctx context.Context) error {
	entries, err := r.journal.Pending(r.config.BatchSize)
	if err != nil {
		return fmt.Errorf("read pending journal entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	r.logger.Info("replaying journaled relation ops", zap.Int("count", len(entries)))

	for _, entry := range entries {
		var op relation.Op
		if err := json.Unmarshal(entry.Payload, &op); err != nil {
			r.logger.Warn("dropping undecodable journal entry", zap.String("entry_id", entry.ID), zap.Error(err))
			if err := r.journal.Remove(entry); err != nil {
				return err
			}
			continue
		}

		if err := r.coordinator.Apply(ctx, op); err != nil {
			if domain.IsDomainError(err, domain.ErrCodeNotFound) {
				// The referenced document is gone; replaying cannot bring it
				// back, so the entry is finished.
				if err := r.journal.Remove(entry); err != nil {
					return err
				}
				continue
			}
			if err := r.retryLater(entry, err); err != nil {
				return err
			}
			continue
		}

		if err := r.journal.Remove(entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replayer) retryLater(entry journal.Entry, cause error) error {
	if entry.Retries+1 >= r.config.MaxRetries {
		r.logger.Error("dropping journal entry after max retries",
			zap.String("entry_id", entry.ID),
			zap.Int("retries", entry.Retries),
			zap.Error(cause))
		return r.journal.Remove(entry)
	}
	r.logger.Warn("journal entry replay failed, requeueing",
		zap.String("entry_id", entry.ID),
		zap.Int("retries", entry.Retries),
		zap.Error(cause))
	if err := r.journal.Remove(entry); err != nil {
		return err
	}
	return r.journal.Requeue(entry)
}
