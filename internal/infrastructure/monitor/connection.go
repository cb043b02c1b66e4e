// Package monitor periodically probes the backing services and exposes the
// last known health snapshot to the health endpoint and the journal replayer.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskboard/backend/internal/infrastructure/journal"
)

const (
	defaultInterval = 15 * time.Second
	pingTimeout     = 3 * time.Second
)

// Monitor pings PostgreSQL, Redis and the journal on a fixed interval.
type Monitor struct {
	pool     *pgxpool.Pool
	redis    *redislib.Client
	journal  *journal.Store
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status Status

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func New(pool *pgxpool.Pool, redis *redislib.Client, store *journal.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		pool:     pool,
		redis:    redis,
		journal:  store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs an immediate probe and then keeps probing until Stop is called.
func (m *Monitor) Start() {
	m.refresh()
	go m.loop()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.stop)
	})
	<-m.done
}

// GetStatus returns the latest health snapshot.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsOnline reports whether the document store is reachable. Journal replay
// only needs the store, so Redis being down does not block it.
func (m *Monitor) IsOnline() bool {
	return m.GetStatus().PostgreSQL
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	var (
		pgOK, redisOK bool
		journalSize   int
		journalOK     bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if m.pool == nil {
			return nil
		}
		if err := m.pool.Ping(gctx); err != nil {
			m.logger.Warn("postgres ping failed", zap.Error(err))
			return nil
		}
		pgOK = true
		return nil
	})
	g.Go(func() error {
		if m.redis == nil {
			return nil
		}
		if err := m.redis.Ping(gctx).Err(); err != nil {
			m.logger.Warn("redis ping failed", zap.Error(err))
			return nil
		}
		redisOK = true
		return nil
	})
	g.Go(func() error {
		if m.journal == nil {
			return nil
		}
		size, err := m.journal.Size()
		if err != nil {
			m.logger.Warn("journal size check failed", zap.Error(err))
			return nil
		}
		journalOK = true
		journalSize = size
		return nil
	})
	_ = g.Wait()

	m.mu.Lock()
	prev := m.status
	m.status = Status{
		PostgreSQL:  pgOK,
		Redis:       redisOK,
		Journal:     journalOK,
		JournalSize: journalSize,
		LastCheck:   time.Now(),
	}
	m.mu.Unlock()

	if prev.PostgreSQL != pgOK {
		m.logger.Info("postgres availability changed", zap.Bool("online", pgOK))
	}
	if prev.Redis != redisOK {
		m.logger.Info("redis availability changed", zap.Bool("online", redisOK))
	}
}
