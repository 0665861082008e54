package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tutortoise/catascan-service/classification"
	"github.com/Tutortoise/catascan-service/metrics"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var (
	ErrPoolClosed     = errors.New("pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// ModelSessionPool hands out exclusive inference sessions. Sessions that fail
// a run are destroyed and recreated by the health check.
type ModelSessionPool struct {
	sessions       chan classification.Session
	size           int
	factory        classification.SessionFactory
	acquireTimeout time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	closed     bool
	live       int
	stop       chan struct{}
	done       chan struct{}
	lastErrors []error

	metrics *PoolMetrics
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	discarded       int64
	waitTime        time.Duration
}

type PoolOption func(*ModelSessionPool)

func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *ModelSessionPool) { p.acquireTimeout = d }
}

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *ModelSessionPool) { p.logger = logger }
}

// NewModelSessionPool creates size sessions up front; any failure destroys the
// ones already created.
func NewModelSessionPool(factory classification.SessionFactory, size int, healthCheck time.Duration, opts ...PoolOption) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &ModelSessionPool{
		sessions:       make(chan classification.Session, size),
		size:           size,
		factory:        factory,
		acquireTimeout: AcquireTimeout,
		logger:         slog.Default(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		metrics:        &PoolMetrics{},
	}
	for _, opt := range opts {
		opt(pool)
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			close(pool.done)
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
		pool.live++
	}

	if healthCheck > 0 {
		go pool.healthCheck(healthCheck)
	} else {
		close(pool.done)
	}

	return pool, nil
}

func (p *ModelSessionPool) Size() int {
	return p.size
}

func (p *ModelSessionPool) Acquire(ctx context.Context) (classification.Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session classification.Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		p.live--
		return
	}
	p.sessions <- session
}

// discard drops a session that failed a run; the health check replaces it.
func (p *ModelSessionPool) discard(session classification.Session, cause error) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.discarded++
	p.metrics.mu.Unlock()

	session.Destroy()

	p.mu.Lock()
	p.live--
	p.mu.Unlock()
	p.recordError(cause)
}

// Infer runs input on a pooled session.
func (p *ModelSessionPool) Infer(ctx context.Context, input *classification.Tensor) ([]float32, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	scores, err := session.Run(input)
	if err != nil && !errors.Is(err, classification.ErrShapeMismatch) {
		p.discard(session, err)
		return nil, err
	}
	p.Release(session)
	return scores, err
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
		p.live--
	}
	p.mu.Unlock()

	<-p.done
}

func (p *ModelSessionPool) healthCheck(period time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.replenishSessions()
		}
	}
}

func (p *ModelSessionPool) replenishSessions() {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			p.logger.Warn("failed to recreate inference session", "error", err)
			continue
		}

		p.mu.Lock()
		if p.closed || p.live >= p.size {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.sessions <- session
		p.live++
		p.mu.Unlock()
	}
}

func (p *ModelSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// LastErrors returns the most recent session failures, oldest first.
func (p *ModelSessionPool) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lastErrors...)
}

func (p *ModelSessionPool) Snapshot() metrics.PoolSnapshot {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return metrics.PoolSnapshot{
		Size:            p.size,
		Available:       len(p.sessions),
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Discarded:       p.metrics.discarded,
	}
}
