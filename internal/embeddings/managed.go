package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/metrics"
)

// Managed guards a Provider: Forward fails with ErrNotReady until Load has
// succeeded and never overlaps a Load in progress. Inference failures are
// reported as ErrEmbedding.
type Managed struct {
	inner   Provider
	limiter *rate.Limiter
	metrics *metrics.Metrics

	mu    sync.RWMutex
	ready bool
}

type ManagedOption func(*Managed)

// WithRateLimit throttles Forward to perSecond calls. Zero disables throttling.
func WithRateLimit(perSecond float64) ManagedOption {
	return func(m *Managed) {
		if perSecond > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithMetrics(mt *metrics.Metrics) ManagedOption {
	return func(m *Managed) {
		m.metrics = mt
	}
}

func NewManaged(p Provider, opts ...ManagedOption) *Managed {
	m := &Managed{inner: p}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Managed) Name() string { return m.inner.Name() }

func (m *Managed) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.Dimensions()
}

// Load is idempotent; a failed Load may be retried.
func (m *Managed) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	started := time.Now()
	if err := m.inner.Load(ctx); err != nil {
		return interrors.Embedding("load "+m.inner.Name(), err)
	}
	m.ready = true
	logger.Debug("Loaded embedding provider %s (%d dimensions) in %v",
		m.inner.Name(), m.inner.Dimensions(), time.Since(started))
	return nil
}

func (m *Managed) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func (m *Managed) Forward(ctx context.Context, input string) ([]float32, error) {
	return m.forward(ctx, input, m.inner.Forward)
}

func (m *Managed) ForwardQuery(ctx context.Context, input string) ([]float32, error) {
	return m.forward(ctx, input, func(ctx context.Context, input string) ([]float32, error) {
		return ForwardQuery(ctx, m.inner, input)
	})
}

func (m *Managed) forward(ctx context.Context, input string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op := "embed with " + m.inner.Name()
	if !m.ready {
		return nil, fmt.Errorf("%s: %w", op, interrors.ErrNotReady)
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, interrors.Embedding(op, err)
		}
	}

	started := time.Now()
	vec, err := fn(ctx, input)
	if err == nil && len(vec) != m.inner.Dimensions() {
		err = fmt.Errorf("%w: got %d, expected %d", interrors.ErrDimensionMismatch, len(vec), m.inner.Dimensions())
	}
	m.metrics.ObserveInference(m.inner.Name(), time.Since(started), err)
	if err != nil {
		return nil, classify(op, err)
	}
	return vec, nil
}

// classify keeps file access failures in their own category and reports
// everything else as an inference failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, interrors.ErrPermission), errors.Is(err, interrors.ErrStorage):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return interrors.Embedding(op, err)
	}
}
