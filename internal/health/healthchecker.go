package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, messaging).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger

	mu       sync.RWMutex
	statuses map[string]bool
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log, statuses: make(map[string]bool, len(deps))}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Components returns the last evaluated status of each dependency.
func (h *ServiceHealthChecker) Components() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.statuses))
	for k, v := range h.statuses {
		out[k] = v
	}
	return out
}

// Evaluate recomputes service health from the dependencies once.
func (h *ServiceHealthChecker) Evaluate() bool {
	all := true
	statuses := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		ok := c.IsHealthy()
		statuses[c.Name()] = ok
		if !ok {
			all = false
		}
	}

	h.mu.Lock()
	h.statuses = statuses
	h.mu.Unlock()

	prev := h.healthy.Load()
	cur := int32(0)
	if all {
		cur = 1
	}
	h.healthy.Store(cur)
	if cur != prev {
		if cur == 1 {
			h.log.Info().Msg("service health: UP")
		} else {
			h.log.Error().Interface("components", statuses).Msg("service health: DOWN")
		}
	}
	return all
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Evaluate()
		}
	}
}
