// Package doctor reports whether the media toolchain and the collaborator
// services are reachable. Results are cached for a TTL.
package doctor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultCacheTTL = time.Minute

// Status is the outcome of a single check.
type Status struct {
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Capabilities struct {
	Checks   map[string]Status `json:"checks"`
	AllOK    bool              `json:"all_ok"`
	ProbedAt time.Time         `json:"probed_at"`
}

// Prober produces a fresh Capabilities report. An error means the probe
// itself could not complete, not that a dependency was unavailable.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor caches probe results so status requests do not hit every
// collaborator each time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, ttl time.Duration, logger *slog.Logger) *CachedDoctor {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDoctor{
		prober: prober,
		ttl:    ttl,
		logger: logger.With("component", "doctor"),
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes regardless of cache freshness. When the probe fails the
// previous result, if any, is returned instead.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache", "probed_at", d.cached.ProbedAt)
			return d.cached, nil
		}
		return nil, err
	}

	if !caps.AllOK {
		for name, s := range caps.Checks {
			if !s.Available {
				d.logger.Warn("dependency unavailable", "check", name, "error", s.Error)
			}
		}
	}
	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
