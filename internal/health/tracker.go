// Package health tracks provider availability over time: a passive
// degradation model driven by call outcomes, plus an active probe loop that
// can independently confirm or restore a provider's status.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
	"golang.org/x/sync/errgroup"
)

// Prober is implemented by anything the tracker can actively probe for
// availability: a local HTTP ping, a CLI authentication check, and so on.
// A Prober must never block past ctx's deadline and must never panic.
type Prober interface {
	// Name returns the provider ID this prober reports on.
	Name() string
	// Probe performs one lightweight availability check.
	Probe(ctx context.Context) error
}

// Tracker is the single process-wide health map. The zero value is not
// usable; construct one with New.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*routing.Health

	probers  []Prober
	interval time.Duration
	log      *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Tracker with the given active-probe interval. Pass probers
// at construction or add them later with AddProber before calling Start.
func New(interval time.Duration, log *logging.Logger, probers ...Prober) *Tracker {
	if log == nil {
		log = logging.Nop()
	}
	return &Tracker{
		records:  make(map[string]*routing.Health),
		probers:  probers,
		interval: interval,
		log:      log.WithComponent("health"),
	}
}

// AddProber registers an additional prober. Safe to call before Start;
// undefined once the probe loop is running.
func (t *Tracker) AddProber(p Prober) {
	t.probers = append(t.probers, p)
}

// RecordSuccess resets a provider's failure counter and marks it healthy.
func (t *Tracker) RecordSuccess(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[provider] = &routing.Health{
		Status:            routing.HealthHealthy,
		ConsecutiveErrors: 0,
		LastCheck:         time.Now(),
	}
}

// RecordFailure increments a provider's consecutive-error counter and
// transitions it to degraded (<3 errors) or unhealthy (>=3 errors).
func (t *Tracker) RecordFailure(provider string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.records[provider]
	count := 1
	if prev != nil {
		count = prev.ConsecutiveErrors + 1
	}

	status := routing.HealthDegraded
	if count >= 3 {
		status = routing.HealthUnhealthy
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	t.records[provider] = &routing.Health{
		Status:            status,
		ConsecutiveErrors: count,
		LastError:         errMsg,
		LastErrorTime:     time.Now(),
		LastCheck:         time.Now(),
	}
}

// StatusOf returns a copy of provider's current health record. An unknown
// provider reports HealthUnknown.
func (t *Tracker) StatusOf(provider string) routing.Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.records[provider]
	if !ok {
		return routing.Health{Status: routing.HealthUnknown}
	}
	return *h
}

// Snapshot returns a read-only copy of every tracked provider's health, for
// introspection (e.g. the routerctl probe command).
func (t *Tracker) Snapshot() map[string]routing.Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]routing.Health, len(t.records))
	for k, v := range t.records {
		out[k] = *v
	}
	return out
}

// RunProbes performs one round of active probing across every registered
// Prober concurrently, via errgroup so a slow or erroring probe never
// blocks the others. Probe errors never propagate to the caller; they are
// only ever written into the health map. A successful probe, like any
// RecordSuccess, restores an unhealthy provider to healthy.
func (t *Tracker) RunProbes(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range t.probers {
		p := p
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			if err := p.Probe(probeCtx); err != nil {
				t.RecordFailure(p.Name(), err)
				t.log.WithField("provider", p.Name()).WithError(err).Debug("probe failed")
				return nil
			}
			t.RecordSuccess(p.Name())
			return nil
		})
	}
	// errgroup.Group.Wait only ever returns an error if one of the Go
	// funcs returned a non-nil error, which never happens here — probe
	// failures are absorbed above, not propagated.
	_ = g.Wait()
}

// Start launches the periodic probe loop on its own goroutine. Cancelling
// ctx, or calling Close, ends it.
func (t *Tracker) Start(ctx context.Context) {
	probeCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				t.RunProbes(probeCtx)
			}
		}
	}()
}

// Close stops the probe loop and waits for it to exit.
func (t *Tracker) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}
