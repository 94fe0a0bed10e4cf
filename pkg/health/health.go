// Package health provides liveness and readiness checks with HTTP endpoints.
// Checks run on a fixed interval in the background; the endpoints report the
// most recent results without doing work on the request path.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	probe   CheckFunc

	mu      sync.RWMutex
	lastErr error
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.probe(ctx)

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *check) err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Health runs registered checks periodically and serves their results.
type Health struct {
	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	ready     bool

	stop   context.CancelFunc
	stopWG sync.WaitGroup
}

// New creates an empty Health service. Readiness starts false until SetReady.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a liveness probe. Liveness failures indicate the
// process itself is broken and should be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &check{name: name, timeout: timeout, probe: fn})
}

// AddReadinessCheck registers a readiness probe. Readiness failures indicate
// the process should stop receiving traffic but not be restarted.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &check{name: name, timeout: timeout, probe: fn})
}

// Start launches one goroutine per registered check, each probing every
// interval until Stop is called or ctx is cancelled. Each check runs once
// immediately so the first endpoint hit has data.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, h.stop = context.WithCancel(ctx)

	h.mu.RLock()
	checks := make([]*check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.RUnlock()

	for _, c := range checks {
		h.stopWG.Add(1)
		go func(c *check) {
			defer h.stopWG.Done()

			c.run(ctx)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop terminates the background probes and waits for them to exit.
func (h *Health) Stop() {
	if h.stop != nil {
		h.stop()
	}
	h.stopWG.Wait()
}

// SetReady toggles the manual readiness gate, used to drain traffic before
// shutdown.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports the manual readiness gate.
func (h *Health) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// LiveEndpoint serves the liveness check results.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	failures := collectFailures(h.liveness)
	h.mu.RUnlock()

	writeResponse(w, failures, true)
}

// ReadyEndpoint serves the readiness check results, gated by SetReady.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	failures := collectFailures(h.readiness)
	ready := h.ready
	h.mu.RUnlock()

	writeResponse(w, failures, ready)
}

func collectFailures(checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if err := c.err(); err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string, gate bool) {
	healthy := gate && len(failures) == 0

	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		if len(failures) > 0 {
			body["checks"] = failures
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
