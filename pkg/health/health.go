// Package health serves liveness and readiness probes.
//
// Checks run on demand when a probe is requested. Results are cached for a
// short TTL so frequent probes do not hammer dependencies.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check belongs to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	checked time.Time
	err     error
}

func (c *check) run(ctx context.Context, now time.Time, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.checked.IsZero() && now.Sub(c.checked) < ttl {
		return c.err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.err = c.fn(ctx)
	c.checked = now
	return c.err
}

// Health holds registered checks and the readiness flag.
type Health struct {
	mu     sync.RWMutex
	checks []*check
	ready  atomic.Bool
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Health whose check results are cached for ttl.
func New(ttl time.Duration) *Health {
	return &Health{ttl: ttl, now: time.Now}
}

// AddLivenessCheck registers a check for the liveness probe.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, kind: Liveness, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check for the readiness probe.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, kind: Readiness, timeout: timeout, fn: fn})
}

func (h *Health) add(c *check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// SetReady flips the readiness flag. A not ready service fails the
// readiness probe regardless of its checks.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}

// Failures runs all checks of kind concurrently and returns the failing ones
// keyed by name.
func (h *Health) Failures(ctx context.Context, kind Kind) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	var (
		mu       sync.Mutex
		failures = make(map[string]string)
		now      = h.now()
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		if c.kind != kind {
			continue
		}
		g.Go(func() error {
			if err := c.run(ctx, now, h.ttl); err != nil {
				mu.Lock()
				failures[c.name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Failures(r.Context(), Liveness))
}

// ReadyEndpoint serves the readiness probe.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.IsReady() {
		writeResponse(w, map[string]string{"ready": "service is not ready"})
		return
	}
	writeResponse(w, h.Failures(r.Context(), Readiness))
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unavailable")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
