// Package health serves liveness, readiness and build status.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"warden/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	checkUp   = "up"
	checkDown = "down"

	defaultCheckTimeout = 2 * time.Second
)

// CheckFunc reports a dependency's health; nil means healthy.
type CheckFunc func(ctx context.Context) error

// Handler owns the registered readiness checks. Check errors are never
// echoed to clients since they tend to carry internal addresses.
type Handler struct {
	started     time.Time
	environment string
	timeout     time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func New(environment string) *Handler {
	return &Handler{
		started:     time.Now(),
		environment: environment,
		timeout:     defaultCheckTimeout,
		checks:      map[string]CheckFunc{},
	}
}

// RegisterCheck adds or replaces a named readiness check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HandleStatus)
		r.Get("/live", h.HandleLiveness)
		r.Get("/ready", h.HandleReadiness)
	})
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every check in parallel under a shared deadline and
// answers 503 if any of them fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	results := h.run(r.Context())

	resp := ReadinessResponse{Status: "ready", Checks: results}
	status := http.StatusOK
	for _, state := range results {
		if state == checkDown {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) run(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			state := checkUp
			if check(ctx) != nil {
				state = checkDown
			}
			mu.Lock()
			results[name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // checks report through results
	return results
}

type StatusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Environment   string    `json:"environment"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Timestamp:     now.Truncate(time.Second),
	})
}
