package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"library-automation/internal/logger"
	"library-automation/internal/responses"
)

const readinessTimeout = 2 * time.Second

type HealthHandler struct {
	checks map[string]Pinger
	logg   *logger.Logger
}

// NewHealthHandler runs the named checks on readiness requests.
func NewHealthHandler(checks map[string]Pinger, logg *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logg: logg}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is serving.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(w, healthResponse{Status: "ok"})
}

// Ready pings every dependency concurrently and answers 503 if any fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]string, len(names))
		healthy = true
	)
	for _, name := range names {
		name := name
		p := h.checks[name]
		g.Go(func() error {
			err := p.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				results[name] = "unavailable"
				h.logg.Error(h.logg.WithField(ctx, "check", name), "health.check_failed", err)
				return nil
			}
			results[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "ok", Checks: results}
	if !healthy {
		resp.Status = "unavailable"
		responses.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	responses.WriteSuccess(w, resp)
}
