package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	httperrors "github.com/nicklasc86/travelbot/internal/transport/http/errors"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: map[string]Pinger{}, timeout: 2 * time.Second}
}

// AttachCheck registers a named readiness check. Nil pingers are reported as down.
func (h *HealthHandler) AttachCheck(name string, p Pinger) {
	h.checks[name] = p
}

func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	status := make(map[string]string, len(names))
	for _, name := range names {
		p := h.checks[name]
		if p == nil {
			status[name] = "down"
			ok = false
			continue
		}
		if err := p.Ping(ctx); err != nil {
			status[name] = "down"
			ok = false
			continue
		}
		status[name] = "up"
	}

	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	httperrors.Write(w, code, map[string]any{"ok": ok, "checks": status})
}
