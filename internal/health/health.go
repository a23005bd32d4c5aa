// Package health serves the liveness and readiness probes of the status
// server. /healthz answers 200 while the process serves HTTP. /readyz runs
// every [Checker] concurrently and answers 200 only when all of them pass,
// i.e. the speech worker is running and the application index is built.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	statusOK   = "ok"
	statusFail = "fail"

	defaultCheckTimeout = 2 * time.Second
)

// Checker is a named readiness check. Check returns nil when the component
// is ready and must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the JSON body of both probes.
type report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed by New.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
	started  time.Time
}

// New returns a Handler running checkers on each /readyz request, each bounded
// by a two second timeout.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: slices.Clone(checkers),
		timeout:  defaultCheckTimeout,
		started:  time.Now(),
	}
}

// Healthz answers 200 with the process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{
		Status: statusOK,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz answers 200 when every check passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.evaluate(r.Context())
	code := http.StatusOK
	if rep.Status != statusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

func (h *Handler) evaluate(ctx context.Context) report {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := report{Status: statusOK, Checks: make(map[string]string, len(h.checkers))}
	for i, c := range h.checkers {
		if errs[i] != nil {
			rep.Status = statusFail
			rep.Checks[c.Name] = statusFail + ": " + errs[i].Error()
			continue
		}
		rep.Checks[c.Name] = statusOK
	}
	return rep
}

// Register mounts the probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
