// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs
// every registered [Checker] and answers 503 if any of them fails. Both
// write a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by the bot stores and the speech providers that can
// reach their backend cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts p into a Checker called name.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Report is the probe response body. Checks maps each checker name to "ok"
// or "fail: <error>".
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == StatusOK }

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// Handler holds a fixed set of checkers.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New returns a Handler for checkers.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Evaluate runs all checkers concurrently, each under its own deadline.
func (h *Handler) Evaluate(ctx context.Context) Report {
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

	rep := Report{Status: StatusOK}
	if len(h.checkers) > 0 {
		rep.Checks = make(map[string]string, len(h.checkers))
	}
	for i, c := range h.checkers {
		if errs[i] != nil {
			rep.Checks[c.Name] = StatusFail + ": " + errs[i].Error()
			rep.Status = StatusFail
			continue
		}
		rep.Checks[c.Name] = StatusOK
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, Report{Status: StatusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	writeReport(w, h.Evaluate(r.Context()))
}

// Register mounts both probes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeReport(w http.ResponseWriter, rep Report) {
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
