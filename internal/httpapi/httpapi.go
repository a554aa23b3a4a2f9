package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invusync/backend/internal/bizdate"
	"invusync/backend/internal/domain"
	"invusync/backend/internal/invu"
	"invusync/backend/internal/metrics"
	"invusync/backend/internal/service"
	"invusync/backend/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
	syncLimiter   *attemptLimiter
}

func New(svc *service.Service, allowedOrigin string, syncTriggersPerMinute int) *API {
	if strings.TrimSpace(allowedOrigin) == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		syncLimiter:   newAttemptLimiter(syncTriggersPerMinute, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	a.route(mux, "/healthz", a.handleHealth)
	a.route(mux, "/readyz", a.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	a.route(mux, "/sync", a.handleSync)
	a.route(mux, "/sync/orders", a.handleSyncOrders)
	a.route(mux, "/orders", a.handleOrders)
	a.route(mux, "/attendance", a.handleAttendance)
	a.route(mux, "/sales", a.handleSales)
	a.route(mux, "/branches", a.handleBranches)

	return a.withMiddleware(mux)
}

// route registers h and records request metrics under the fixed pattern, so
// label cardinality stays bounded.
func (a *API) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		h(rec, r)
		metrics.HTTPRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(startedAt).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := a.service.Ready(ctx); err != nil {
		log.Printf("[httpapi] readiness check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type syncParams struct {
	Desde    string   `json:"desde"`
	Hasta    string   `json:"hasta"`
	Branches []string `json:"branches"`
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	a.serveSync(w, r, a.service.Sync)
}

func (a *API) handleSyncOrders(w http.ResponseWriter, r *http.Request) {
	a.serveSync(w, r, a.service.SyncOrders)
}

type syncFunc func(ctx context.Context, req service.SyncRequest) (domain.SyncReport, error)

func (a *API) serveSync(w http.ResponseWriter, r *http.Request, run syncFunc) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.syncLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many sync requests, retry later"))
		return
	}

	params, err := readSyncParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	span, err := a.service.Span(params.Desde, params.Hasta)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := run(r.Context(), service.SyncRequest{Span: span, Branches: params.Branches})
	switch {
	case err == nil:
		writeJSON(w, report.Status, report)
	case errors.Is(err, service.ErrUnknownBranch):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrStorageWrite):
		log.Printf("[httpapi] sync %s storage failure: %v", report.RunID, err)
		report.Inserted = nil
		writeJSON(w, http.StatusInternalServerError, report)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Printf("[httpapi] sync %s canceled: %v", report.RunID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "run_id": report.RunID, "error": "sync canceled"})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// readSyncParams takes desde, hasta and branch from the query string. A POST
// may carry the same fields as a JSON body; query values win.
func readSyncParams(r *http.Request) (syncParams, error) {
	q := r.URL.Query()
	params := syncParams{
		Desde:    strings.TrimSpace(q.Get("desde")),
		Hasta:    strings.TrimSpace(q.Get("hasta")),
		Branches: splitBranches(q["branch"]),
	}

	if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		var body syncParams
		if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
			return syncParams{}, err
		}
		if params.Desde == "" {
			params.Desde = strings.TrimSpace(body.Desde)
		}
		if params.Hasta == "" {
			params.Hasta = strings.TrimSpace(body.Hasta)
		}
		if len(params.Branches) == 0 {
			params.Branches = splitBranches(body.Branches)
		}
	}
	return params, nil
}

func splitBranches(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	branch := strings.TrimSpace(q.Get("branch"))
	if branch == "" {
		writeError(w, http.StatusBadRequest, errors.New("branch is required"))
		return
	}
	span, err := a.service.Span(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.FetchOrders(r.Context(), branch, span)
	if err != nil {
		writeUpstreamError(w, branch, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAttendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	branch := strings.TrimSpace(q.Get("branch"))
	if branch == "" {
		writeError(w, http.StatusBadRequest, errors.New("branch is required"))
		return
	}
	rng, err := attendanceRange(q.Get("date"), q.Get("fini"), q.Get("ffin"), a.service.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.FetchAttendance(r.Context(), branch, rng)
	if err != nil {
		writeUpstreamError(w, branch, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// attendanceRange prefers explicit fini/ffin epochs and falls back to a
// single business day (today when date is empty).
func attendanceRange(date string, fini string, ffin string, now time.Time) (bizdate.Range, error) {
	if strings.TrimSpace(fini) != "" || strings.TrimSpace(ffin) != "" {
		start, err1 := strconv.ParseInt(strings.TrimSpace(fini), 10, 64)
		end, err2 := strconv.ParseInt(strings.TrimSpace(ffin), 10, 64)
		if err1 != nil || err2 != nil {
			return bizdate.Range{}, fmt.Errorf("%w: fini and ffin must be epoch seconds", bizdate.ErrInvalidRange)
		}
		return bizdate.ParseRange(start, end)
	}

	if strings.TrimSpace(date) == "" {
		date = "today"
	}
	day, err := bizdate.ParseDay(date, now)
	if err != nil {
		return bizdate.Range{}, err
	}
	return bizdate.SingleDay(day).Range(), nil
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	span, err := a.service.Span(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ListSales(r.Context(), span, q.Get("branch"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnknownBranch) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": a.service.Branches()})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if a.allowedOrigin != "*" {
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// upstreamStatus maps a proxy failure to the status returned to the caller.
// Auth failures pass the upstream 401/403 through.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownBranch), errors.Is(err, service.ErrMissingCredential):
		return http.StatusBadRequest
	case errors.Is(err, invu.ErrAuth):
		if status := invu.StatusOf(err); status != 0 {
			return status
		}
		return http.StatusUnauthorized
	case errors.Is(err, invu.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, invu.ErrFormat), errors.Is(err, invu.ErrUpstreamStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeUpstreamError keeps the upstream error text, which names the branch
// and request URL but never the credential.
func writeUpstreamError(w http.ResponseWriter, branch string, err error) {
	status := upstreamStatus(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, err)
		return
	}
	log.Printf("[httpapi] branch=%s upstream error (status %d): %v", branch, status, err)
	writeJSON(w, status, map[string]any{
		"ok":     false,
		"branch": branch,
		"error":  err.Error(),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause is logged.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
