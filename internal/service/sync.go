package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"invusync/backend/internal/aggregate"
	"invusync/backend/internal/bizdate"
	"invusync/backend/internal/domain"
	"invusync/backend/internal/invu"
	"invusync/backend/internal/metrics"
	"invusync/backend/internal/xid"
)

const (
	KindDailySales = "daily_sales"
	KindOrders     = "orders"
)

const (
	statePending  = "pending"
	stateFetching = "fetching"
)

// SyncRequest selects the span and branches of one run. No branch keys means
// every configured branch.
type SyncRequest struct {
	Span     bizdate.Span
	Branches []string
}

type branchRun struct {
	branch  domain.Branch
	summary domain.BranchSummary
	fetched spanFetch
	rows    []domain.SalesRow
}

// Sync fetches, normalizes and aggregates every selected branch, then upserts
// the merged daily rows in one batch. Branch failures are reported, never
// returned; the returned error is non-nil only for an unknown branch, a
// storage failure or a canceled run.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (domain.SyncReport, error) {
	return s.run(ctx, KindDailySales, req, s.writeDailySales)
}

// SyncOrders is Sync for per-order ingestion: normalized orders carrying an
// upstream id are upserted keyed by (sucursal_id, invu_id). Each branch's
// AggregatedCount is then its number of orders written.
func (s *Service) SyncOrders(ctx context.Context, req SyncRequest) (domain.SyncReport, error) {
	return s.run(ctx, KindOrders, req, s.writeOrders)
}

type writeFunc func(ctx context.Context, runs []*branchRun) (int, error)

func (s *Service) run(ctx context.Context, kind string, req SyncRequest, write writeFunc) (domain.SyncReport, error) {
	branches, err := s.selectBranches(req.Branches)
	if err != nil {
		return domain.SyncReport{}, err
	}

	report := domain.SyncReport{
		RunID:     xid.New("sync"),
		From:      req.Span.FromDay(),
		To:        req.Span.ToDay(),
		FetchedAt: s.now().UTC(),
	}

	runs := make([]*branchRun, len(branches))
	for i, b := range branches {
		runs[i] = &branchRun{
			branch: b,
			summary: domain.BranchSummary{
				Branch:     b.Key,
				SucursalID: b.SucursalID,
				State:      statePending,
			},
		}
	}

	// Fetching stops at the run deadline so the report still reaches the
	// caller; the write below runs on the caller's context.
	fetchCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, r := range runs {
		g.Go(func() error {
			s.syncBranch(fetchCtx, req.Span, r)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range runs {
		if !r.summary.OK {
			failed++
		}
	}
	report.Status = tierStatus(failed, len(runs))

	if err := ctx.Err(); err != nil {
		report.Branches = summaries(runs)
		report.Error = "sync canceled"
		s.logRun(kind, report, failed)
		return report, fmt.Errorf("sync %s: %w", report.RunID, err)
	}

	inserted := 0
	if failed < len(runs) {
		n, err := write(ctx, runs)
		if err != nil {
			report.Branches = summaries(runs)
			report.Status = http.StatusInternalServerError
			report.Error = "storage write failed"
			s.logRun(kind, report, failed)
			log.Printf("[sync] run=%s kind=%s write failed: %v", report.RunID, kind, err)
			return report, err
		}
		inserted = n
	}

	report.Inserted = &inserted
	report.Branches = summaries(runs)
	report.OK = report.Status == http.StatusOK
	metrics.RowsWritten.WithLabelValues(kind).Add(float64(inserted))
	s.logRun(kind, report, failed)
	return report, nil
}

// syncBranch runs one branch through pending, fetching and then normalized
// or failed. It only ever writes its own run.
func (s *Service) syncBranch(ctx context.Context, span bizdate.Span, r *branchRun) {
	started := time.Now()
	defer func() {
		r.summary.DurationMS = time.Since(started).Milliseconds()
		log.Printf("[sync] branch=%s state=%s reason=%s requests=%d raw=%d rows=%d dropped=%d duration=%dms",
			r.branch.Key, r.summary.State, r.summary.Reason, r.summary.Requests, r.summary.RawCount,
			r.summary.AggregatedCount, r.summary.Dropped, r.summary.DurationMS)
	}()

	token := s.tokens.Token(r.branch)
	if token == "" {
		r.fail(fmt.Errorf("%w: branch %s", ErrMissingCredential, r.branch.Key))
		return
	}
	if info := invu.InspectToken(token); info.ExpiresAt != nil {
		r.summary.CredentialExpiresAt = info.ExpiresAt
	}

	r.summary.State = stateFetching
	fetched, err := s.fetchSpan(ctx, r.branch, token, span)
	r.summary.SourceURL = fetched.sourceURL
	r.summary.Requests = fetched.requests
	if err != nil {
		r.fail(err)
		return
	}

	result := aggregate.Aggregate(r.branch.SucursalID, fetched.orders)
	r.fetched = fetched
	r.rows = result.Rows
	r.summary.RawCount = fetched.raw
	r.summary.Dropped = fetched.dropped
	r.summary.AggregatedCount = len(result.Rows)
	r.summary.Totals = &result.Totals
	r.summary.State = domain.BranchNormalized
	r.summary.OK = true
}

func (r *branchRun) fail(err error) {
	r.summary.OK = false
	r.summary.State = domain.BranchFailed
	r.summary.Reason = reasonFor(err)
	r.summary.Error = err.Error()
}

func (s *Service) writeDailySales(ctx context.Context, runs []*branchRun) (int, error) {
	rows := make([]domain.SalesRow, 0, 64)
	for _, r := range runs {
		if r.summary.OK {
			rows = append(rows, r.rows...)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	aggregate.SortRows(rows)
	return s.repo.UpsertDailySales(ctx, rows)
}

func (s *Service) writeOrders(ctx context.Context, runs []*branchRun) (int, error) {
	records := make([]domain.OrderRecord, 0, 256)
	for _, r := range runs {
		if !r.summary.OK {
			continue
		}
		r.summary.AggregatedCount = 0
		for i, o := range r.fetched.orders {
			if o.ID == "" {
				r.summary.Dropped++
				continue
			}
			r.summary.AggregatedCount++
			raw, err := json.Marshal(r.fetched.sources[i])
			if err != nil {
				raw = nil
			}
			records = append(records, domain.OrderRecord{
				SucursalID: r.branch.SucursalID,
				InvuID:     o.ID,
				Fecha:      o.Date,
				Total:      aggregate.RoundCents(o.Total),
				COGS:       aggregate.RoundCents(o.COGS),
				Tickets:    o.Tickets,
				Lineas:     o.Lines,
				Raw:        raw,
			})
		}
	}
	if len(records) == 0 {
		return 0, nil
	}
	return s.repo.UpsertOrders(ctx, records)
}

func (s *Service) selectBranches(keys []string) ([]domain.Branch, error) {
	if len(keys) == 0 {
		return s.branches, nil
	}
	out := make([]domain.Branch, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		b, err := s.lookup(k)
		if err != nil {
			return nil, err
		}
		if seen[b.Key] {
			continue
		}
		seen[b.Key] = true
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) logRun(kind string, report domain.SyncReport, failed int) {
	inserted := "-"
	if report.Inserted != nil {
		inserted = strconv.Itoa(*report.Inserted)
	}
	metrics.SyncRuns.WithLabelValues(kind, strconv.Itoa(report.Status)).Inc()
	log.Printf("[sync] run=%s kind=%s from=%s to=%s branches=%d failed=%d status=%d inserted=%s",
		report.RunID, kind, report.From, report.To, len(report.Branches), failed, report.Status, inserted)
}

// tierStatus is 200 when no branch failed, 207 when some did and 502 when
// all did.
func tierStatus(failed int, total int) int {
	switch {
	case failed == 0:
		return http.StatusOK
	case failed < total:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return domain.ReasonMissingCredential
	case errors.Is(err, invu.ErrAuth):
		return domain.ReasonAuth
	case errors.Is(err, invu.ErrFormat):
		return domain.ReasonFormat
	case errors.Is(err, invu.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.Is(err, invu.ErrUpstreamStatus):
		return domain.ReasonStatus
	case errors.Is(err, context.Canceled):
		return domain.ReasonCanceled
	default:
		return domain.ReasonInternal
	}
}

func summaries(runs []*branchRun) []domain.BranchSummary {
	out := make([]domain.BranchSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.summary)
	}
	return out
}
