package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"invusync/backend/internal/aggregate"
	"invusync/backend/internal/bizdate"
	"invusync/backend/internal/cache"
	"invusync/backend/internal/domain"
	"invusync/backend/internal/invu"
	"invusync/backend/internal/normalize"
	"invusync/backend/internal/store"
)

var (
	ErrUnknownBranch     = errors.New("unknown branch")
	ErrMissingCredential = errors.New("missing branch credential")
)

// Fetcher is the upstream client as seen by the pipeline.
type Fetcher interface {
	Fetch(ctx context.Context, req invu.Request) (invu.Result, error)
}

// TokenSource resolves a branch credential at use time. An empty string
// means the branch has no credential configured.
type TokenSource interface {
	Token(b domain.Branch) string
}

// Options configures a Service. RunTimeout bounds the fetch phase of one
// sync run; zero means no bound.
type Options struct {
	Branches    []domain.Branch
	Orders      invu.Endpoint
	Attendance  invu.Endpoint
	Mapping     *normalize.Mapping
	Concurrency int
	DailyTiling bool
	MaxDays     int
	CacheTTL    time.Duration
	RunTimeout  time.Duration
	Now         func() time.Time
}

type Service struct {
	repo        store.Repository
	fetcher     Fetcher
	tokens      TokenSource
	responses   cache.ResponseCache
	branches    []domain.Branch
	byKey       map[string]domain.Branch
	orders      invu.Endpoint
	attendance  invu.Endpoint
	mapping     normalize.Mapping
	concurrency int
	dailyTiling bool
	maxDays     int
	cacheTTL    time.Duration
	runTimeout  time.Duration
	now         func() time.Time
}

func New(repo store.Repository, fetcher Fetcher, tokens TokenSource, responses cache.ResponseCache, opts Options) *Service {
	if responses == nil {
		responses = cache.NoopResponseCache{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	mapping := normalize.DefaultMapping()
	if opts.Mapping != nil {
		mapping = *opts.Mapping
	}
	if opts.Orders.Name == "" {
		opts.Orders.Name = "orders"
	}
	if opts.Attendance.Name == "" {
		opts.Attendance.Name = "attendance"
	}

	byKey := make(map[string]domain.Branch, len(opts.Branches))
	for _, b := range opts.Branches {
		byKey[b.Key] = b
	}

	return &Service{
		repo:        repo,
		fetcher:     fetcher,
		tokens:      tokens,
		responses:   responses,
		branches:    opts.Branches,
		byKey:       byKey,
		orders:      opts.Orders,
		attendance:  opts.Attendance,
		mapping:     mapping,
		concurrency: opts.Concurrency,
		dailyTiling: opts.DailyTiling,
		maxDays:     opts.MaxDays,
		cacheTTL:    opts.CacheTTL,
		runTimeout:  opts.RunTimeout,
		now:         opts.Now,
	}
}

// Span parses a desde/hasta pair against the service clock and day limit.
func (s *Service) Span(desde string, hasta string) (bizdate.Span, error) {
	return bizdate.ParseSpan(desde, hasta, s.now(), s.maxDays)
}

func (s *Service) Now() time.Time {
	return s.now()
}

// Branches lists the configured branches with credential status. Tokens are
// inspected, never returned.
func (s *Service) Branches() []domain.BranchStatus {
	now := s.now()
	out := make([]domain.BranchStatus, 0, len(s.branches))
	for _, b := range s.branches {
		info := invu.InspectToken(s.tokens.Token(b))
		out = append(out, domain.BranchStatus{
			Key:                 b.Key,
			SucursalID:          b.SucursalID,
			CredentialPresent:   info.Present,
			CredentialExpiresAt: info.ExpiresAt,
			CredentialExpired:   info.Expired(now),
		})
	}
	return out
}

func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// ListSales reads stored daily rows for the span. An empty branch key lists
// every branch.
func (s *Service) ListSales(ctx context.Context, span bizdate.Span, branchKey string) (domain.SalesListResponse, error) {
	sucursalID := ""
	if strings.TrimSpace(branchKey) != "" {
		b, err := s.lookup(branchKey)
		if err != nil {
			return domain.SalesListResponse{}, err
		}
		sucursalID = b.SucursalID
	}

	rows, err := s.repo.ListDailySales(ctx, span.FromDay(), span.ToDay(), sucursalID)
	if err != nil {
		return domain.SalesListResponse{}, err
	}
	if rows == nil {
		rows = []domain.SalesRow{}
	}
	return domain.SalesListResponse{
		From:   span.FromDay(),
		To:     span.ToDay(),
		Rows:   rows,
		Totals: aggregate.SumRows(rows),
	}, nil
}

// FetchOrders proxies one branch's orders for the span and returns them
// normalized, without persisting anything.
func (s *Service) FetchOrders(ctx context.Context, branchKey string, span bizdate.Span) (domain.OrdersResponse, error) {
	b, token, err := s.credential(branchKey)
	if err != nil {
		return domain.OrdersResponse{}, err
	}

	key := fmt.Sprintf("orders:%s:%s:%s", b.Key, span.FromDay(), span.ToDay())
	var cached domain.OrdersResponse
	if s.cacheGet(ctx, key, &cached) {
		cached.Cached = true
		return cached, nil
	}

	fetched, err := s.fetchSpan(ctx, b, token, span)
	if err != nil {
		return domain.OrdersResponse{}, err
	}

	resp := domain.OrdersResponse{
		Branch:    b.Key,
		From:      span.FromDay(),
		To:        span.ToDay(),
		SourceURL: fetched.sourceURL,
		RawCount:  fetched.raw,
		Dropped:   fetched.dropped,
		Orders:    make([]domain.NormalizedOrder, 0, len(fetched.orders)),
	}
	for _, o := range fetched.orders {
		resp.Orders = append(resp.Orders, domain.NormalizedOrder{
			InvuID:  o.ID,
			Fecha:   o.Date,
			Total:   aggregate.RoundCents(o.Total),
			COGS:    aggregate.RoundCents(o.COGS),
			Tickets: o.Tickets,
			Lineas:  o.Lines,
		})
	}

	s.cacheSet(ctx, key, resp)
	return resp, nil
}

var attendanceListKeys = append(append([]string{}, normalize.DefaultListKeys...), "movimientos", "asistencias", "empleados")

// FetchAttendance proxies raw attendance records for one branch and range.
func (s *Service) FetchAttendance(ctx context.Context, branchKey string, r bizdate.Range) (domain.AttendanceResponse, error) {
	b, token, err := s.credential(branchKey)
	if err != nil {
		return domain.AttendanceResponse{}, err
	}

	key := fmt.Sprintf("attendance:%s:%d:%d", b.Key, r.FIni, r.FFin)
	var cached domain.AttendanceResponse
	if s.cacheGet(ctx, key, &cached) {
		cached.Cached = true
		return cached, nil
	}

	res, err := s.fetcher.Fetch(ctx, invu.Request{Branch: b.Key, Token: token, Endpoint: s.attendance, Range: r})
	if err != nil {
		return domain.AttendanceResponse{}, fmt.Errorf("branch %s attendance: %w", b.Key, err)
	}

	records := normalize.Objects(normalize.ExtractRecords(res.Payload, attendanceListKeys))
	resp := domain.AttendanceResponse{
		Branch:    b.Key,
		FIni:      r.FIni,
		FFin:      r.FFin,
		SourceURL: res.URL,
		Count:     len(records),
		Records:   records,
	}

	s.cacheSet(ctx, key, resp)
	return resp, nil
}

func (s *Service) lookup(branchKey string) (domain.Branch, error) {
	key := strings.ToLower(strings.TrimSpace(branchKey))
	b, ok := s.byKey[key]
	if !ok {
		return domain.Branch{}, fmt.Errorf("%w: %q", ErrUnknownBranch, branchKey)
	}
	return b, nil
}

func (s *Service) credential(branchKey string) (domain.Branch, string, error) {
	b, err := s.lookup(branchKey)
	if err != nil {
		return domain.Branch{}, "", err
	}
	token := s.tokens.Token(b)
	if token == "" {
		return b, "", fmt.Errorf("%w: branch %s", ErrMissingCredential, b.Key)
	}
	return b, token, nil
}

type spanFetch struct {
	sourceURL string
	requests  int
	raw       int
	dropped   int
	orders    []normalize.Order
	sources   []map[string]any
}

// fetchSpan requests every tile of the span for one branch. A failed tile
// fails the whole span. Orders dated outside the span are dropped.
func (s *Service) fetchSpan(ctx context.Context, b domain.Branch, token string, span bizdate.Span) (spanFetch, error) {
	var out spanFetch
	for _, tile := range span.Tiles(s.dailyTiling) {
		if out.sourceURL == "" {
			out.sourceURL = s.orders.URL(tile)
		}
		out.requests++
		res, err := s.fetcher.Fetch(ctx, invu.Request{Branch: b.Key, Token: token, Endpoint: s.orders, Range: tile})
		if err != nil {
			return out, fmt.Errorf("branch %s: %w", b.Key, err)
		}

		batch := normalize.NormalizePayload(res.Payload, s.mapping)
		out.raw += batch.Raw
		out.dropped += batch.Dropped
		for i, o := range batch.Orders {
			if !span.Contains(o.Date) {
				out.dropped++
				continue
			}
			out.orders = append(out.orders, o)
			out.sources = append(out.sources, batch.Sources[i])
		}
	}
	return out, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	hit, err := s.responses.Get(ctx, key, dest)
	if err != nil {
		log.Printf("[service] WARN: cache get %s: %v", key, err)
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if err := s.responses.Set(ctx, key, value, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: cache set %s: %v", key, err)
	}
}
