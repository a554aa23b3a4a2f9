package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"invusync/backend/internal/domain"
	"invusync/backend/internal/store"
)

type salesKey struct {
	fecha      string
	sucursalID string
}

type orderKey struct {
	sucursalID string
	invuID     string
}

type storedSales struct {
	row       domain.SalesRow
	updatedAt time.Time
}

type storedOrder struct {
	order     domain.OrderRecord
	updatedAt time.Time
}

// Store is the in-process Repository used when DATABASE_URL is unset and in
// tests. Upserts replace whole rows, like the Postgres ON CONFLICT path.
type Store struct {
	mu     sync.RWMutex
	sales  map[salesKey]storedSales
	orders map[orderKey]storedOrder
}

func New() *Store {
	return &Store{
		sales:  make(map[salesKey]storedSales),
		orders: make(map[orderKey]storedOrder),
	}
}

func (s *Store) UpsertDailySales(ctx context.Context, rows []domain.SalesRow) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}
	// Validate the whole batch before touching the map so a bad row never
	// leaves a half-applied batch behind.
	if err := store.ValidateSalesRows(rows); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, r := range rows {
		s.sales[salesKey{fecha: r.Fecha, sucursalID: r.SucursalID}] = storedSales{row: r, updatedAt: now}
	}
	return len(rows), nil
}

func (s *Store) UpsertOrders(ctx context.Context, orders []domain.OrderRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}
	if err := store.ValidateOrders(orders); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, o := range orders {
		o.Raw = slices.Clone(o.Raw)
		s.orders[orderKey{sucursalID: o.SucursalID, invuID: o.InvuID}] = storedOrder{order: o, updatedAt: now}
	}
	return len(orders), nil
}

func (s *Store) ListDailySales(_ context.Context, from string, to string, sucursalID string) ([]domain.SalesRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.SalesRow, 0, len(s.sales))
	for key, stored := range s.sales {
		if key.fecha < from || key.fecha > to {
			continue
		}
		if sucursalID != "" && key.sucursalID != sucursalID {
			continue
		}
		rows = append(rows, stored.row)
	}

	slices.SortFunc(rows, func(a, b domain.SalesRow) int {
		if a.Fecha == b.Fecha {
			return strings.Compare(a.SucursalID, b.SucursalID)
		}
		return strings.Compare(a.Fecha, b.Fecha)
	})
	return rows, nil
}

// ListOrders returns stored orders for one branch, sorted by id.
func (s *Store) ListOrders(sucursalID string) []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OrderRecord, 0)
	for key, stored := range s.orders {
		if key.sucursalID == sucursalID {
			out = append(out, stored.order)
		}
	}
	slices.SortFunc(out, func(a, b domain.OrderRecord) int {
		return strings.Compare(a.InvuID, b.InvuID)
	})
	return out
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}
