package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"invusync/backend/internal/domain"
	"invusync/backend/internal/store"
)

func TestUpsertDailySalesIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	batch := []domain.SalesRow{
		{Fecha: "2024-04-01", SucursalID: "sf", Total: 150, COGS: 40, Tickets: 2, Lineas: 5},
		{Fecha: "2024-04-01", SucursalID: "museo", Total: 80.5, Tickets: 1},
	}

	if _, err := s.UpsertDailySales(ctx, batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	once, _ := s.ListDailySales(ctx, "2024-04-01", "2024-04-01", "")

	if _, err := s.UpsertDailySales(ctx, batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	twice, _ := s.ListDailySales(ctx, "2024-04-01", "2024-04-01", "")

	if len(twice) != 2 {
		t.Fatalf("expected 2 rows after repeated upsert, got %d", len(twice))
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("repeated upsert changed state:\n%+v\n%+v", once, twice)
	}
}

func TestUpsertDailySalesOverwritesNotAdds(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.UpsertDailySales(ctx, []domain.SalesRow{{Fecha: "2024-04-01", SucursalID: "sf", Total: 100, Tickets: 3}})
	_, _ = s.UpsertDailySales(ctx, []domain.SalesRow{{Fecha: "2024-04-01", SucursalID: "sf", Total: 40, Tickets: 1}})

	rows, _ := s.ListDailySales(ctx, "2024-04-01", "2024-04-01", "sf")
	if len(rows) != 1 || rows[0].Total != 40 || rows[0].Tickets != 1 {
		t.Fatalf("expected last write to win, got %+v", rows)
	}
}

func TestUpsertRejectsWholeBatchOnInvalidRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.UpsertDailySales(ctx, []domain.SalesRow{
		{Fecha: "2024-04-01", SucursalID: "sf", Total: 1},
		{Fecha: "04/01/2024", SucursalID: "sf", Total: 2},
	})
	if !errors.Is(err, store.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	rows, _ := s.ListDailySales(ctx, "2000-01-01", "2999-12-31", "")
	if len(rows) != 0 {
		t.Fatalf("expected nothing written, got %+v", rows)
	}
}

func TestUpsertRejectsImpossibleCalendarDates(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.UpsertDailySales(ctx, []domain.SalesRow{{Fecha: "2024-04-31", SucursalID: "sf", Total: 1}}); !errors.Is(err, store.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite for sales row, got %v", err)
	}
	if _, err := s.UpsertOrders(ctx, []domain.OrderRecord{{Fecha: "2024-02-30", SucursalID: "sf", InvuID: "1"}}); !errors.Is(err, store.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite for order, got %v", err)
	}
}

func TestListDailySalesFiltersAndSorts(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.UpsertDailySales(ctx, []domain.SalesRow{
		{Fecha: "2024-04-03", SucursalID: "sf"},
		{Fecha: "2024-04-01", SucursalID: "sf"},
		{Fecha: "2024-04-01", SucursalID: "museo"},
		{Fecha: "2024-03-31", SucursalID: "sf"},
	})

	rows, _ := s.ListDailySales(ctx, "2024-04-01", "2024-04-03", "")
	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Fecha+"/"+r.SucursalID)
	}
	want := []string{"2024-04-01/museo", "2024-04-01/sf", "2024-04-03/sf"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestUpsertOrdersKeyedByBranchAndInvuID(t *testing.T) {
	s := New()
	ctx := context.Background()
	orders := []domain.OrderRecord{
		{SucursalID: "sf", InvuID: "1", Fecha: "2024-04-01", Total: 10},
		{SucursalID: "sf", InvuID: "2", Fecha: "2024-04-01", Total: 20},
	}
	for i := 0; i < 3; i++ {
		if _, err := s.UpsertOrders(ctx, orders); err != nil {
			t.Fatalf("upsert orders: %v", err)
		}
	}
	if got := s.ListOrders("sf"); len(got) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(got))
	}

	if _, err := s.UpsertOrders(ctx, []domain.OrderRecord{{SucursalID: "sf", Fecha: "2024-04-01"}}); !errors.Is(err, store.ErrStorageWrite) {
		t.Fatalf("expected order without invu id to be rejected, got %v", err)
	}
}
