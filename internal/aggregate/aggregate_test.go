package aggregate

import (
	"math/rand"
	"reflect"
	"testing"

	"invusync/backend/internal/domain"
	"invusync/backend/internal/normalize"
)

func TestAggregateSingleDayScenario(t *testing.T) {
	res := Aggregate("sf", []normalize.Order{
		{Date: "2024-04-01", Total: 100, Tickets: 1},
		{Date: "2024-04-01", Total: 50, Tickets: 1},
	})
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row.Fecha != "2024-04-01" || row.SucursalID != "sf" || row.Total != 150 || row.Tickets != 2 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestAggregateRoundsOnlyFinalSums(t *testing.T) {
	res := Aggregate("museo", []normalize.Order{{Date: "2024-04-01", Total: 75.456, Tickets: 1}})
	if res.Rows[0].Total != 75.46 {
		t.Fatalf("expected 75.46, got %v", res.Rows[0].Total)
	}

	// Rounding each order first would give 0.01 * 3 = 0.03.
	res = Aggregate("museo", []normalize.Order{
		{Date: "2024-04-01", Total: 0.004},
		{Date: "2024-04-01", Total: 0.004},
		{Date: "2024-04-01", Total: 0.004},
	})
	if res.Rows[0].Total != 0.01 {
		t.Fatalf("expected 0.012 to round to 0.01, got %v", res.Rows[0].Total)
	}
}

func TestAggregateSortsByDateAndTotals(t *testing.T) {
	res := Aggregate("sf", []normalize.Order{
		{Date: "2024-04-03", Total: 10, COGS: 4, Tickets: 1, Lines: 2},
		{Date: "2024-04-01", Total: 20.105, COGS: 1, Tickets: 1, Lines: 1},
		{Date: "2024-04-02", Total: -5, Tickets: 1},
	})
	dates := []string{res.Rows[0].Fecha, res.Rows[1].Fecha, res.Rows[2].Fecha}
	if !reflect.DeepEqual(dates, []string{"2024-04-01", "2024-04-02", "2024-04-03"}) {
		t.Fatalf("rows not sorted: %v", dates)
	}
	if res.Rows[0].Total != 20.11 {
		t.Fatalf("expected half away from zero rounding to 20.11, got %v", res.Rows[0].Total)
	}
	if res.Rows[1].Total != -5 {
		t.Fatalf("negative refund totals must be kept, got %v", res.Rows[1].Total)
	}
	want := domain.Totals{Total: 25.11, COGS: 5, Tickets: 3, Lineas: 3}
	if res.Totals != want {
		t.Fatalf("expected totals %+v, got %+v", want, res.Totals)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	orders := make([]normalize.Order, 0, 200)
	r := rand.New(rand.NewSource(7))
	days := []string{"2024-04-01", "2024-04-02", "2024-04-03"}
	for i := 0; i < 200; i++ {
		orders = append(orders, normalize.Order{
			Date:    days[r.Intn(len(days))],
			Total:   float64(r.Intn(100000)) / 1000,
			COGS:    float64(r.Intn(50000)) / 1000,
			Tickets: 1,
			Lines:   r.Intn(5),
		})
	}

	base := Aggregate("sf", orders)
	for i := 0; i < 10; i++ {
		shuffled := append([]normalize.Order(nil), orders...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Aggregate("sf", shuffled)
		if !reflect.DeepEqual(base, got) {
			t.Fatalf("aggregation depends on input order:\n%+v\n%+v", base, got)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate("sf", nil)
	if len(res.Rows) != 0 || res.Totals != (domain.Totals{}) {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestSumRows(t *testing.T) {
	got := SumRows([]domain.SalesRow{
		{Total: 0.1, COGS: 0.2, Tickets: 1, Lineas: 2},
		{Total: 0.2, COGS: 0.1, Tickets: 2, Lineas: 1},
	})
	if got.Total != 0.3 || got.COGS != 0.3 || got.Tickets != 3 || got.Lineas != 3 {
		t.Fatalf("unexpected totals %+v", got)
	}
}
