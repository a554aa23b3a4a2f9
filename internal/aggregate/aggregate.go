// Package aggregate sums normalized orders per business day for one branch.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"invusync/backend/internal/domain"
	"invusync/backend/internal/normalize"
)

type Result struct {
	Rows   []domain.SalesRow
	Totals domain.Totals
}

type bucket struct {
	total   decimal.Decimal
	cogs    decimal.Decimal
	tickets int
	lines   int
}

func (b *bucket) add(o normalize.Order) {
	b.total = b.total.Add(decimal.NewFromFloat(o.Total))
	b.cogs = b.cogs.Add(decimal.NewFromFloat(o.COGS))
	b.tickets += o.Tickets
	b.lines += o.Lines
}

// Aggregate groups orders by date. Each float is taken at its shortest decimal
// form and summed exactly, so the result does not depend on input order; only
// the final per-date and per-branch sums are rounded to cents.
func Aggregate(sucursalID string, orders []normalize.Order) Result {
	byDate := make(map[string]*bucket)
	var all bucket
	for _, o := range orders {
		b, ok := byDate[o.Date]
		if !ok {
			b = &bucket{}
			byDate[o.Date] = b
		}
		b.add(o)
		all.add(o)
	}

	rows := make([]domain.SalesRow, 0, len(byDate))
	for date, b := range byDate {
		rows = append(rows, domain.SalesRow{
			Fecha:      date,
			SucursalID: sucursalID,
			Total:      roundCents(b.total),
			COGS:       roundCents(b.cogs),
			Tickets:    b.tickets,
			Lineas:     b.lines,
		})
	}
	SortRows(rows)

	return Result{
		Rows: rows,
		Totals: domain.Totals{
			Total:   roundCents(all.total),
			COGS:    roundCents(all.cogs),
			Tickets: all.tickets,
			Lineas:  all.lines,
		},
	}
}

// SortRows orders by date, then branch. YYYY-MM-DD sorts lexicographically.
func SortRows(rows []domain.SalesRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Fecha != rows[j].Fecha {
			return rows[i].Fecha < rows[j].Fecha
		}
		return rows[i].SucursalID < rows[j].SucursalID
	})
}

// SumRows totals already rounded rows.
func SumRows(rows []domain.SalesRow) domain.Totals {
	total, cogs := decimal.Zero, decimal.Zero
	var t domain.Totals
	for _, r := range rows {
		total = total.Add(decimal.NewFromFloat(r.Total))
		cogs = cogs.Add(decimal.NewFromFloat(r.COGS))
		t.Tickets += r.Tickets
		t.Lineas += r.Lineas
	}
	t.Total = roundCents(total)
	t.COGS = roundCents(cogs)
	return t
}

func roundCents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// RoundCents rounds half away from zero on the shortest decimal form of v, so
// 1.005 becomes 1.01 rather than the binary-float 1.00.
func RoundCents(v float64) float64 {
	return roundCents(decimal.NewFromFloat(v))
}
