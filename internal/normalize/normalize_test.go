package normalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestExtractRecordsShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"top level array", `[{"total":1},{"total":2}]`, 2},
		{"data key", `{"data":[{"total":1}]}`, 1},
		{"ordenes before orders", `{"orders":[{},{},{}],"ordenes":[{}]}`, 1},
		{"skips non-array candidate", `{"data":{"nested":true},"ventas":[{},{}]}`, 2},
		{"result key", `{"result":[{}]}`, 1},
		{"no array", `{"message":"ok"}`, 0},
		{"scalar", `42`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractRecords(decode(t, tc.payload), DefaultListKeys)
			if len(got) != tc.want {
				t.Fatalf("expected %d records, got %d", tc.want, len(got))
			}
		})
	}
	if ExtractRecords(nil, DefaultListKeys) != nil {
		t.Fatalf("nil payload must yield no records")
	}
}

func TestNormalizeDateFallbackOrder(t *testing.T) {
	m := DefaultMapping()
	tests := []struct {
		name   string
		record string
		want   string
	}{
		{"fecha wins", `{"fecha":"2024-04-01","dia":"2024-04-02"}`, "2024-04-01"},
		{"null fecha falls through", `{"fecha":null,"dia":"2024-04-02"}`, "2024-04-02"},
		{"created_at timestamp", `{"created_at":"2024-04-01T10:15:00-05:00"}`, "2024-04-01"},
		{"utc timestamp shifts to business day", `{"fecha_creacion":"2024-04-02T03:00:00Z"}`, "2024-04-01"},
		{"epoch seconds", `{"fecha":1712016000}`, "2024-04-01"},
		{"epoch milliseconds", `{"fecha_orden":1712016000000}`, "2024-04-01"},
		{"epoch seconds string", `{"start_date":"1712016000"}`, "2024-04-01"},
		{"unparseable falls to next", `{"fecha":"soon","fecha_fin":"2024-04-03"}`, "2024-04-03"},
		{"day month year", `{"fecha_ticket":"05/04/2024"}`, "2024-04-05"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order, ok := Normalize(decode(t, tc.record).(map[string]any), m)
			if !ok {
				t.Fatalf("expected date to resolve")
			}
			if order.Date != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, order.Date)
			}
		})
	}
}

func TestNormalizeWithoutDateIsDropped(t *testing.T) {
	m := DefaultMapping()
	for _, raw := range []string{`{"total":10}`, `{"fecha":"","total":10}`, `{"fecha":null}`, `{"fecha":"mañana"}`} {
		if _, ok := Normalize(decode(t, raw).(map[string]any), m); ok {
			t.Fatalf("%s: expected order to be dropped", raw)
		}
	}
}

func TestNormalizeRejectsImpossibleCalendarDates(t *testing.T) {
	m := DefaultMapping()
	for _, raw := range []string{`{"fecha":"2024-02-30","total":10}`, `{"fecha":"2024-04-31","total":10}`, `{"fecha":"2023-02-29"}`} {
		if o, ok := Normalize(decode(t, raw).(map[string]any), m); ok {
			t.Fatalf("%s: expected order to be dropped, got %+v", raw, o)
		}
	}
	if day, ok := Day("2024-02-29"); !ok || day != "2024-02-29" {
		t.Fatalf("expected leap day to pass, got %q %v", day, ok)
	}
}

func TestNormalizeTotalFallbacks(t *testing.T) {
	m := DefaultMapping()
	tests := []struct {
		name   string
		record string
		want   float64
	}{
		{"total first", `{"fecha":"2024-04-01","total":10,"total_bruto":99}`, 10},
		{"total_bruto_general", `{"fecha":"2024-04-01","total_bruto_general":75.456}`, 75.456},
		{"numeric string", `{"fecha":"2024-04-01","monto_total":"12.5"}`, 12.5},
		{"non numeric skipped", `{"fecha":"2024-04-01","total":"n/a","importe":7}`, 7},
		{"subtotal plus itbms", `{"fecha":"2024-04-01","subtotal":100,"itbms":7}`, 107},
		{"subtotal plus iva", `{"fecha":"2024-04-01","subtotal":"50","iva":5}`, 55},
		{"missing parts default to zero", `{"fecha":"2024-04-01","impuesto":3}`, 3},
		{"negative refunds kept", `{"fecha":"2024-04-01","total":-20}`, -20},
		{"nothing", `{"fecha":"2024-04-01"}`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order, ok := Normalize(decode(t, tc.record).(map[string]any), m)
			if !ok {
				t.Fatalf("expected order")
			}
			if order.Total != tc.want {
				t.Fatalf("expected total %v, got %v", tc.want, order.Total)
			}
		})
	}
}

func TestNormalizeCountsAndCost(t *testing.T) {
	m := DefaultMapping()
	order, ok := Normalize(decode(t, `{
		"fecha":"2024-04-01",
		"total":30,
		"costo":"12.25",
		"detalle":[{"sku":"a"},{"sku":"b"},{"sku":"c"}],
		"num_lineas":9,
		"tickets":0,
		"id_orden":987654321012
	}`).(map[string]any), m)
	if !ok {
		t.Fatalf("expected order")
	}
	if order.COGS != 12.25 {
		t.Fatalf("expected cogs 12.25, got %v", order.COGS)
	}
	if order.Lines != 3 {
		t.Fatalf("expected detalle array length 3, got %d", order.Lines)
	}
	if order.Tickets != 1 {
		t.Fatalf("expected non-positive ticket count to default to 1, got %d", order.Tickets)
	}
	if order.ID != "987654321012" {
		t.Fatalf("expected order id to keep all digits, got %s", order.ID)
	}

	order, _ = Normalize(decode(t, `{"fecha":"2024-04-01","lineas":4,"num_tickets":2}`).(map[string]any), m)
	if order.Lines != 4 || order.Tickets != 2 || order.COGS != 0 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestNormalizeIsIdempotentOnNormalizedRows(t *testing.T) {
	m := DefaultMapping()
	row := `{"fecha":"2024-04-01","sucursal_id":"sf","total":150.25,"cogs":40.1,"tickets":3,"lineas":7}`
	first, ok := Normalize(decode(t, row).(map[string]any), m)
	if !ok {
		t.Fatalf("expected order")
	}

	again, err := json.Marshal(map[string]any{
		"fecha":   first.Date,
		"total":   first.Total,
		"cogs":    first.COGS,
		"tickets": first.Tickets,
		"lineas":  first.Lines,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, ok := Normalize(decode(t, string(again)).(map[string]any), m)
	if !ok {
		t.Fatalf("expected order")
	}
	if first != second {
		t.Fatalf("normalization not idempotent: %+v vs %+v", first, second)
	}
	if first.Date != "2024-04-01" || first.Total != 150.25 || first.COGS != 40.1 || first.Tickets != 3 || first.Lines != 7 {
		t.Fatalf("unexpected values %+v", first)
	}
}

func TestNormalizePayloadCountsDropped(t *testing.T) {
	batch := NormalizePayload(decode(t, `{"data":[{"total":100,"fecha":"2024-04-01"},{"total":5},"junk",{"total":50,"fecha":"2024-04-01"}]}`), DefaultMapping())
	if batch.Raw != 4 || batch.Dropped != 2 || len(batch.Orders) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestChainResolveReportsField(t *testing.T) {
	chain := Fields(Number, "a", "b")
	v, field, ok := chain.Resolve(map[string]any{"b": json.Number("2")})
	if !ok || field != "b" || v != 2 {
		t.Fatalf("unexpected resolve %v %s %v", v, field, ok)
	}
}
