// Package normalize turns loosely shaped INVU payloads into per-order facts.
package normalize

type Order struct {
	ID      string
	Date    string
	Total   float64
	COGS    float64
	Tickets int
	Lines   int
}

// Batch is the outcome of normalizing one payload. Dropped counts records
// that were not objects or had no resolvable date. Sources[i] is the record
// Orders[i] came from.
type Batch struct {
	Orders  []Order
	Sources []map[string]any
	Raw     int
	Dropped int
}

// ExtractRecords locates the record array in payload: the payload itself when
// it is an array, else the first listKey holding an array, else nothing.
func ExtractRecords(payload any, listKeys []string) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range listKeys {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
	}
	return nil
}

// Objects keeps the records that are JSON objects.
func Objects(records []any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if obj, ok := r.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Normalize extracts one order. It reports false when no date resolves; such
// orders are left out of aggregation without failing the batch.
func Normalize(record map[string]any, m Mapping) (Order, bool) {
	date, _, ok := m.Date.Resolve(record)
	if !ok {
		return Order{}, false
	}

	order := Order{Date: date}
	if total, _, ok := m.Total.Resolve(record); ok {
		order.Total = total
	} else {
		subtotal, _, _ := m.Subtotal.Resolve(record)
		tax, _, _ := m.Tax.Resolve(record)
		order.Total = subtotal + tax
	}

	order.COGS, _, _ = m.COGS.Resolve(record)

	order.Tickets = 1
	if tickets, _, ok := m.Tickets.Resolve(record); ok {
		order.Tickets = tickets
	}

	order.Lines, _, _ = m.Lines.Resolve(record)
	order.ID, _, _ = m.OrderID.Resolve(record)
	return order, true
}

// NormalizePayload runs ExtractRecords and Normalize over a whole payload.
func NormalizePayload(payload any, m Mapping) Batch {
	records := ExtractRecords(payload, m.ListKeys)
	batch := Batch{
		Orders:  make([]Order, 0, len(records)),
		Sources: make([]map[string]any, 0, len(records)),
		Raw:     len(records),
	}
	for _, r := range records {
		obj, ok := r.(map[string]any)
		if !ok {
			batch.Dropped++
			continue
		}
		order, ok := Normalize(obj, m)
		if !ok {
			batch.Dropped++
			continue
		}
		batch.Orders = append(batch.Orders, order)
		batch.Sources = append(batch.Sources, obj)
	}
	return batch
}
