package normalize

// Field pairs an upstream field name with the coercion applied to its value.
type Field[T any] struct {
	Name   string
	Coerce func(any) (T, bool)
}

// Chain is an ordered fallback list. The first field that is present, not
// null, and coerces successfully wins.
type Chain[T any] []Field[T]

func (c Chain[T]) Resolve(record map[string]any) (T, string, bool) {
	var zero T
	for _, f := range c {
		raw, ok := record[f.Name]
		if !ok || raw == nil {
			continue
		}
		if v, ok := f.Coerce(raw); ok {
			return v, f.Name, true
		}
	}
	return zero, "", false
}

// Fields builds a chain that applies the same coercion to every name.
func Fields[T any](coerce func(any) (T, bool), names ...string) Chain[T] {
	chain := make(Chain[T], 0, len(names))
	for _, name := range names {
		chain = append(chain, Field[T]{Name: name, Coerce: coerce})
	}
	return chain
}

// Mapping is the field table of one upstream adapter.
type Mapping struct {
	ListKeys []string
	Date     Chain[string]
	Total    Chain[float64]
	Subtotal Chain[float64]
	Tax      Chain[float64]
	COGS     Chain[float64]
	Tickets  Chain[int]
	Lines    Chain[int]
	OrderID  Chain[string]
}

// DefaultListKeys are probed, in order, when the payload is not an array.
var DefaultListKeys = []string{"data", "ordenes", "orders", "ventas", "items", "result"}

// DefaultMapping returns the INVU field table. The fallback orders are kept
// stable across API versions so historical payloads keep normalizing the same
// way.
func DefaultMapping() Mapping {
	return Mapping{
		ListKeys: DefaultListKeys,
		Date: Fields(Day,
			"fecha", "dia", "fecha_creacion", "created_at", "fecha_registro",
			"fecha_orden", "fecha_ticket", "fecha_inicio", "start_date", "fecha_fin",
		),
		Total: Fields(Number,
			"total", "total_bruto", "total_bruto_general", "grand_total",
			"monto_total", "venta_total", "importe",
		),
		Subtotal: Fields(Number, "subtotal"),
		Tax:      Fields(Number, "itbms", "iva", "impuesto"),
		COGS:     Fields(Number, "cogs", "costo", "total_costo", "costo_total", "costo_bruto"),
		Tickets:  Fields(PositiveCount, "tickets", "num_tickets", "cantidad_tickets", "ticket_count"),
		Lines: append(
			Fields(ArrayLen, "detalle", "items", "lineas"),
			Fields(Count, "lineas", "num_lineas", "cantidad_lineas", "items_count")...,
		),
		OrderID: Fields(Identifier, "id", "invu_id", "id_orden", "orden_id", "numero_orden", "num_orden"),
	}
}
