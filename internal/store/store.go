package store

import (
	"context"
	"errors"
	"fmt"

	"invusync/backend/internal/bizdate"
	"invusync/backend/internal/domain"
)

var (
	ErrStorageWrite = errors.New("storage write failed")
	ErrInvalidRow   = errors.New("invalid row")
)

// Repository is the durable side of the pipeline. Upserts are keyed by the
// natural key ((fecha, sucursal_id) for sales, (sucursal_id, invu_id) for
// orders), overwrite conflicting rows wholesale, and apply a batch
// all-or-nothing.
type Repository interface {
	UpsertDailySales(ctx context.Context, rows []domain.SalesRow) (int, error)
	UpsertOrders(ctx context.Context, orders []domain.OrderRecord) (int, error)
	ListDailySales(ctx context.Context, from string, to string, sucursalID string) ([]domain.SalesRow, error)
	Ping(ctx context.Context) error
}

func ValidateSalesRows(rows []domain.SalesRow) error {
	for i, r := range rows {
		if !bizdate.IsDay(r.Fecha) || r.SucursalID == "" {
			return fmt.Errorf("%w: sales row %d (fecha=%q sucursal_id=%q)", ErrInvalidRow, i, r.Fecha, r.SucursalID)
		}
	}
	return nil
}

func ValidateOrders(orders []domain.OrderRecord) error {
	for i, o := range orders {
		if !bizdate.IsDay(o.Fecha) || o.SucursalID == "" || o.InvuID == "" {
			return fmt.Errorf("%w: order %d (sucursal_id=%q invu_id=%q)", ErrInvalidRow, i, o.SucursalID, o.InvuID)
		}
	}
	return nil
}
