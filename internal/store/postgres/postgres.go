package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"invusync/backend/internal/domain"
	"invusync/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the sync tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) UpsertDailySales(ctx context.Context, rows []domain.SalesRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := store.ValidateSalesRows(rows); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, writeError("begin daily_sales", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_sales (fecha, sucursal_id, total, cogs, tickets, lineas, updated_at)
		VALUES ($1::date, $2, $3, $4, $5, $6, now())
		ON CONFLICT (fecha, sucursal_id)
		DO UPDATE SET
			total = EXCLUDED.total,
			cogs = EXCLUDED.cogs,
			tickets = EXCLUDED.tickets,
			lineas = EXCLUDED.lineas,
			updated_at = now()
	`)
	if err != nil {
		return 0, writeError("prepare daily_sales", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Fecha, r.SucursalID, r.Total, r.COGS, r.Tickets, r.Lineas); err != nil {
			return 0, writeError(fmt.Sprintf("upsert daily_sales %s/%s", r.Fecha, r.SucursalID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, writeError("commit daily_sales", err)
	}
	return len(rows), nil
}

func (s *Store) UpsertOrders(ctx context.Context, orders []domain.OrderRecord) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	if err := store.ValidateOrders(orders); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, writeError("begin invu_orders", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invu_orders (sucursal_id, invu_id, fecha, total, cogs, tickets, lineas, raw, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8::jsonb, now())
		ON CONFLICT (sucursal_id, invu_id)
		DO UPDATE SET
			fecha = EXCLUDED.fecha,
			total = EXCLUDED.total,
			cogs = EXCLUDED.cogs,
			tickets = EXCLUDED.tickets,
			lineas = EXCLUDED.lineas,
			raw = EXCLUDED.raw,
			updated_at = now()
	`)
	if err != nil {
		return 0, writeError("prepare invu_orders", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx, o.SucursalID, o.InvuID, o.Fecha, o.Total, o.COGS, o.Tickets, o.Lineas, nullableJSON(o.Raw)); err != nil {
			return 0, writeError(fmt.Sprintf("upsert invu_orders %s/%s", o.SucursalID, o.InvuID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, writeError("commit invu_orders", err)
	}
	return len(orders), nil
}

func (s *Store) ListDailySales(ctx context.Context, from string, to string, sucursalID string) ([]domain.SalesRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(fecha, 'YYYY-MM-DD'), sucursal_id, total::float8, cogs::float8, tickets, lineas
		FROM daily_sales
		WHERE fecha BETWEEN $1::date AND $2::date
			AND ($3::text = '' OR sucursal_id = $3::text)
		ORDER BY fecha, sucursal_id
	`, from, to, sucursalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SalesRow, 0, 64)
	for rows.Next() {
		var r domain.SalesRow
		if err := rows.Scan(&r.Fecha, &r.SucursalID, &r.Total, &r.COGS, &r.Tickets, &r.Lineas); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: SQLSTATE %s: %s", store.ErrStorageWrite, op, pgErr.Code, pgErr.Message)
	}
	return fmt.Errorf("%w: %s: %v", store.ErrStorageWrite, op, err)
}
