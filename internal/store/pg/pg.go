// Package pg implementa los stores del dispatcher sobre PostgreSQL (pgxpool).
// Cada mutación es un statement sincrónico: el commit implícito cumple el
// mismo contrato de durabilidad que la escritura atómica del backend fs.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/buzonero/internal/store"
)

// Config tuning del pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MinConns        int
	ConnMaxLifetime string
}

// Open crea el pool, asegura el esquema y arma los stores.
func Open(ctx context.Context, cfg Config) (*store.Stores, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &store.Stores{
		Quota: &QuotaStore{pool: pool},
		Log:   &DeliveryLog{pool: pool},
		Close: func() error { pool.Close(); return nil },
	}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS send_quota (
	id    int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	date  text NOT NULL DEFAULT '',
	count int  NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS sent_log (
	seq         bigserial PRIMARY KEY,
	recipient   text        NOT NULL,
	subject     text        NOT NULL,
	sent_at     timestamptz NOT NULL,
	tracking_id text        NOT NULL UNIQUE,
	opened      boolean     NOT NULL DEFAULT false,
	opened_at   timestamptz
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

// ─── QuotaStore ───

// QuotaStore guarda el contador diario en una tabla de una sola fila.
type QuotaStore struct{ pool *pgxpool.Pool }

func (s *QuotaStore) CheckAndReset(ctx context.Context, today string) (store.QuotaRecord, error) {
	// Upsert de la fila única; si la fecha cambió, resetear el contador.
	const q = `
INSERT INTO send_quota (id, date, count) VALUES (1, $1, 0)
ON CONFLICT (id) DO UPDATE
	SET date  = EXCLUDED.date,
	    count = CASE WHEN send_quota.date = EXCLUDED.date THEN send_quota.count ELSE 0 END
RETURNING date, count`
	var rec store.QuotaRecord
	if err := s.pool.QueryRow(ctx, q, today).Scan(&rec.Date, &rec.Count); err != nil {
		return store.QuotaRecord{}, fmt.Errorf("pg: quota check-and-reset: %w", err)
	}
	return rec, nil
}

func (s *QuotaStore) Current(ctx context.Context) (store.QuotaRecord, error) {
	var rec store.QuotaRecord
	err := s.pool.QueryRow(ctx, `SELECT date, count FROM send_quota WHERE id = 1`).
		Scan(&rec.Date, &rec.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.QuotaRecord{}, nil
	}
	if err != nil {
		return store.QuotaRecord{}, fmt.Errorf("pg: quota current: %w", err)
	}
	return rec, nil
}

func (s *QuotaStore) Increment(ctx context.Context) (store.QuotaRecord, error) {
	var rec store.QuotaRecord
	err := s.pool.QueryRow(ctx,
		`UPDATE send_quota SET count = count + 1 WHERE id = 1 RETURNING date, count`).
		Scan(&rec.Date, &rec.Count)
	if err != nil {
		return store.QuotaRecord{}, fmt.Errorf("pg: quota increment: %w", err)
	}
	return rec, nil
}

// ─── DeliveryLog ───

// DeliveryLog guarda los registros de envío en sent_log.
type DeliveryLog struct{ pool *pgxpool.Pool }

func (l *DeliveryLog) Append(ctx context.Context, rec store.DeliveryRecord) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO sent_log (recipient, subject, sent_at, tracking_id) VALUES ($1, $2, $3, $4)`,
		rec.To, rec.Subject, rec.SentAt, rec.TrackingID)
	if err != nil {
		return fmt.Errorf("pg: sentlog append: %w", err)
	}
	return nil
}

func (l *DeliveryLog) List(ctx context.Context) ([]store.DeliveryRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT recipient, subject, sent_at, tracking_id, opened, opened_at FROM sent_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("pg: sentlog list: %w", err)
	}
	defer rows.Close()

	var out []store.DeliveryRecord
	for rows.Next() {
		var rec store.DeliveryRecord
		if err := rows.Scan(&rec.To, &rec.Subject, &rec.SentAt, &rec.TrackingID, &rec.Opened, &rec.OpenedAt); err != nil {
			return nil, fmt.Errorf("pg: sentlog scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *DeliveryLog) FindByTrackingID(ctx context.Context, id string) (store.DeliveryRecord, error) {
	var rec store.DeliveryRecord
	err := l.pool.QueryRow(ctx,
		`SELECT recipient, subject, sent_at, tracking_id, opened, opened_at FROM sent_log WHERE tracking_id = $1`,
		id).Scan(&rec.To, &rec.Subject, &rec.SentAt, &rec.TrackingID, &rec.Opened, &rec.OpenedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.DeliveryRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.DeliveryRecord{}, fmt.Errorf("pg: sentlog find: %w", err)
	}
	return rec, nil
}

func (l *DeliveryLog) MarkOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	// opened=false en el WHERE hace la operación idempotente:
	// sólo la primera resolución escribe opened_at.
	tag, err := l.pool.Exec(ctx,
		`UPDATE sent_log SET opened = true, opened_at = $2 WHERE tracking_id = $1 AND NOT opened`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("pg: sentlog mark opened: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// 0 filas: o ya estaba abierto, o no existe
	if _, err := l.FindByTrackingID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
