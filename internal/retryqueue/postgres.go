package retryqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:generate mockgen -source internal/retryqueue/postgres.go -destination=internal/retryqueue/postgres_mock_test.go -package=retryqueue

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres stores entries in the retry_queue table created by the
// postgres package migrations.
type Postgres struct {
	db db
}

func NewPostgres(db db) *Postgres {
	return &Postgres{db: db}
}

const selectColumns = `id, payload, reason, status, attempts, last_error, created_at, updated_at`

func (p *Postgres) Enqueue(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO retry_queue (id, order_id, shop_id, payload, reason, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID.String(), e.Order.ID, e.Order.ShopID, payload, e.Reason,
		string(e.Status), e.Attempts, e.LastError, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert retry entry: %w", err)
	}
	return nil
}

func (p *Postgres) Pending(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+selectColumns+` FROM retry_queue WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	return scanEntries(rows)
}

func (p *Postgres) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `SELECT `+selectColumns+` FROM retry_queue ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	return scanEntries(rows)
}

func (p *Postgres) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return p.exec(ctx, `UPDATE retry_queue SET status = 'delivered', updated_at = now() WHERE id = $1`, id.String())
}

func (p *Postgres) MarkAttempt(ctx context.Context, id uuid.UUID, cause error) error {
	return p.exec(ctx,
		`UPDATE retry_queue SET attempts = attempts + 1, last_error = $2, updated_at = now() WHERE id = $1`,
		id.String(), errText(cause))
}

func (p *Postgres) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return p.exec(ctx,
		`UPDATE retry_queue SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = now() WHERE id = $1`,
		id.String(), errText(cause))
}

func (p *Postgres) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update retry entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			payload []byte
			status  string
			created time.Time
			updated time.Time
		)
		if err := rows.Scan(&id, &payload, &e.Reason, &status, &e.Attempts, &e.LastError, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse entry id %q: %w", id, err)
		}
		if err := json.Unmarshal(payload, &e.Order); err != nil {
			return nil, fmt.Errorf("unmarshal entry %s: %w", id, err)
		}
		e.ID = parsed
		e.Status = Status(status)
		e.CreatedAt = created.UTC()
		e.UpdatedAt = updated.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retry entries: %w", err)
	}
	return out, nil
}
