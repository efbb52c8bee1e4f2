package directory

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"

	"github.com/TemirB/orderfeed/internal/domain"
)

//go:generate mockgen -source internal/directory/postgres.go -destination=internal/directory/postgres_mock_test.go -package=directory

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres resolves names against the shops table. Hits are memoized;
// misses are not, so a shop added later is picked up on the next order.
type Postgres struct {
	db   querier
	memo *lru.Cache[string, string]
}

func NewPostgres(db querier, memoSize int) (*Postgres, error) {
	if memoSize < 1 {
		memoSize = 256
	}
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, memo: memo}, nil
}

func (p *Postgres) Resolve(ctx context.Context, shopName string) (string, error) {
	key := normalize(shopName)
	if key == "" {
		return "", domain.ErrUnknownShop
	}
	if id, ok := p.memo.Get(key); ok {
		return id, nil
	}

	var id string
	err := p.db.QueryRow(ctx, `SELECT id FROM shops WHERE lower(name) = $1 OR id = $2 LIMIT 1`, key, shopName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUnknownShop
	}
	if err != nil {
		return "", fmt.Errorf("resolve shop: %w", err)
	}

	p.memo.Add(key, id)
	return id, nil
}
