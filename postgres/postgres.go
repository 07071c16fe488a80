package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/DanilaP/social-network-backend/api"
)

// Postgres provides storage in PostgreSQL. Every operation on a single
// parent row is individually atomic; operations spanning two parent rows
// run inside a transaction with both rows locked in deterministic order.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the connection
// is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close releases the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

func (pg *Postgres) runInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return pg.bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// mapError translates driver errors into the API error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return api.ErrNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return api.ErrExists
	}
	return err
}

// missError maps a zero-row conditional write to the error taxonomy: the
// row exists but its predicate excluded the caller, or there is no such
// row at all.
func missError(exists bool) error {
	if exists {
		return api.ErrForbidden
	}
	return api.ErrNotFound
}

// addToSet appends v unless already present, preserving set semantics on
// the array columns.
func addToSet(set []string, v string) []string {
	if slices.Contains(set, v) {
		return set
	}
	return append(set, v)
}

// removeFromSet removes v, reporting whether the set changed.
func removeFromSet(set []string, v string) ([]string, bool) {
	i := slices.Index(set, v)
	if i < 0 {
		return set, false
	}
	return slices.Delete(slices.Clone(set), i, i+1), true
}

// toggleLikes runs the single-statement membership toggle on a likes
// column and returns the post-update set. The CASE expression is evaluated
// against the row state at execution time, so two racing toggles by the
// same user cannot both add.
func (pg *Postgres) toggleLikes(ctx context.Context, table, userID string, where string, args ...any) ([]string, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET likes = CASE WHEN ? = ANY(likes) THEN array_remove(likes, ?) ELSE array_append(likes, ?) END WHERE %s RETURNING likes",
		table, where,
	)
	var likes []string
	rawArgs := append([]any{userID, userID, userID}, args...)
	if err := pg.bun.NewRaw(query, rawArgs...).Scan(ctx, pgdialect.Array(&likes)); err != nil {
		return nil, mapError(err)
	}
	return emptyIfNil(likes), nil
}
