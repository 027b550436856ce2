package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the tables and the reset_fixtures procedure. It is safe
// to run against a database that already has them.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	// Multi-statement scripts need the simple protocol, which Exec uses when
	// no arguments are passed.
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ResetFixtures wipes every table, restarts the id sequences and loads the
// fixed data set.
func ResetFixtures(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CALL reset_fixtures()`); err != nil {
		return fmt.Errorf("reset fixtures: %w", err)
	}
	return nil
}
