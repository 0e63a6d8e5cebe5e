package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/gobarber/libs/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent booking schema.
func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply booking schema: %w", err)
	}
	return nil
}
