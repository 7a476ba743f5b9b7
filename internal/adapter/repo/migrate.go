package repo

import (
	"context"
	"fmt"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/sqlinline"
)

// Migrate creates the pipeline and job tables when missing.
func Migrate(ctx context.Context, db infra.SQLExecutor) error {
	for i, stmt := range sqlinline.SchemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
