// Package migrations holds the versioned schema of the engine. Every file
// named <version>_<name>.go registers exactly one migration.
package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const splitMarker = "--bun:split"

// execScript runs the statements of script, separated by splitMarker, in one transaction.
func execScript(ctx context.Context, db *bun.DB, script string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, stmt := range strings.Split(script, splitMarker) {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}
