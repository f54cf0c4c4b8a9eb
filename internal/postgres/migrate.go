package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/victornm/trivia/internal/postgres/migrations"
)

// Migrate applies every pending migration.
func Migrate(ctx context.Context, dsn string) error {
	return withMigrator(ctx, dsn, func(m *migrate.Migrator) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		if group.IsZero() {
			slog.InfoContext(ctx, "postgres: no new migrations")
			return nil
		}

		slog.InfoContext(ctx, "postgres: migrated", "group", group.String())
		return nil
	})
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, dsn string) error {
	return withMigrator(ctx, dsn, func(m *migrate.Migrator) error {
		group, err := m.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}

		if group.IsZero() {
			slog.InfoContext(ctx, "postgres: nothing to roll back")
			return nil
		}

		slog.InfoContext(ctx, "postgres: rolled back", "group", group.String())
		return nil
	})
}

func withMigrator(ctx context.Context, dsn string, fn func(m *migrate.Migrator) error) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	m := migrate.NewMigrator(db, migrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if err := m.Unlock(ctx); err != nil {
			slog.ErrorContext(ctx, "postgres: unlock migrations failed", "error", err)
		}
	}()

	return fn(m)
}
