package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_indexes.sql
var createIndexesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, createIndexesSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, `
DROP INDEX IF EXISTS answers_question_correct_idx;
--bun:split
DROP INDEX IF EXISTS answers_session_idx;
--bun:split
DROP INDEX IF EXISTS sessions_one_active_per_player;`)
		},
	)
}
