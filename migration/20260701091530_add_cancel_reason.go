package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddCancelReason, downAddCancelReason)
}

func upAddCancelReason(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE visits ADD COLUMN cancel_reason VARCHAR(512) NOT NULL DEFAULT '';`)
	return err
}

func downAddCancelReason(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE visits DROP COLUMN cancel_reason;`)
	return err
}
