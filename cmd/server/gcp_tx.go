package main

import (
	"context"
	"database/sql"
	"time"

	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	txcontext "georef/pkg/platform/tx"
)

const defaultGCPTxTimeout = 5 * time.Second

// gcpPostgresTx runs GCP mutations in one database transaction. The image
// row is locked first so concurrent writers of the same image serialize.
type gcpPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newGCPPostgresTx(db *sql.DB) *gcpPostgresTx {
	return &gcpPostgresTx{db: db}
}

func (t *gcpPostgresTx) RunInTx(ctx context.Context, imageID id.ImageID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultGCPTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return txcontext.Run(ctx, t.db, func(ctx context.Context) error {
		// A missing image locks nothing; the service reports it.
		if _, err := txcontext.Executor(ctx, t.db).ExecContext(ctx,
			`SELECT 1 FROM images WHERE id = $1 FOR UPDATE`, imageID.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock image")
		}
		return fn(ctx)
	})
}
