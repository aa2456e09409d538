package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/phototag/internal/errors"
)

// DBTX is the subset of database/sql used by the query functions.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
// Begin and commit failures surface as STORAGE_ERROR; errors returned by fn
// are passed through unchanged.
//
//	err := db.WithTx(ctx, database, func(ctx context.Context, tx db.DBTX) error {
//	    _, err := db.DeleteRecord(ctx, tx, id)
//	    return err
//	})
func WithTx(ctx context.Context, database *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = errors.NewStorage(cerr)
		}
	}()

	err = fn(ctx, tx)
	return err
}
