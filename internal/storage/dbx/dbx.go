// Package dbx содержит минимальные абстракции над database/sql,
// общие для всех репозиториев: интерфейс DBTX, которому удовлетворяют
// *sql.DB и *sql.Tx, и помощник для выполнения функций в транзакции.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX — подмножество database/sql, используемое репозиториями.
// Ему удовлетворяют и *sql.DB, и *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx открывает транзакцию, выполняет fn с транзакционным handle,
// после чего коммитит при успехе или откатывает при ошибке либо панике.
// Паника пробрасывается дальше.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
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
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
