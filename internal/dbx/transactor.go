package dbx

import (
	"context"
	"database/sql"
)

// Snapshot is the isolation used by operations that read a subtree closure
// and then mutate it.
var Snapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}

// Transactor hands out a non-transactional handle and runs units of work in
// a transaction. Errors returned by WithTx are passed through Classify.
type Transactor interface {
	Conn() DBTX
	WithTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error
}

// SQLTransactor is a Transactor over a *sql.DB.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) Conn() DBTX {
	return t.db
}

func (t *SQLTransactor) WithTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	return Classify(WithTx(ctx, t.db, opts, fn))
}
