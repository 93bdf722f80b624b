package dbx

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Classify maps driver and context errors onto the common sentinels.
// Serialization failures and deadlocks become ErrTransactionAborted and
// expired deadlines become ErrTimeout. Anything else is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrTransactionAborted) || errors.Is(err, common.ErrTimeout) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}

	return err
}

// RetryRead runs a read-only unit of work and retries it once when it was
// aborted by a concurrent writer. Mutations must not be passed here.
func RetryRead(ctx context.Context, fn func(ctx context.Context) error) error {
	err := Classify(fn(ctx))
	if !errors.Is(err, common.ErrTransactionAborted) {
		return err
	}
	if ctx.Err() != nil {
		return Classify(ctx.Err())
	}
	return Classify(fn(ctx))
}
