package dbx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	plain := errors.New("plain")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, common.ErrTransactionAborted},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), common.ErrTransactionAborted},
		{"deadline", context.DeadlineExceeded, common.ErrTimeout},
		{"already classified", common.ErrTransactionAborted, common.ErrTransactionAborted},
		{"other pg error", &pgconn.PgError{Code: "23505"}, nil},
		{"plain", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if tt.in == nil {
				assert.NoError(t, got)
				return
			}
			if tt.want == nil {
				assert.Same(t, tt.in, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40001"}
	got := Classify(pgErr)

	var target *pgconn.PgError
	require.ErrorAs(t, got, &target)
	assert.Equal(t, "40001", target.Code)
}

func TestRetryRead_RetriesOnceOnAbort(t *testing.T) {
	calls := 0
	err := RetryRead(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryRead_GivesUpAfterSecondAbort(t *testing.T) {
	calls := 0
	err := RetryRead(context.Background(), func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.ErrorIs(t, err, common.ErrTransactionAborted)
	assert.Equal(t, 2, calls)
}

func TestRetryRead_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryRead(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryRead_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryRead(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
