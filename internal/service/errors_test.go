package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/yuqie6/Sanpai/internal/progression"
)

func TestPolicyErrorsUnwrapToErrPolicy(t *testing.T) {
	for _, err := range []error{
		&DistanceExceededError{Distance: 300, Allowed: 100},
		&AlreadyVisitedError{SiteID: 1},
		&RemoteQuotaError{Max: 2, Used: 2},
	} {
		require.ErrorIs(t, err, ErrPolicy)
		require.NotErrorIs(t, err, ErrValidation)
	}
}

func TestConfigurationErrorMatchesProgression(t *testing.T) {
	err := fmt.Errorf("wrap: %w", progression.ErrConfiguration)
	require.ErrorIs(t, err, ErrConfiguration)
	require.Equal(t, err, classifyStorageError(err))
}

func TestClassifyStorageError(t *testing.T) {
	raw := errors.New("disk I/O error")
	got := classifyStorageError(raw)
	require.ErrorIs(t, got, ErrStorage)
	require.ErrorIs(t, got, raw)

	require.Nil(t, classifyStorageError(nil))
	require.Equal(t, context.Canceled, classifyStorageError(context.Canceled))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, isRetryable(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"})))
	require.True(t, isRetryable(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, isRetryable(&AlreadyVisitedError{SiteID: 1}))
}

func TestWithRetryStopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test", func() error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	require.Equal(t, maxTxAttempts, attempts)
	require.ErrorIs(t, err, ErrStorage)

	attempts = 0
	err = withRetry(context.Background(), "test", func() error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	attempts = 0
	err = withRetry(context.Background(), "test", func() error {
		attempts++
		return &RemoteQuotaError{Max: 1, Used: 1}
	})
	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, ErrPolicy)
}
