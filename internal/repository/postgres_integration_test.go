//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mkadit/payswitch/internal/postgres"
	"github.com/mkadit/payswitch/internal/transaction"
	"github.com/mkadit/payswitch/iso8583"
)

func migrationsSource(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("payswitch"),
		tcpostgres.WithUsername("payswitch"),
		tcpostgres.WithPassword("payswitch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(dsn, migrationsSource(t)))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.HealthCheck(ctx, pool))
	return pool
}

func TestPostgres_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(ctx, t)

	now := time.Now().UTC().Truncate(time.Second)
	repo := NewPostgres(pool)

	msg, err := iso8583.NewBuilder(iso8583.MTIFinancialRequest).
		PAN("4111111111111111").
		ProcessingCode("000000").
		Amount("000000010000").
		STAN("000321").
		Field(iso8583.FieldICCData, "9F02060000000100009F3602000A").
		TerminalID("TERM0001").
		Build()
	require.NoError(t, err)

	rec := transaction.NewRecord(msg, "1", "TERM0001", now)
	require.NoError(t, repo.Insert(ctx, rec))
	assert.ErrorIs(t, repo.Insert(ctx, rec), ErrDuplicateKey)

	require.NoError(t, repo.UpdateResponse(ctx, rec.Key, transaction.ResponseUpdate{State: transaction.StateSent}))
	require.NoError(t, repo.UpdateResponse(ctx, rec.Key, transaction.ResponseUpdate{
		ResponseCode: "00",
		AuthCode:     "654321",
		RRN:          "529110000001",
		State:        transaction.StateApproved,
	}))

	got, err := repo.FindByStanToday(ctx, "000321")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, "0200", got.MTI)
	assert.Equal(t, transaction.StateApproved, got.State)
	assert.Equal(t, "4111111111111111", got.FieldOr(iso8583.FieldPAN, ""))
	assert.Equal(t, "00", got.FieldOr(iso8583.FieldResponseCode, ""))
	assert.Equal(t, "654321", got.FieldOr(iso8583.FieldAuthCode, ""))
	assert.False(t, got.UpdatedAt.IsZero())

	byTerm, err := repo.FindByTransactionIDAndTerminal(ctx, "1", "TERM0001")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, byTerm.Key)

	_, err = repo.FindByKey(ctx, transaction.Key{Date: "19990101", Time: "000000", UniqueNo: "none"})
	assert.ErrorIs(t, err, transaction.ErrTransactionNotFound)
	err = repo.UpdateResponse(ctx, transaction.Key{UniqueNo: "none"}, transaction.ResponseUpdate{State: transaction.StateFailed})
	assert.ErrorIs(t, err, transaction.ErrTransactionNotFound)
}
