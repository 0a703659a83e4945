package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/passivleads/emailfinder/internal/ledger"
)

func TestCheckAndDeductDebitsBalance(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lgr, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE user_credits").
		WithArgs("user-1", 0.05).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs("user-1", -0.05, "batch job").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, lgr.CheckAndDeduct(context.Background(), "user-1", 0.05, "batch job"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndDeductReportsInsufficientCredits(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lgr, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE user_credits").
		WithArgs("user-1", 0.05).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = lgr.CheckAndDeduct(context.Background(), "user-1", 0.05, "batch job")
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundCreditsBalance(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lgr, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE user_credits").
		WithArgs("user-1", 0.05).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs("user-1", 0.05, "job failed").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, lgr.Refund(context.Background(), "user-1", 0.05, "job failed"))
	require.NoError(t, mock.ExpectationsWereMet())
}
