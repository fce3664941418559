package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

// MockChargeAger is a mock implementation of ChargeAger.
type MockChargeAger struct {
	mock.Mock
}

func (m *MockChargeAger) ListDueBefore(ctx context.Context, cutoff time.Time, statuses ...types.ChargeStatus) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, cutoff, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeAger) BulkMarkOverdue(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func newAgingJob(t *testing.T) (*AgingJob, *MockChargeAger, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	charges := new(MockChargeAger)
	runner := db.NewTxRunner(mockPool, slog.Default())
	return NewAgingJob(runner, charges, slog.Default()), charges, mockPool
}

func TestAgingPromotesOnlyPendingCharges(t *testing.T) {
	job, charges, mockPool := newAgingJob(t)

	pendingID := uuid.New()
	due := []*types.PendingCharge{
		{ID: pendingID, Status: types.ChargePending},
		{ID: uuid.New(), Status: types.ChargeOverdue},
	}
	charges.On("ListDueBefore", mock.Anything, mock.Anything, mock.Anything).Return(due, nil)

	mockPool.ExpectBegin()
	mockPool.ExpectCommit()
	charges.On("BulkMarkOverdue", mock.Anything, mock.Anything, []uuid.UUID{pendingID}).
		Return(int64(1), nil)

	err := job.Run(context.Background())
	require.NoError(t, err)
	charges.AssertCalled(t, "BulkMarkOverdue", mock.Anything, mock.Anything, []uuid.UUID{pendingID})
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAgingNoCandidatesSkipsTransaction(t *testing.T) {
	job, charges, mockPool := newAgingJob(t)

	charges.On("ListDueBefore", mock.Anything, mock.Anything, mock.Anything).
		Return([]*types.PendingCharge{}, nil)

	err := job.Run(context.Background())
	require.NoError(t, err)
	charges.AssertNotCalled(t, "BulkMarkOverdue", mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAgingPropagatesListError(t *testing.T) {
	job, charges, _ := newAgingJob(t)

	boom := errors.New("query failed")
	charges.On("ListDueBefore", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAgingRollsBackOnUpdateError(t *testing.T) {
	job, charges, mockPool := newAgingJob(t)

	charges.On("ListDueBefore", mock.Anything, mock.Anything, mock.Anything).
		Return([]*types.PendingCharge{{ID: uuid.New(), Status: types.ChargePending}}, nil)

	mockPool.ExpectBegin()
	mockPool.ExpectRollback()
	boom := errors.New("update failed")
	charges.On("BulkMarkOverdue", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), boom)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
