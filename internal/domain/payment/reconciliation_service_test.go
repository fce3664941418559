package payment

import (
	"context"
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

// MockChargeRepo is a mock implementation of ChargeRepository.
type MockChargeRepo struct {
	mock.Mock
}

func (m *MockChargeRepo) Create(ctx context.Context, q db.Querier, params types.CreateChargeParams) (*types.PendingCharge, error) {
	args := m.Called(ctx, q, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.PendingCharge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.PendingCharge, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) ListByUser(ctx context.Context, userID uuid.UUID, filter types.ChargeFilter) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) ListMatching(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, q, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) ListDueBefore(ctx context.Context, cutoff time.Time, statuses ...types.ChargeStatus) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, cutoff, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) ListDueBetween(ctx context.Context, from, until time.Time, status types.ChargeStatus) ([]*types.PendingCharge, error) {
	args := m.Called(ctx, from, until, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.PendingCharge), args.Error(1)
}

func (m *MockChargeRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockChargeRepo) BulkMarkOverdue(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChargeRepo) CancelBySubscription(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, subscriptionID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPaymentRepo is a mock implementation of PaymentRepository.
type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64, paymentDate time.Time, method types.PaymentMethod, note string) (*types.Payment, error) {
	args := m.Called(ctx, q, userID, amount, paymentDate, method, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Payment), args.Error(1)
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Payment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Payment), args.Error(1)
}

func (m *MockPaymentRepo) ListByDateRange(ctx context.Context, userID uuid.UUID, from, until time.Time) ([]*types.Payment, error) {
	args := m.Called(ctx, userID, from, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Payment), args.Error(1)
}

// MockLedgerRepo is a mock implementation of LedgerRepository.
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Append(ctx context.Context, q db.Querier, params types.CreateLedgerEntryParams) (*types.LedgerEntry, error) {
	args := m.Called(ctx, q, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.LedgerEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*types.LedgerBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.LedgerBalance), args.Error(1)
}

// MockUserChecker is a mock implementation of UserChecker.
type MockUserChecker struct {
	mock.Mock
}

func (m *MockUserChecker) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockSubscriptionTxStore is a mock implementation of SubscriptionTxStore.
type MockSubscriptionTxStore struct {
	mock.Mock
}

func (m *MockSubscriptionTxStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.Subscription, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MockSubscriptionTxStore) Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockCacheInvalidator is a mock implementation of CacheInvalidator.
type MockCacheInvalidator struct {
	mock.Mock
}

func (m *MockCacheInvalidator) InvalidateAll() {
	m.Called()
}

type reconcileFixture struct {
	svc      *ReconciliationServiceImpl
	users    *MockUserChecker
	charges  *MockChargeRepo
	payments *MockPaymentRepo
	ledger   *MockLedgerRepo
	subs     *MockSubscriptionTxStore
	cache    *MockCacheInvalidator
	mockPool pgxmock.PgxPoolIface
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	f := &reconcileFixture{
		users:    new(MockUserChecker),
		charges:  new(MockChargeRepo),
		payments: new(MockPaymentRepo),
		ledger:   new(MockLedgerRepo),
		subs:     new(MockSubscriptionTxStore),
		cache:    new(MockCacheInvalidator),
		mockPool: mockPool,
	}
	runner := db.NewTxRunner(mockPool, slog.Default())
	f.svc = NewReconciliationService(runner, f.users, f.charges, f.payments, f.ledger, f.subs, f.cache, slog.Default())
	return f
}

func (f *reconcileFixture) expectPaymentInsert(userID uuid.UUID, amount float64) {
	f.payments.On("Create", mock.Anything, mock.Anything, userID, amount, mock.Anything, mock.Anything, mock.Anything).
		Return(&types.Payment{ID: uuid.New(), UserID: userID, Amount: amount}, nil)
}

func validReconcileParams(userID uuid.UUID) types.ReconcileParams {
	return types.ReconcileParams{
		UserID:      userID,
		Amount:      50,
		PaymentDate: time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC),
		Method:      types.MethodPix,
	}
}

func TestReconcileExplicitChargeActivatesSubscription(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()
	subID := uuid.New()
	chargeID := uuid.New()

	params := validReconcileParams(userID)
	params.PendingChargeID = &chargeID

	f.users.On("Exists", mock.Anything, userID).Return(true, nil)
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectCommit()
	f.expectPaymentInsert(userID, 50)

	f.charges.On("GetForUpdate", mock.Anything, mock.Anything, chargeID).
		Return(&types.PendingCharge{
			ID:             chargeID,
			UserID:         userID,
			SubscriptionID: &subID,
			Amount:         50,
			Status:         types.ChargePending,
			Description:    "Assinatura Mensal (1/12) - Janeiro/2026",
		}, nil)
	f.charges.On("MarkPaid", mock.Anything, mock.Anything, chargeID).Return(nil)

	f.subs.On("GetForUpdate", mock.Anything, mock.Anything, subID).
		Return(&types.Subscription{ID: subID, UserID: userID, Status: types.SubscriptionPending}, nil)
	f.subs.On("Activate", mock.Anything, mock.Anything, subID).Return(nil)

	var ledgerParams types.CreateLedgerEntryParams
	f.ledger.On("Append", mock.Anything, mock.Anything, mock.AnythingOfType("types.CreateLedgerEntryParams")).
		Run(func(args mock.Arguments) { ledgerParams = args.Get(2).(types.CreateLedgerEntryParams) }).
		Return(&types.LedgerEntry{ID: uuid.New(), UserID: userID, Kind: types.LedgerInflow, Amount: 50}, nil)
	f.cache.On("InvalidateAll").Return()

	result, err := f.svc.Reconcile(context.Background(), params)
	require.NoError(t, err)

	require.NotNil(t, result.Charge)
	assert.Equal(t, types.ChargePaid, result.Charge.Status)
	require.NotNil(t, result.ActivatedSubscription)
	assert.Equal(t, types.SubscriptionActive, result.ActivatedSubscription.Status)

	assert.Equal(t, types.LedgerInflow, ledgerParams.Kind)
	assert.Equal(t, "Pagamento via PIX - Assinatura Mensal (1/12) - Janeiro/2026", ledgerParams.Description)

	f.cache.AssertCalled(t, "InvalidateAll")
	assert.NoError(t, f.mockPool.ExpectationsWereMet())
}

func TestReconcileAlreadyActiveSubscriptionNotReactivated(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()
	subID := uuid.New()
	chargeID := uuid.New()

	params := validReconcileParams(userID)
	params.PendingChargeID = &chargeID

	f.users.On("Exists", mock.Anything, userID).Return(true, nil)
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectCommit()
	f.expectPaymentInsert(userID, 50)

	f.charges.On("GetForUpdate", mock.Anything, mock.Anything, chargeID).
		Return(&types.PendingCharge{ID: chargeID, UserID: userID, SubscriptionID: &subID, Amount: 50, Status: types.ChargeOverdue}, nil)
	f.charges.On("MarkPaid", mock.Anything, mock.Anything, chargeID).Return(nil)
	f.subs.On("GetForUpdate", mock.Anything, mock.Anything, subID).
		Return(&types.Subscription{ID: subID, Status: types.SubscriptionActive}, nil)
	f.ledger.On("Append", mock.Anything, mock.Anything, mock.Anything).
		Return(&types.LedgerEntry{ID: uuid.New()}, nil)
	f.cache.On("InvalidateAll").Return()

	result, err := f.svc.Reconcile(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, result.ActivatedSubscription)
	f.subs.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileExplicitChargeRejections(t *testing.T) {
	userID := uuid.New()
	chargeID := uuid.New()

	tests := []struct {
		name    string
		charge  *types.PendingCharge
		wantErr error
	}{
		{
			name:    "charge of another user",
			charge:  &types.PendingCharge{ID: chargeID, UserID: uuid.New(), Amount: 50, Status: types.ChargePending},
			wantErr: types.ErrBadRequest,
		},
		{
			name:    "already paid",
			charge:  &types.PendingCharge{ID: chargeID, UserID: userID, Amount: 50, Status: types.ChargePaid},
			wantErr: types.ErrConflict,
		},
		{
			name:    "canceled",
			charge:  &types.PendingCharge{ID: chargeID, UserID: userID, Amount: 50, Status: types.ChargeCanceled},
			wantErr: types.ErrConflict,
		},
		{
			name:    "amount mismatch",
			charge:  &types.PendingCharge{ID: chargeID, UserID: userID, Amount: 75, Status: types.ChargePending},
			wantErr: types.ErrBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture(t)
			params := validReconcileParams(userID)
			params.PendingChargeID = &chargeID

			f.users.On("Exists", mock.Anything, userID).Return(true, nil)
			f.mockPool.ExpectBegin()
			f.mockPool.ExpectRollback()
			f.expectPaymentInsert(userID, 50)
			f.charges.On("GetForUpdate", mock.Anything, mock.Anything, chargeID).Return(tt.charge, nil)

			_, err := f.svc.Reconcile(context.Background(), params)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			f.charges.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
			f.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
			assert.NoError(t, f.mockPool.ExpectationsWereMet())
		})
	}
}

func TestReconcileImplicitMatchPicksEarliestDue(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()

	params := validReconcileParams(userID)

	earliest := &types.PendingCharge{
		ID:      uuid.New(),
		UserID:  userID,
		Amount:  50,
		DueDate: time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC),
		Status:  types.ChargeOverdue,
	}
	later := &types.PendingCharge{
		ID:      uuid.New(),
		UserID:  userID,
		Amount:  50,
		DueDate: time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC),
		Status:  types.ChargePending,
	}

	f.users.On("Exists", mock.Anything, userID).Return(true, nil)
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectCommit()
	f.expectPaymentInsert(userID, 50)

	f.charges.On("ListMatching", mock.Anything, mock.Anything, userID, 50.0).
		Return([]*types.PendingCharge{earliest, later}, nil)
	f.charges.On("GetForUpdate", mock.Anything, mock.Anything, earliest.ID).Return(earliest, nil)
	f.charges.On("MarkPaid", mock.Anything, mock.Anything, earliest.ID).Return(nil)
	f.ledger.On("Append", mock.Anything, mock.Anything, mock.Anything).
		Return(&types.LedgerEntry{ID: uuid.New()}, nil)
	f.cache.On("InvalidateAll").Return()

	result, err := f.svc.Reconcile(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, result.Charge)
	assert.Equal(t, earliest.ID, result.Charge.ID)
	f.charges.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, later.ID)
}

func TestReconcileUnmatchedPaymentStillLedgered(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()
	params := validReconcileParams(userID)
	params.Method = types.MethodCash

	f.users.On("Exists", mock.Anything, userID).Return(true, nil)
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectCommit()
	f.expectPaymentInsert(userID, 50)

	f.charges.On("ListMatching", mock.Anything, mock.Anything, userID, 50.0).
		Return([]*types.PendingCharge{}, nil)

	var ledgerParams types.CreateLedgerEntryParams
	f.ledger.On("Append", mock.Anything, mock.Anything, mock.AnythingOfType("types.CreateLedgerEntryParams")).
		Run(func(args mock.Arguments) { ledgerParams = args.Get(2).(types.CreateLedgerEntryParams) }).
		Return(&types.LedgerEntry{ID: uuid.New()}, nil)
	f.cache.On("InvalidateAll").Return()

	result, err := f.svc.Reconcile(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, result.Charge)
	assert.Nil(t, result.ActivatedSubscription)
	require.NotNil(t, result.Payment)
	require.NotNil(t, result.LedgerEntry)
	assert.Equal(t, "Pagamento via Dinheiro - Pagamento avulso", ledgerParams.Description)
	f.charges.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRetriesWhenMatchedChargeChanges(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()
	params := validReconcileParams(userID)

	charge := &types.PendingCharge{
		ID:      uuid.New(),
		UserID:  userID,
		Amount:  50,
		DueDate: time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC),
		Status:  types.ChargePending,
	}

	f.users.On("Exists", mock.Anything, userID).Return(true, nil)
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectRollback()
	f.mockPool.ExpectBegin()
	f.mockPool.ExpectCommit()

	f.expectPaymentInsert(userID, 50)
	f.charges.On("ListMatching", mock.Anything, mock.Anything, userID, 50.0).
		Return([]*types.PendingCharge{charge}, nil).Once()

	// First lock attempt sees the charge already settled by a competing
	// payment; the retry finds no candidates and records an unlinked payment.
	paid := *charge
	paid.Status = types.ChargePaid
	f.charges.On("GetForUpdate", mock.Anything, mock.Anything, charge.ID).Return(&paid, nil).Once()
	f.charges.On("ListMatching", mock.Anything, mock.Anything, userID, 50.0).
		Return([]*types.PendingCharge{}, nil).Once()

	f.ledger.On("Append", mock.Anything, mock.Anything, mock.Anything).
		Return(&types.LedgerEntry{ID: uuid.New()}, nil)
	f.cache.On("InvalidateAll").Return()

	result, err := f.svc.Reconcile(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, result.Charge)
	assert.NoError(t, f.mockPool.ExpectationsWereMet())
}

func TestReconcileValidation(t *testing.T) {
	userID := uuid.New()
	nilID := uuid.Nil

	tests := []struct {
		name   string
		mutate func(*types.ReconcileParams)
	}{
		{"missing user", func(p *types.ReconcileParams) { p.UserID = uuid.Nil }},
		{"zero amount", func(p *types.ReconcileParams) { p.Amount = 0 }},
		{"negative amount", func(p *types.ReconcileParams) { p.Amount = -10 }},
		{"amount over ceiling", func(p *types.ReconcileParams) { p.Amount = 2_000_000 }},
		{"zero payment date", func(p *types.ReconcileParams) { p.PaymentDate = time.Time{} }},
		{"payment date absurdly ahead", func(p *types.ReconcileParams) { p.PaymentDate = time.Now().AddDate(11, 0, 0) }},
		{"invalid method", func(p *types.ReconcileParams) { p.Method = "CHEQUE" }},
		{"note too long", func(p *types.ReconcileParams) { p.Note = strings256() }},
		{"nil-uuid charge id", func(p *types.ReconcileParams) { p.PendingChargeID = &nilID }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture(t)
			f.users.On("Exists", mock.Anything, mock.Anything).Return(true, nil).Maybe()

			params := validReconcileParams(userID)
			tt.mutate(&params)

			_, err := f.svc.Reconcile(context.Background(), params)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrBadRequest)
			f.payments.AssertNotCalled(t, "Create",
				mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func strings256() string {
	b := make([]byte, maxNoteLength+1)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestReconcileUnknownUser(t *testing.T) {
	f := newReconcileFixture(t)
	userID := uuid.New()
	f.users.On("Exists", mock.Anything, userID).Return(false, nil)

	_, err := f.svc.Reconcile(context.Background(), validReconcileParams(userID))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestLedgerDescription(t *testing.T) {
	charge := &types.PendingCharge{Description: "Assinatura Anual (1/1) - Março/2026"}
	assert.Equal(t, "Pagamento via Cartão - Assinatura Anual (1/1) - Março/2026",
		ledgerDescription(types.MethodCard, charge))
	assert.Equal(t, "Pagamento via PIX - Pagamento avulso",
		ledgerDescription(types.MethodPix, nil))
	assert.Equal(t, "Pagamento via Dinheiro - Pagamento avulso",
		ledgerDescription(types.MethodCash, &types.PendingCharge{Description: "   "}))
}
