package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

type fixture struct {
	repo *repository.MemoryRepository
	svc  *Service

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		repo: repository.NewMemoryRepository(),
		now:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	o := Options{
		Settings: StaticSettings{
			Enabled:   true,
			MinAmount: dec("100"),
			MaxAmount: dec("100000"),
		},
		Now: f.clock,
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.svc = NewService(f.repo, f.repo, o)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) user(t *testing.T, login string, referrer ...int64) int64 {
	t.Helper()
	var ref *int64
	if len(referrer) > 0 {
		ref = &referrer[0]
	}
	id, err := f.svc.RegisterUser(context.Background(), login, ref)
	require.NoError(t, err)
	return id
}

// withPackage назначает пользователю пакет без ограничений.
func (f *fixture) withPackage(userID int64, pkg model.Package) {
	id := f.repo.AddPackage(pkg)
	f.repo.AssignPackage(userID, id, nil)
}

func (f *fixture) fund(t *testing.T, userID int64, amount string) {
	t.Helper()
	_, err := f.svc.Record(context.Background(), model.EntryInput{
		UserID:      userID,
		Kind:        model.EntryEarning,
		Amount:      dec(amount),
		Description: "Manual top-up",
	})
	require.NoError(t, err)
}

func (f *fixture) wallet(t *testing.T, userID int64) *model.Wallet {
	t.Helper()
	w, err := f.svc.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	d, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, d, "balances must equal the sum of completed entries")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.user(t, "alice")
	w := f.wallet(t, id)
	assertMoney(t, "0", w.Spendable)
	assertMoney(t, "0", w.Referral)
	assert.Equal(t, model.Currency, w.Currency)

	_, err := f.svc.RegisterUser(ctx, "alice", nil)
	assert.ErrorIs(t, err, ErrUserExists)

	missing := int64(999)
	_, err = f.svc.RegisterUser(ctx, "bob", &missing)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.RegisterUser(ctx, "", nil)
	assert.ErrorAs(t, err, &verr)
}

// createUserRepo отдаёт заданную ошибку из CreateUser, остальные методы не используются.
type createUserRepo struct {
	Repository
	err error
}

func (r *createUserRepo) CreateUser(context.Context, string, *int64) (int64, error) {
	return 0, r.err
}

func TestRegisterUser_StorageErrors(t *testing.T) {
	ctx := context.Background()
	ref := int64(77)

	tests := []struct {
		name   string
		err    error
		assert func(t *testing.T, err error)
	}{
		{
			name: "unknown referrer is a validation error",
			err:  fmt.Errorf("create user: referrer %d: %w", ref, repository.ErrUserNotFound),
			assert: func(t *testing.T, err error) {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "referrer_id", verr.Field)
			},
		},
		{
			name: "duplicate login",
			err:  fmt.Errorf("%w: carol", repository.ErrUserExists),
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUserExists)
			},
		},
		{
			name: "connection failure",
			err:  errors.New("create user: connection reset by peer"),
			assert: func(t *testing.T, err error) {
				var perr *PersistenceError
				assert.ErrorAs(t, err, &perr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&createUserRepo{err: tt.err}, nil, Options{})
			_, err := svc.RegisterUser(ctx, "carol", &ref)
			tt.assert(t, err)
		})
	}
}

func TestRecord_SignConvention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	tests := []struct {
		name   string
		kind   model.EntryKind
		amount string
	}{
		{name: "negative earning", kind: model.EntryEarning, amount: "-10"},
		{name: "negative refund", kind: model.EntryRefund, amount: "-1"},
		{name: "positive purchase", kind: model.EntryPurchase, amount: "10"},
		{name: "positive withdrawal request", kind: model.EntryWithdrawalRequest, amount: "5"},
		{name: "zero amount", kind: model.EntryEarning, amount: "0"},
		{name: "sub-kobo amount", kind: model.EntryEarning, amount: "1.005"},
		{name: "unknown kind", kind: model.EntryKind("bonus"), amount: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Record(ctx, model.EntryInput{UserID: id, Kind: tt.kind, Amount: dec(tt.amount)})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	_, err := f.svc.Record(ctx, model.EntryInput{
		UserID:    id,
		Kind:      model.EntryEarning,
		Amount:    dec("1"),
		Reference: model.Reference{Kind: model.RefProduct},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assertMoney(t, "0", f.wallet(t, id).Spendable)
}

func TestRecord_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")
	f.fund(t, id, "100")

	_, err := f.svc.Record(ctx, model.EntryInput{UserID: id, Kind: model.EntryPurchase, Amount: dec("-100.01")})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assertMoney(t, "100", f.wallet(t, id).Spendable)

	e, err := f.svc.Record(ctx, model.EntryInput{UserID: id, Kind: model.EntryPurchase, Amount: dec("-100")})
	require.NoError(t, err)
	assert.Equal(t, model.EntryCompleted, e.Status)
	assert.Equal(t, model.BalanceSpendable, e.Balance)
	assertMoney(t, "0", f.wallet(t, id).Spendable)

	_, err = f.svc.Record(ctx, model.EntryInput{UserID: 999, Kind: model.EntryEarning, Amount: dec("1")})
	require.ErrorIs(t, err, ErrUserNotFound)
	f.requireConsistent(t)
}

func TestSettleEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	pending, err := f.svc.Record(ctx, model.EntryInput{
		UserID:  id,
		Kind:    model.EntryEarning,
		Amount:  dec("75"),
		Pending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.EntryPending, pending.Status)
	assertMoney(t, "0", f.wallet(t, id).Spendable)

	settled, err := f.svc.SettleEntry(ctx, pending.ID, model.EntryCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.EntryCompleted, settled.Status)
	assertMoney(t, "75", f.wallet(t, id).Spendable)

	_, err = f.svc.SettleEntry(ctx, pending.ID, model.EntryFailed)
	require.ErrorIs(t, err, ErrInvalidState)

	failing, err := f.svc.Record(ctx, model.EntryInput{UserID: id, Kind: model.EntryEarning, Amount: dec("10"), Pending: true})
	require.NoError(t, err)
	_, err = f.svc.SettleEntry(ctx, failing.ID, model.EntryFailed)
	require.NoError(t, err)
	assertMoney(t, "75", f.wallet(t, id).Spendable)

	_, err = f.svc.SettleEntry(ctx, 999, model.EntryCompleted)
	require.ErrorIs(t, err, ErrEntryNotFound)

	_, err = f.svc.SettleEntry(ctx, failing.ID, model.EntryPending)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	f.requireConsistent(t)
}

func TestListEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")
	for range 5 {
		f.fund(t, id, "10")
	}
	_, err := f.svc.Record(ctx, model.EntryInput{UserID: id, Kind: model.EntryPurchase, Amount: dec("-5")})
	require.NoError(t, err)

	page, err := f.svc.ListEntries(ctx, id, model.EntryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.Entries, 2)

	page, err = f.svc.ListEntries(ctx, id, model.EntryFilter{Kind: model.EntryPurchase})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assertMoney(t, "-5", page.Entries[0].Amount)

	page, err = f.svc.ListEntries(ctx, id, model.EntryFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Empty(t, page.Entries)

	_, err = f.svc.ListEntries(ctx, id, model.EntryFilter{Kind: "bonus"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.ListEntries(ctx, 999, model.EntryFilter{})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestDescribeReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adID := f.repo.AddAdvertisement(model.Advertisement{Title: "Summer sale", Status: model.CatalogStatusActive})

	title, err := f.svc.DescribeReference(ctx, model.AdvertisementRef(adID))
	require.NoError(t, err)
	assert.Equal(t, "Summer sale", title)

	title, err = f.svc.DescribeReference(ctx, model.NoReference())
	require.NoError(t, err)
	assert.Empty(t, title)

	_, err = f.svc.DescribeReference(ctx, model.CourseRef(42))
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.DescribeReference(ctx, model.Reference{Kind: "invoice", ID: 1})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDistribute_ThreeLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.user(t, "root")
	l3 := f.user(t, "l3", root)
	l2 := f.user(t, "l2", l3)
	l1 := f.user(t, "l1", l2)
	source := f.user(t, "source", l1)

	credited, err := f.svc.Distribute(ctx, source, dec("100"), model.EntryEarning)
	require.NoError(t, err)
	require.Len(t, credited, 3)

	assertMoney(t, "5", f.wallet(t, l1).Referral)
	assertMoney(t, "3", f.wallet(t, l2).Referral)
	assertMoney(t, "1", f.wallet(t, l3).Referral)
	assertMoney(t, "0", f.wallet(t, root).Referral)
	assertMoney(t, "0", f.wallet(t, l1).Spendable)

	for i, e := range credited {
		assert.Equal(t, model.EntryReferralEarning, e.Kind)
		assert.Equal(t, model.BalanceReferral, e.Balance)
		assert.Equal(t, formatID(source), e.Metadata["source_user_id"])
		assert.Equal(t, formatID(int64(i+1)), e.Metadata["level"])
	}
	f.requireConsistent(t)
}

func TestDistribute_OnlyEngagementEarningsSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.user(t, "parent")
	child := f.user(t, "child", parent)

	for _, kind := range []model.EntryKind{model.EntryRefund, model.EntryReferralEarning, model.EntryPurchase} {
		credited, err := f.svc.Distribute(ctx, child, dec("100"), kind)
		require.NoError(t, err)
		assert.Empty(t, credited, kind)
	}
	assertMoney(t, "0", f.wallet(t, parent).Referral)
}

func TestDistribute_CycleTerminates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a")
	b := f.user(t, "b", a)
	f.repo.SetReferrer(a, b)

	credited, err := f.svc.Distribute(ctx, b, dec("100"), model.EntryEarning)
	require.NoError(t, err)
	require.Len(t, credited, 1)
	assert.Equal(t, a, credited[0].UserID)
	assertMoney(t, "0", f.wallet(t, b).Referral)
}

func TestDistribute_CustomRates(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.ReferralRates = []decimal.Decimal{dec("0.1"), dec("0"), dec("0.05"), dec("0.5")}
	})
	ctx := context.Background()
	top := f.user(t, "top")
	mid := f.user(t, "mid", top)
	low := f.user(t, "low", mid)
	beyond := f.user(t, "beyond")
	f.repo.SetReferrer(top, beyond)
	source := f.user(t, "src", low)

	credited, err := f.svc.Distribute(ctx, source, dec("10"), model.EntryEarning)
	require.NoError(t, err)
	require.Len(t, credited, 2)
	assertMoney(t, "1", f.wallet(t, low).Referral)
	assertMoney(t, "0", f.wallet(t, mid).Referral)
	assertMoney(t, "0.5", f.wallet(t, top).Referral)
	assertMoney(t, "0", f.wallet(t, beyond).Referral)
}

func TestPersistenceError_Classification(t *testing.T) {
	cause := errors.New("connection reset")
	err := classify("op", cause)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRuleViolation(err))

	assert.Same(t, ErrDailyCapReached, classify("op", ErrDailyCapReached))
	assert.Nil(t, classify("op", nil))
	assert.True(t, IsRuleViolation(invalid("amount", "bad")))
}
