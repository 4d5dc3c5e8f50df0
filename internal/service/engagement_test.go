package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earnhub/ledger-engine/internal/model"
)

func activeAd(title string) model.Advertisement {
	return model.Advertisement{Title: title, Status: model.CatalogStatusActive}
}

func TestClaimAd_OncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("50")})
	ad7 := f.repo.AddAdvertisement(activeAd("ad 7"))
	ad9 := f.repo.AddAdvertisement(activeAd("ad 9"))

	res, err := f.svc.ClaimAd(ctx, user, ad7, model.InteractionView)
	require.NoError(t, err)
	assertMoney(t, "50", res.RewardEarned)
	assert.Equal(t, 0, res.Remaining)
	require.NotNil(t, res.Entry)
	assert.Equal(t, model.AdvertisementRef(ad7), res.Entry.Reference)
	assert.Equal(t, model.EntryEarning, res.Entry.Kind)

	assertMoney(t, "50", f.wallet(t, user).Spendable)
	assert.Equal(t, 1, f.repo.CountAdInteractions())
	ad, _ := f.repo.Advertisement(ad7)
	assert.EqualValues(t, 1, ad.Impressions)
	assert.EqualValues(t, 0, ad.Clicks)

	_, err = f.svc.ClaimAd(ctx, user, ad9, model.InteractionClick)
	require.ErrorIs(t, err, ErrDailyCapReached)
	assertMoney(t, "50", f.wallet(t, user).Spendable)
	ad, _ = f.repo.Advertisement(ad9)
	assert.EqualValues(t, 0, ad.Clicks)
	f.requireConsistent(t)
}

func TestClaimAd_NewCalendarDay(t *testing.T) {
	wat := time.FixedZone("WAT", 3600)
	f := newFixture(t, func(o *Options) { o.Location = wat })
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("50")})
	ad := f.repo.AddAdvertisement(activeAd("ad"))

	// В 22:30 UTC по местному времени ещё 10 марта, в 23:00 UTC уже 11 марта.
	f.now = time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	_, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
	require.NoError(t, err)

	f.advance(30 * time.Minute)
	_, err = f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
	require.ErrorIs(t, err, ErrDailyCapReached)

	f.advance(30 * time.Minute)
	res, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionClick)
	require.NoError(t, err)
	assertMoney(t, "50", res.RewardEarned)
	assertMoney(t, "100", f.wallet(t, user).Spendable)
}

func TestClaimAd_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	noPackage := f.user(t, "bob")
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("50")})

	past := f.now.Add(-time.Hour)
	expired := f.repo.AddAdvertisement(model.Advertisement{
		Title:  "expired",
		Status: model.CatalogStatusActive,
		Window: model.Window{EndsAt: &past},
	})
	draft := f.repo.AddAdvertisement(model.Advertisement{Title: "draft", Status: "draft"})
	live := f.repo.AddAdvertisement(activeAd("live"))

	_, err := f.svc.ClaimAd(ctx, noPackage, live, model.InteractionView)
	assert.ErrorIs(t, err, ErrEntitlementDenied)

	_, err = f.svc.ClaimAd(ctx, user, expired, model.InteractionView)
	assert.ErrorIs(t, err, ErrSubjectNotActive)

	_, err = f.svc.ClaimAd(ctx, user, draft, model.InteractionView)
	assert.ErrorIs(t, err, ErrSubjectNotActive)

	_, err = f.svc.ClaimAd(ctx, user, 999, model.InteractionView)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.ClaimAd(ctx, user, live, model.InteractionType("answer"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	assert.Equal(t, 0, f.repo.CountAdInteractions())
	assertMoney(t, "0", f.wallet(t, user).Spendable)
}

func TestClaimAd_ExpiredPackage(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "alice")
	pkg := f.repo.AddPackage(model.Package{Name: "Trial", DailyEarningLimit: dec("50")})
	expired := time.Now().Add(-time.Minute)
	f.repo.AssignPackage(user, pkg, &expired)
	ad := f.repo.AddAdvertisement(activeAd("ad"))

	_, err := f.svc.ClaimAd(context.Background(), user, ad, model.InteractionView)
	require.ErrorIs(t, err, ErrEntitlementDenied)
}

func TestClaimAd_ConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("50")})

	const n = 20
	ads := make([]int64, n)
	for i := range ads {
		ads[i] = f.repo.AddAdvertisement(activeAd("ad"))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		capped   int
		failures []error
	)
	for _, ad := range ads {
		wg.Add(1)
		go func(ad int64) {
			defer wg.Done()
			res, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.RewardEarned.IsPositive():
				success++
			case errors.Is(err, ErrDailyCapReached):
				capped++
			default:
				failures = append(failures, err)
			}
		}(ad)
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, capped)
	assertMoney(t, "50", f.wallet(t, user).Spendable)
	assert.Equal(t, 1, f.repo.CountAdInteractions())
	f.requireConsistent(t)
}

func TestClaimAd_ZeroLimitRecordsInteraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Free"})
	ad := f.repo.AddAdvertisement(activeAd("ad"))

	res, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionClick)
	require.NoError(t, err)
	assert.True(t, res.RewardEarned.IsZero())
	assert.Nil(t, res.Entry)

	stored, _ := f.repo.Advertisement(ad)
	assert.EqualValues(t, 1, stored.Clicks)

	_, err = f.svc.ClaimAd(ctx, user, ad, model.InteractionClick)
	require.ErrorIs(t, err, ErrDailyCapReached)
}

func TestClaimAd_RewardSeedsReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.user(t, "parent")
	user := f.user(t, "child", parent)
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("200")})
	ad := f.repo.AddAdvertisement(activeAd("ad"))

	res, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
	require.NoError(t, err)
	require.Len(t, res.Referrals, 1)
	assert.Equal(t, model.AdvertisementRef(ad), res.Referrals[0].Reference)
	assertMoney(t, "10", f.wallet(t, parent).Referral)
	assertMoney(t, "200", f.wallet(t, user).Spendable)
	f.requireConsistent(t)
}

func TestClaimAd_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Basic", DailyEarningLimit: dec("50")})
	ad := f.repo.AddAdvertisement(activeAd("ad"))

	f.repo.InjectFault("IncrementAdCounter", errors.New("disk full"))
	_, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	assertMoney(t, "0", f.wallet(t, user).Spendable)
	assert.Equal(t, 0, f.repo.CountAdInteractions())
	page, err := f.svc.ListEntries(ctx, user, model.EntryFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	f.repo.InjectFault("IncrementAdCounter", nil)
	res, err := f.svc.ClaimAd(ctx, user, ad, model.InteractionView)
	require.NoError(t, err)
	assertMoney(t, "50", res.RewardEarned)
}

func TestSubmitAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Plus", BrainTeaserAccess: true})
	teaser := f.repo.AddBrainTeaser(model.BrainTeaser{
		Question:      "Capital of France?",
		CorrectAnswer: "Paris",
		RewardAmount:  dec("25"),
		Status:        model.CatalogStatusActive,
	})

	res, err := f.svc.SubmitAnswer(ctx, user, teaser, "Paris")
	require.NoError(t, err)
	require.NotNil(t, res.Correct)
	assert.True(t, *res.Correct)
	assertMoney(t, "25", res.RewardEarned)
	assert.Equal(t, model.BrainTeaserRef(teaser), res.Entry.Reference)
	assertMoney(t, "25", f.wallet(t, user).Spendable)

	_, err = f.svc.SubmitAnswer(ctx, user, teaser, "Paris")
	require.ErrorIs(t, err, ErrAlreadyAttempted)
	assertMoney(t, "25", f.wallet(t, user).Spendable)

	stored, _ := f.repo.BrainTeaser(teaser)
	assert.EqualValues(t, 1, stored.Attempts)
	assert.EqualValues(t, 1, stored.CorrectAttempts)
	f.requireConsistent(t)
}

func TestSubmitAnswer_WrongAnswerStillCountsAsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Plus", BrainTeaserAccess: true})
	teaser := f.repo.AddBrainTeaser(model.BrainTeaser{
		CorrectAnswer: "Paris",
		RewardAmount:  dec("25"),
		Status:        model.CatalogStatusActive,
	})

	res, err := f.svc.SubmitAnswer(ctx, user, teaser, "paris")
	require.NoError(t, err)
	assert.False(t, *res.Correct)
	assert.True(t, res.RewardEarned.IsZero())
	assert.Nil(t, res.Entry)

	_, err = f.svc.SubmitAnswer(ctx, user, teaser, "Paris")
	require.ErrorIs(t, err, ErrAlreadyAttempted)
	assertMoney(t, "0", f.wallet(t, user).Spendable)

	stored, _ := f.repo.BrainTeaser(teaser)
	assert.EqualValues(t, 1, stored.Attempts)
	assert.EqualValues(t, 0, stored.CorrectAttempts)
}

func TestSubmitAnswer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	noAccess := f.user(t, "basic")
	f.withPackage(noAccess, model.Package{Name: "Basic"})
	user := f.user(t, "plus")
	f.withPackage(user, model.Package{Name: "Plus", BrainTeaserAccess: true})

	future := f.now.Add(time.Hour)
	teaser := f.repo.AddBrainTeaser(model.BrainTeaser{CorrectAnswer: "x", Status: model.CatalogStatusActive})
	upcoming := f.repo.AddBrainTeaser(model.BrainTeaser{
		CorrectAnswer: "x",
		Status:        model.CatalogStatusActive,
		Window:        model.Window{StartsAt: &future},
	})

	_, err := f.svc.SubmitAnswer(ctx, noAccess, teaser, "x")
	assert.ErrorIs(t, err, ErrEntitlementDenied)

	_, err = f.svc.SubmitAnswer(ctx, user, upcoming, "x")
	assert.ErrorIs(t, err, ErrSubjectNotActive)

	_, err = f.svc.SubmitAnswer(ctx, user, 999, "x")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.SubmitAnswer(ctx, user, teaser, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSubmitAnswer_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	f.withPackage(user, model.Package{Name: "Plus", BrainTeaserAccess: true})
	teaser := f.repo.AddBrainTeaser(model.BrainTeaser{
		CorrectAnswer: "42",
		RewardAmount:  dec("10"),
		Status:        model.CatalogStatusActive,
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.SubmitAnswer(ctx, user, teaser, "42"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assertMoney(t, "10", f.wallet(t, user).Spendable)
}
