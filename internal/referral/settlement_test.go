package referral_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/referral"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/testutil"
)

var rewards = referral.Rewards{
	ReferrerCredits: 5,
	ReferrerQuota:   4,
	ReferredCredits: 3,
	ReferredQuota:   2,
}

func TestApplyRewardsBothSides(t *testing.T) {
	database := testutil.NewDB(t)
	s := referral.NewSettlement(store.New(database), rewards)
	ctx := context.Background()

	t.Run("poster refers seeker by phone", func(t *testing.T) {
		referrer := testutil.Poster(t, database)
		newcomer := testutil.Seeker(t, database)

		assert.True(t, s.Apply(ctx, newcomer.ID, " "+referrer.Phone+" "))
		assert.Equal(t, int64(5), testutil.Reload(t, database, referrer.ID).WalletBalance)
		assert.Equal(t, 2, testutil.Reload(t, database, newcomer.ID).ExtraQuota)
	})

	t.Run("seeker refers poster by generated code", func(t *testing.T) {
		referrer := testutil.Seeker(t, database)
		newcomer := testutil.Poster(t, database)

		assert.True(t, s.Apply(ctx, newcomer.ID, referrer.ReferralCode))
		assert.Equal(t, 4, testutil.Reload(t, database, referrer.ID).ExtraQuota)
		assert.Equal(t, int64(3), testutil.Reload(t, database, newcomer.ID).WalletBalance)
	})
}

func TestApplyIsIdempotent(t *testing.T) {
	database := testutil.NewDB(t)
	s := referral.NewSettlement(store.New(database), rewards)
	referrer := testutil.Poster(t, database)
	other := testutil.Poster(t, database)
	newcomer := testutil.Poster(t, database)

	var wg sync.WaitGroup
	paid := make(chan bool, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid <- s.Apply(context.Background(), newcomer.ID, referrer.Phone)
		}()
	}
	wg.Wait()
	close(paid)

	payouts := 0
	for ok := range paid {
		if ok {
			payouts++
		}
	}
	assert.Equal(t, 1, payouts)

	assert.False(t, s.Apply(context.Background(), newcomer.ID, other.Phone), "a second code must not pay again")
	assert.Equal(t, int64(5), testutil.Reload(t, database, referrer.ID).WalletBalance)
	assert.Equal(t, int64(0), testutil.Reload(t, database, other.ID).WalletBalance)
	assert.Equal(t, int64(3), testutil.Reload(t, database, newcomer.ID).WalletBalance)
	assert.Equal(t, int64(1), testutil.Count(t, database, &models.Referral{}, "referred_id = ?", newcomer.ID))
}

func TestApplyNoOps(t *testing.T) {
	database := testutil.NewDB(t)
	s := referral.NewSettlement(store.New(database), rewards)
	ctx := context.Background()
	newcomer := testutil.Seeker(t, database)

	inactive := testutil.Poster(t, database)
	require.NoError(t, database.Model(inactive).Update("active", false).Error)

	cases := []struct {
		name      string
		accountID uint
		code      string
	}{
		{"empty code", newcomer.ID, "   "},
		{"unknown code", newcomer.ID, "0000000"},
		{"self referral", newcomer.ID, newcomer.Phone},
		{"inactive referrer", newcomer.ID, inactive.Phone},
		{"unknown account", 98765, inactive.ReferralCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, s.Apply(ctx, tc.accountID, tc.code))
		})
	}
	assert.Equal(t, int64(0), testutil.Count(t, database, &models.Referral{}, ""))
	assert.Equal(t, 0, testutil.Reload(t, database, newcomer.ID).ExtraQuota)
	assert.Equal(t, int64(0), testutil.Reload(t, database, inactive.ID).WalletBalance)
}

func TestStats(t *testing.T) {
	database := testutil.NewDB(t)
	s := referral.NewSettlement(store.New(database), rewards)
	ctx := context.Background()
	referrer := testutil.Poster(t, database)

	stats, err := s.Stats(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Invited)
	assert.Equal(t, "credits", stats.Unit)
	assert.Equal(t, referrer.ReferralCode, stats.ReferralCode)

	for i := 0; i < 3; i++ {
		require.True(t, s.Apply(ctx, testutil.Seeker(t, database).ID, referrer.Phone))
	}
	stats, err = s.Stats(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Invited)
	assert.Equal(t, int64(15), stats.Earned)

	_, err = s.Stats(ctx, 4242)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
