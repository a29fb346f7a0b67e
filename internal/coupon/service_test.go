package coupon_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/coupon"
)

func newService(t *testing.T, now time.Time, rules ...coupon.Rule) (*coupon.Service, *coupon.MemoryRepository) {
	t.Helper()
	repo := coupon.NewMemoryRepository()
	for _, r := range rules {
		_, err := repo.Create(context.Background(), r)
		require.NoError(t, err)
	}
	return &coupon.Service{Repo: repo, Now: func() time.Time { return now }}, repo
}

func TestEvaluateAcceptsValidCoupon(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now, coupon.Rule{Code: "hemat20", Kind: cart.DiscountPercent, Value: 2000, Active: true})

	items := []cart.Item{
		{ID: "t1", Kind: cart.KindTemplate, Price: 100_000},
		{ID: "a1", Kind: cart.KindAudioContent, Price: 50_000},
	}
	applied, discount, err := svc.Evaluate(context.Background(), " Hemat20 ", items)
	require.NoError(t, err)
	require.EqualValues(t, 30_000, discount)
	require.Equal(t, "HEMAT20", applied.Code)
	require.Equal(t, cart.DiscountPercent, applied.DiscountKind)
	require.EqualValues(t, 2000, applied.Value)
}

func TestEvaluateRejections(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)
	svc, _ := newService(t, now,
		coupon.Rule{Code: "OLD", Kind: cart.DiscountFixedAmount, Value: 10, Active: true, ValidTo: &expired},
		coupon.Rule{Code: "AUDIO", Kind: cart.DiscountFixedAmount, Value: 10, Active: true, ItemKinds: []cart.Kind{cart.KindAudioFolder}},
		coupon.Rule{Code: "BIG", Kind: cart.DiscountFixedAmount, Value: 10, Active: true, MinSpend: 1_000_000},
	)
	items := []cart.Item{{ID: "t1", Kind: cart.KindTemplate, Price: 100}}

	cases := map[string]error{
		"OLD":     coupon.ErrExpired,
		"AUDIO":   coupon.ErrNotEligible,
		"BIG":     coupon.ErrMinimumSpendUnmet,
		"MISSING": coupon.ErrNotFound,
		"":        coupon.ErrNotEligible,
	}
	for code, want := range cases {
		_, _, err := svc.Evaluate(context.Background(), code, items)
		require.ErrorIs(t, err, cart.ErrCouponRejected, code)
		require.ErrorIs(t, err, want, code)
	}
}

func TestRedeemIncrementsUsage(t *testing.T) {
	limit := int32(1)
	svc, repo := newService(t, time.Now(), coupon.Rule{Code: "ONCE", Kind: cart.DiscountFixedAmount, Value: 10, Active: true, UsageLimit: &limit})
	items := []cart.Item{{ID: "t1", Kind: cart.KindTemplate, Price: 100}}
	ctx := context.Background()

	_, _, err := svc.Evaluate(ctx, "ONCE", items)
	require.NoError(t, err)
	require.NoError(t, svc.Redeem(ctx, "once", "p-1"))

	rule, err := repo.GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	require.EqualValues(t, 1, rule.UsedCount)

	_, _, err = svc.Evaluate(ctx, "ONCE", items)
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
}

func TestRedeemHonoursUsageLimit(t *testing.T) {
	limit := int32(1)
	svc, repo := newService(t, time.Now(), coupon.Rule{Code: "ONCE", Kind: cart.DiscountFixedAmount, Value: 10, Active: true, UsageLimit: &limit})
	items := []cart.Item{{ID: "t1", Kind: cart.KindTemplate, Price: 100}}
	ctx := context.Background()

	// both carts applied the coupon before either purchase completed
	for i := 0; i < 2; i++ {
		_, _, err := svc.Evaluate(ctx, "ONCE", items)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Redeem(ctx, "ONCE", "p-1"))
	require.ErrorIs(t, svc.Redeem(ctx, "ONCE", "p-2"), coupon.ErrUsageLimitReached)

	rule, err := repo.GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	require.EqualValues(t, 1, rule.UsedCount)
}

func TestRedeemCountsPurchaseOnce(t *testing.T) {
	svc, repo := newService(t, time.Now(), coupon.Rule{Code: "MANY", Kind: cart.DiscountFixedAmount, Value: 10, Active: true})
	ctx := context.Background()

	require.NoError(t, svc.Redeem(ctx, "MANY", "p-1"))
	require.NoError(t, svc.Redeem(ctx, "many", "p-1"))
	require.NoError(t, svc.Redeem(ctx, "MANY", "p-2"))
	require.ErrorIs(t, svc.Redeem(ctx, "NOPE", "p-3"), coupon.ErrNotFound)

	rule, err := repo.GetByCode(ctx, "MANY")
	require.NoError(t, err)
	require.EqualValues(t, 2, rule.UsedCount)
}

func TestPreview(t *testing.T) {
	svc, _ := newService(t, time.Now(), coupon.Rule{Code: "PIC", Kind: cart.DiscountFixedAmount, Value: 40, Active: true, ItemKinds: []cart.Kind{cart.KindPictureTemplate}})
	res, err := svc.Preview(context.Background(), "pic", []cart.Item{
		{ID: "p", Kind: cart.KindPictureTemplate, Price: 30},
		{ID: "t", Kind: cart.KindTemplate, Price: 100},
	})
	require.NoError(t, err)
	require.EqualValues(t, 30, res.Discount)
	require.EqualValues(t, 30, res.EligibleAmount)
}

func TestMemoryRepositoryCRUD(t *testing.T) {
	repo := coupon.NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, coupon.Rule{Code: "a", Kind: cart.DiscountFixedAmount, Value: 1})
	require.NoError(t, err)
	_, err = repo.Create(ctx, coupon.Rule{Code: "A"})
	require.ErrorIs(t, err, coupon.ErrDuplicate)
	_, err = repo.Create(ctx, coupon.Rule{Code: "b"})
	require.NoError(t, err)

	rules, total, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, rules, 1)
	require.Equal(t, "B", rules[0].Code)

	updated, err := repo.Update(ctx, coupon.Rule{Code: "a", Kind: cart.DiscountPercent, Value: 500, Active: true})
	require.NoError(t, err)
	require.Equal(t, cart.DiscountPercent, updated.Kind)

	_, err = repo.Update(ctx, coupon.Rule{Code: "zzz"})
	require.ErrorIs(t, err, coupon.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "A"))
	require.ErrorIs(t, repo.Delete(ctx, "A"), coupon.ErrNotFound)
}
