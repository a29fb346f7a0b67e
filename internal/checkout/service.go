package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/obs"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
	"github.com/noah-isme/backend-kreatif/internal/receipt"
)

var (
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrCouponInvalid is returned when the applied coupon no longer accepts
	// the cart. The coupon is removed from the cart before returning.
	ErrCouponInvalid = errors.New("checkout: applied coupon no longer valid")
)

// Sessions is the subset of the session manager checkout needs.
type Sessions interface {
	View(ctx context.Context, key string) (cart.State, error)
	Update(ctx context.Context, key string, fn func(*cart.Store) error) (cart.State, error)
}

// Coupons re-checks the applied coupon and records its use.
type Coupons interface {
	cart.CouponEvaluator
	Redeem(ctx context.Context, code, purchaseID string) error
}

// ReceiptPublisher schedules the purchase receipt.
type ReceiptPublisher interface {
	EnqueueReceipt(ctx context.Context, p receipt.Payload) error
}

// Input identifies the buyer.
type Input struct {
	SessionKey     string
	UserID         string
	Email          string
	IdempotencyKey string
}

// Output is returned after a successful checkout.
type Output struct {
	PurchaseID string          `json:"purchaseId"`
	Status     string          `json:"status"`
	Items      []cart.Item     `json:"items"`
	Summary    pricing.Summary `json:"summary"`
	Currency   string          `json:"currency"`
}

// Service turns the session cart into a purchase.
type Service struct {
	Sessions  Sessions
	Purchases Purchaser
	Coupons   Coupons
	Receipts  ReceiptPublisher
	Currency  string
	Now       func() time.Time
}

// Checkout submits the cart snapshot and, once the catalog backend accepts
// it, removes the purchased items and coupon from the cart. Items added
// while the purchase was in flight stay in the cart. A rejected purchase
// leaves the cart untouched. The stored discount is never trusted: the
// applied coupon is evaluated again against the items being bought.
func (s *Service) Checkout(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.Sessions == nil || s.Purchases == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if in.UserID == "" {
		return Output{}, errors.New("user is required for checkout")
	}
	start := time.Now()
	snapshot, err := s.Sessions.View(ctx, in.SessionKey)
	if err != nil {
		return Output{}, err
	}
	if len(snapshot.Items) == 0 {
		obs.ObserveCheckout("empty", 0)
		return Output{}, ErrEmptyCart
	}
	snapshot, err = s.revalidateCoupon(ctx, in.SessionKey, snapshot)
	if err != nil {
		if errors.Is(err, ErrCouponInvalid) {
			obs.ObserveCheckout("coupon_invalid", 0)
		}
		return Output{}, err
	}
	summary := cart.Summarize(snapshot)
	req := PurchaseRequest{
		UserID:   in.UserID,
		Items:    snapshot.Items,
		Subtotal: summary.Subtotal,
		Discount: summary.Discount,
		Total:    summary.Total,
		Currency: s.Currency,
	}
	if snapshot.AppliedCoupon != nil {
		req.CouponCode = snapshot.AppliedCoupon.Code
	}
	idemKey := in.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	result, err := s.Purchases.Submit(ctx, idemKey, req)
	elapsed := obs.DurationMillis(time.Since(start))
	if err != nil {
		if errors.Is(err, ErrPurchaseRejected) {
			obs.ObserveCheckout("rejected", elapsed)
		} else {
			obs.ObserveCheckout("error", elapsed)
		}
		return Output{}, err
	}
	obs.ObserveCheckout("success", elapsed)

	logger := zerolog.Ctx(ctx).With().Str("purchase_id", result.ID).Logger()
	if _, err := s.Sessions.Update(ctx, in.SessionKey, func(st *cart.Store) error {
		for _, it := range snapshot.Items {
			st.RemoveItem(it.ID, it.Kind)
		}
		if st.Len() == 0 {
			st.Clear()
			return nil
		}
		st.SetCouponCode("")
		st.SetAppliedCoupon(nil)
		st.SetDiscountAmount(0)
		return nil
	}); err != nil {
		// the purchase went through; a stale cart is recoverable by the buyer
		logger.Error().Err(err).Msg("checkout_cart_clear_failed")
	}

	if req.CouponCode != "" && s.Coupons != nil {
		if err := s.Coupons.Redeem(ctx, req.CouponCode, result.ID); err != nil {
			logger.Error().Err(err).Str("coupon", req.CouponCode).Msg("checkout_coupon_redeem_failed")
		}
	}

	if s.Receipts != nil {
		payload := receipt.Payload{
			PurchaseID:  result.ID,
			UserID:      in.UserID,
			Email:       in.Email,
			Items:       snapshot.Items,
			CouponCode:  req.CouponCode,
			Subtotal:    summary.Subtotal,
			Discount:    summary.Discount,
			Total:       summary.Total,
			Currency:    s.Currency,
			PurchasedAt: s.now(),
		}
		if err := s.Receipts.EnqueueReceipt(ctx, payload); err != nil {
			logger.Error().Err(fmt.Errorf("enqueue receipt: %w", err)).Msg("checkout_receipt_failed")
		}
	}

	return Output{
		PurchaseID: result.ID,
		Status:     result.Status,
		Items:      snapshot.Items,
		Summary:    summary,
		Currency:   s.Currency,
	}, nil
}

// revalidateCoupon replaces the snapshot discount with a fresh evaluation.
// Without an evaluator the stored discount is dropped.
func (s *Service) revalidateCoupon(ctx context.Context, key string, snapshot cart.State) (cart.State, error) {
	if snapshot.AppliedCoupon == nil {
		snapshot.DiscountAmount = 0
		return snapshot, nil
	}
	code := snapshot.AppliedCoupon.Code
	if s.Coupons == nil {
		snapshot.AppliedCoupon = nil
		snapshot.DiscountAmount = 0
		return snapshot, nil
	}
	applied, discount, err := s.Coupons.Evaluate(ctx, code, snapshot.Items)
	if err == nil {
		snapshot.AppliedCoupon = &applied
		snapshot.DiscountAmount = discount
		return snapshot, nil
	}
	if !errors.Is(err, cart.ErrCouponRejected) {
		return cart.State{}, fmt.Errorf("evaluate coupon: %w", err)
	}

	if _, uerr := s.Sessions.Update(ctx, key, func(st *cart.Store) error {
		if c := st.AppliedCoupon(); c != nil && c.Code == code {
			st.SetAppliedCoupon(nil)
			st.SetDiscountAmount(0)
		}
		return nil
	}); uerr != nil {
		zerolog.Ctx(ctx).Warn().Err(uerr).Str("coupon", code).Msg("checkout_coupon_reset_failed")
	}
	return cart.State{}, fmt.Errorf("%w: %w", ErrCouponInvalid, err)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
