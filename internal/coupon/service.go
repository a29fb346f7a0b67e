package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/obs"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
)

// PreviewResult describes the outcome of evaluating a coupon without
// touching any cart.
type PreviewResult struct {
	Code           string        `json:"code"`
	Discount       pricing.Money `json:"discount"`
	EligibleAmount pricing.Money `json:"eligibleAmount"`
}

// Service validates coupon codes against cart contents.
type Service struct {
	Repo Repository
	Now  func() time.Time
}

// Evaluate checks code against the cart items and returns the coupon record
// and discount to store on the cart. Business rejections wrap
// cart.ErrCouponRejected; other errors are infrastructure failures.
func (s *Service) Evaluate(ctx context.Context, code string, items []cart.Item) (cart.Coupon, pricing.Money, error) {
	res, rule, err := s.evaluate(ctx, code, items)
	if err != nil {
		obs.ObserveCouponEvaluation(resultLabel(err))
		return cart.Coupon{}, 0, err
	}
	obs.ObserveCouponEvaluation("accepted")
	return rule.ToCart(), res.Discount, nil
}

// Preview performs a dry-run evaluation for admin tooling.
func (s *Service) Preview(ctx context.Context, code string, items []cart.Item) (PreviewResult, error) {
	res, _, err := s.evaluate(ctx, code, items)
	return res, err
}

// Redeem records one use of the coupon for a completed purchase. Redeeming
// the same purchase twice counts once.
func (s *Service) Redeem(ctx context.Context, code, purchaseID string) error {
	if s == nil || s.Repo == nil {
		return errors.New("coupon service not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil
	}
	err := s.Repo.IncrementUsage(ctx, code, purchaseID)
	obs.ObserveCouponRedemption(redeemLabel(err))
	return err
}

func (s *Service) evaluate(ctx context.Context, code string, items []cart.Item) (PreviewResult, Rule, error) {
	if s == nil || s.Repo == nil {
		return PreviewResult{}, Rule{}, errors.New("coupon service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return PreviewResult{}, Rule{}, rejected(fmt.Errorf("code is required: %w", ErrNotEligible))
	}
	rule, err := s.Repo.GetByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PreviewResult{}, Rule{}, rejected(err)
		}
		return PreviewResult{}, Rule{}, err
	}
	prices := make([]pricing.Money, 0, len(items))
	for _, it := range items {
		prices = append(prices, it.Price)
	}
	subtotal := pricing.Subtotal(prices)
	if err := rule.Validate(s.now(), subtotal); err != nil {
		return PreviewResult{}, Rule{}, rejected(err)
	}
	eligible := EligibleSubtotal(items, rule)
	if eligible <= 0 {
		return PreviewResult{}, Rule{}, rejected(ErrNotEligible)
	}
	discount := Compute(eligible, rule)
	if discount <= 0 {
		return PreviewResult{}, Rule{}, rejected(ErrNotEligible)
	}
	return PreviewResult{Code: rule.Code, Discount: discount, EligibleAmount: eligible}, rule, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func rejected(err error) error {
	return fmt.Errorf("%w: %w", cart.ErrCouponRejected, err)
}

func redeemLabel(err error) string {
	if err == nil {
		return "redeemed"
	}
	return resultLabel(err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired), errors.Is(err, ErrInactive), errors.Is(err, ErrDisabled):
		return "inactive"
	case errors.Is(err, ErrUsageLimitReached):
		return "exhausted"
	case errors.Is(err, ErrMinimumSpendUnmet), errors.Is(err, ErrNotEligible):
		return "not_eligible"
	default:
		return "error"
	}
}
