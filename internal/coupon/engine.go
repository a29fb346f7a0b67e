package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
)

var (
	// ErrNotFound is returned when no coupon exists for the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicate is returned when creating a coupon whose code is taken.
	ErrDuplicate = errors.New("coupon code already exists")
	// ErrNotEligible is returned when no cart item falls within the coupon scope.
	ErrNotEligible = errors.New("coupon not eligible")
	// ErrDisabled is returned for coupons switched off by an admin.
	ErrDisabled = errors.New("coupon disabled")
	// ErrInactive is returned before the coupon validity window opens.
	ErrInactive = errors.New("coupon not active yet")
	// ErrExpired is returned after the coupon validity window closes.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon has exhausted its global quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumSpendUnmet indicates the cart subtotal is below the coupon minimum.
	ErrMinimumSpendUnmet = errors.New("coupon minimum spend not met")
)

const maxPercentBps = 10000

// Rule captures a coupon and its runtime constraints. Value is in minor
// units for fixed_amount coupons and in basis points for percent coupons.
type Rule struct {
	ID         string      `json:"id"`
	Code       string      `json:"code"`
	Kind       string      `json:"kind"`
	Value      int64       `json:"value"`
	MinSpend   int64       `json:"minSpend"`
	UsageLimit *int32      `json:"usageLimit,omitempty"`
	UsedCount  int32       `json:"usedCount"`
	ValidFrom  *time.Time  `json:"validFrom,omitempty"`
	ValidTo    *time.Time  `json:"validTo,omitempty"`
	ItemKinds  []cart.Kind `json:"itemKinds"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// NormalizeCode canonicalises user input; codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the rule can be applied at the provided instant and cart subtotal.
func (r Rule) Validate(now time.Time, subtotal pricing.Money) error {
	if !r.Active {
		return ErrDisabled
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if subtotal < r.MinSpend {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// AppliesTo reports whether the rule covers items of the given kind. A rule
// without a kind scope covers every kind.
func (r Rule) AppliesTo(kind cart.Kind) bool {
	if len(r.ItemKinds) == 0 {
		return true
	}
	for _, k := range r.ItemKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// EligibleSubtotal calculates the portion of the cart affected by the rule.
func EligibleSubtotal(items []cart.Item, r Rule) pricing.Money {
	var total pricing.Money
	for _, it := range items {
		if it.Price <= 0 {
			continue
		}
		if r.AppliesTo(it.Kind) {
			total += it.Price
		}
	}
	return total
}

// Compute determines the discount amount based on the rule and eligible subtotal.
func Compute(eligible pricing.Money, r Rule) pricing.Money {
	if eligible <= 0 {
		return 0
	}
	discount := r.Value
	if strings.EqualFold(r.Kind, cart.DiscountPercent) {
		if r.Value <= 0 {
			return 0
		}
		bps := r.Value
		if bps > maxPercentBps {
			bps = maxPercentBps
		}
		discount = (eligible * bps) / maxPercentBps
	}
	if discount > eligible {
		discount = eligible
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// ToCart converts the rule into the record stored on a cart.
func (r Rule) ToCart() cart.Coupon {
	return cart.Coupon{
		Code:         r.Code,
		DiscountKind: r.Kind,
		Value:        r.Value,
		ValidFrom:    r.ValidFrom,
		ValidTo:      r.ValidTo,
	}
}
