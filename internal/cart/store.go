package cart

import (
	"time"

	"github.com/noah-isme/backend-kreatif/internal/pricing"
)

// Kind discriminates the purchasable asset types a cart can hold.
type Kind string

const (
	KindTemplate        Kind = "template"
	KindFolder          Kind = "folder"
	KindPictureTemplate Kind = "picture-template"
	KindPictureFolder   Kind = "picture-folder"
	KindAudioContent    Kind = "audio-content"
	KindAudioFolder     Kind = "audio-folder"
)

// Kinds lists every supported item kind.
var Kinds = []Kind{
	KindTemplate,
	KindFolder,
	KindPictureTemplate,
	KindPictureFolder,
	KindAudioContent,
	KindAudioFolder,
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Item is a single purchasable selection. Items are identified by the
// (ID, Kind) pair; the same ID may exist under different kinds.
type Item struct {
	ID    string        `json:"id"`
	Kind  Kind          `json:"kind"`
	Title string        `json:"title"`
	Price pricing.Money `json:"price"`
}

func (it Item) matches(id string, kind Kind) bool {
	return it.ID == id && it.Kind == kind
}

// Coupon kinds.
const (
	DiscountFixedAmount = "fixed_amount"
	DiscountPercent     = "percent"
)

// Coupon describes a coupon the backend accepted for this cart.
type Coupon struct {
	Code         string     `json:"code"`
	DiscountKind string     `json:"discountKind"`
	Value        int64      `json:"value"`
	ValidFrom    *time.Time `json:"validFrom,omitempty"`
	ValidTo      *time.Time `json:"validTo,omitempty"`
}

// State is the full cart contents. Subtotal and total are never stored; use
// Subtotal, Total or Summarize.
type State struct {
	Items          []Item        `json:"items"`
	CouponCode     string        `json:"couponCode"`
	AppliedCoupon  *Coupon       `json:"appliedCoupon,omitempty"`
	DiscountAmount pricing.Money `json:"discountAmount"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		CouponCode:     s.CouponCode,
		DiscountAmount: s.DiscountAmount,
		Items:          make([]Item, len(s.Items)),
	}
	copy(out.Items, s.Items)
	if s.AppliedCoupon != nil {
		c := *s.AppliedCoupon
		out.AppliedCoupon = &c
	}
	return out
}

// Subtotal returns the sum of item prices.
func Subtotal(s State) pricing.Money {
	return Summarize(s).Subtotal
}

// Total returns max(0, subtotal - discount).
func Total(s State) pricing.Money {
	return Summarize(s).Total
}

// Summarize computes the pricing summary for the state.
func Summarize(s State) pricing.Summary {
	prices := make([]pricing.Money, 0, len(s.Items))
	for _, it := range s.Items {
		prices = append(prices, it.Price)
	}
	return pricing.Compute(prices, s.DiscountAmount)
}

// Store holds the cart of a single session. It is not safe for concurrent
// use; the owning session serialises access.
type Store struct {
	state State
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{state: State{Items: []Item{}}}
}

// FromState restores a store from a snapshot. Duplicate (id, kind) pairs in
// the snapshot are dropped, keeping the first occurrence.
func FromState(s State) *Store {
	st := NewStore()
	for _, it := range s.Items {
		st.AddItem(it)
	}
	st.state.CouponCode = s.CouponCode
	st.SetAppliedCoupon(s.AppliedCoupon)
	st.SetDiscountAmount(s.DiscountAmount)
	return st
}

// AddItem appends the item unless one with the same (id, kind) is already
// present. Existing entries are never updated. It reports whether the item
// was appended.
func (s *Store) AddItem(item Item) bool {
	if s.indexOf(item.ID, item.Kind) >= 0 {
		return false
	}
	s.state.Items = append(s.state.Items, item)
	return true
}

// RemoveItem drops the item identified by (id, kind). It reports whether an
// item was removed.
func (s *Store) RemoveItem(id string, kind Kind) bool {
	idx := s.indexOf(id, kind)
	if idx < 0 {
		return false
	}
	items := make([]Item, 0, len(s.state.Items)-1)
	items = append(items, s.state.Items[:idx]...)
	items = append(items, s.state.Items[idx+1:]...)
	s.state.Items = items
	return true
}

// Clear empties the cart and resets every coupon field.
func (s *Store) Clear() {
	s.state = State{Items: []Item{}}
}

// SetCouponCode stores the free-text coupon entry.
func (s *Store) SetCouponCode(code string) {
	s.state.CouponCode = code
}

// SetAppliedCoupon stores the validated coupon. Passing nil clears it.
func (s *Store) SetAppliedCoupon(c *Coupon) {
	if c == nil {
		s.state.AppliedCoupon = nil
		return
	}
	cp := *c
	s.state.AppliedCoupon = &cp
}

// SetDiscountAmount stores the discount; negative amounts are stored as zero.
func (s *Store) SetDiscountAmount(amount pricing.Money) {
	if amount < 0 {
		amount = 0
	}
	s.state.DiscountAmount = amount
}

// Items returns a copy of the items in insertion order.
func (s *Store) Items() []Item {
	out := make([]Item, len(s.state.Items))
	copy(out, s.state.Items)
	return out
}

// Len returns the number of items.
func (s *Store) Len() int { return len(s.state.Items) }

// CouponCode returns the current coupon entry.
func (s *Store) CouponCode() string { return s.state.CouponCode }

// AppliedCoupon returns a copy of the applied coupon or nil.
func (s *Store) AppliedCoupon() *Coupon {
	if s.state.AppliedCoupon == nil {
		return nil
	}
	c := *s.state.AppliedCoupon
	return &c
}

// DiscountAmount returns the manually set discount.
func (s *Store) DiscountAmount() pricing.Money { return s.state.DiscountAmount }

// Subtotal returns the sum of item prices.
func (s *Store) Subtotal() pricing.Money { return Subtotal(s.state) }

// Total returns the discounted total, floored at zero.
func (s *Store) Total() pricing.Money { return Total(s.state) }

// State returns a snapshot of the cart.
func (s *Store) State() State { return s.state.Clone() }

func (s *Store) indexOf(id string, kind Kind) int {
	for i, it := range s.state.Items {
		if it.matches(id, kind) {
			return i
		}
	}
	return -1
}
