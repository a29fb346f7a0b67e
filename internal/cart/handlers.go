package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/obs"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
)

// ErrCouponRejected marks coupon evaluation failures caused by the coupon
// itself (unknown, expired, not applicable) rather than by infrastructure.
var ErrCouponRejected = errors.New("coupon rejected")

// Sessions resolves and mutates the cart owned by a session key.
type Sessions interface {
	View(ctx context.Context, key string) (State, error)
	Update(ctx context.Context, key string, fn func(*Store) error) (State, error)
	Merge(ctx context.Context, from, to string) (State, error)
}

// CouponEvaluator validates a coupon code against cart items.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, items []Item) (Coupon, pricing.Money, error)
}

// Handler wires the session cart to HTTP.
type Handler struct {
	Sessions     Sessions
	Coupons      CouponEvaluator
	Currency     string
	AnonymousKey func(*http.Request) (string, bool)
}

// View is the cart representation returned to the storefront.
type View struct {
	Items          []Item        `json:"items"`
	CouponCode     string        `json:"couponCode"`
	AppliedCoupon  *Coupon       `json:"appliedCoupon"`
	DiscountAmount pricing.Money `json:"discountAmount"`
	Subtotal       pricing.Money `json:"subtotal"`
	Total          pricing.Money `json:"total"`
	Currency       string        `json:"currency"`
}

type addItemPayload struct {
	ID    string `json:"id" validate:"required,max=128"`
	Kind  string `json:"kind" validate:"required,oneof=template folder picture-template picture-folder audio-content audio-folder"`
	Title string `json:"title" validate:"max=256"`
	Price int64  `json:"price" validate:"gte=0"`
}

type couponPayload struct {
	Code string `json:"code" validate:"max=64"`
}

// Get returns the session cart with derived totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	state, err := h.Sessions.View(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, state)
}

// AddItem adds an item to the cart. Adding an item already present is not an
// error; the cart is returned unchanged with status 200.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	var payload addItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.ID = strings.TrimSpace(payload.ID)
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	var added bool
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		added = s.AddItem(Item{
			ID:    payload.ID,
			Kind:  Kind(payload.Kind),
			Title: strings.TrimSpace(payload.Title),
			Price: payload.Price,
		})
		return nil
	})
	if err != nil {
		obs.ObserveCartOperation("add_item", "error")
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	result := "duplicate"
	if added {
		status = http.StatusCreated
		result = "added"
	}
	obs.ObserveCartOperation("add_item", result)
	h.respond(w, status, state)
}

// RemoveItem removes the item identified by kind and id. Removing an item
// that is not in the cart succeeds.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	kind := Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown item kind", nil)
		return
	}
	id, err := itemIDParam(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var removed bool
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		removed = s.RemoveItem(id, kind)
		return nil
	})
	if err != nil {
		obs.ObserveCartOperation("remove_item", "error")
		h.writeError(w, r, err)
		return
	}
	if removed {
		obs.ObserveCartOperation("remove_item", "removed")
	} else {
		obs.ObserveCartOperation("remove_item", "missing")
	}
	h.respond(w, http.StatusOK, state)
}

// Clear empties the cart and resets coupon state.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		s.Clear()
		return nil
	})
	if err != nil {
		obs.ObserveCartOperation("clear", "error")
		h.writeError(w, r, err)
		return
	}
	obs.ObserveCartOperation("clear", "ok")
	h.respond(w, http.StatusOK, state)
}

// SetCouponCode stores the coupon entry without validating it.
func (h *Handler) SetCouponCode(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		s.SetCouponCode(payload.Code)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, state)
}

// ApplyCoupon stores the code, validates it and, when accepted, sets the
// applied coupon and discount together. A rejected coupon resets the
// discount and applied coupon and answers 422 with the resulting cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	if h.Coupons == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "coupon validation not configured", nil)
		return
	}
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Code = strings.TrimSpace(payload.Code)
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	if payload.Code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var rejection error
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		s.SetCouponCode(payload.Code)
		applied, discount, err := h.Coupons.Evaluate(r.Context(), payload.Code, s.Items())
		if err != nil {
			if !errors.Is(err, ErrCouponRejected) {
				return err
			}
			rejection = err
			s.SetAppliedCoupon(nil)
			s.SetDiscountAmount(0)
			return nil
		}
		s.SetAppliedCoupon(&applied)
		s.SetDiscountAmount(discount)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rejection != nil {
		zerolog.Ctx(r.Context()).Info().Str("code", payload.Code).Err(rejection).Msg("coupon_rejected")
		common.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": common.ErrorBody{Code: "COUPON_REJECTED", Message: rejection.Error()},
			"data":  h.view(state),
		})
		return
	}
	h.respond(w, http.StatusOK, state)
}

// RemoveCoupon clears the coupon entry, applied coupon and discount.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	state, err := h.Sessions.Update(r.Context(), key, func(s *Store) error {
		s.SetCouponCode("")
		s.SetAppliedCoupon(nil)
		s.SetDiscountAmount(0)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, state)
}

// Merge folds the anonymous cart named by the session header into the
// authenticated user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	if _, ok := common.UserID(r.Context()); !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	key, ok := h.sessionKey(w, r)
	if !ok {
		return
	}
	if h.AnonymousKey == nil {
		h.Get(w, r)
		return
	}
	from, ok := h.AnonymousKey(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "anonymous cart session required", nil)
		return
	}
	state, err := h.Sessions.Merge(r.Context(), from, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obs.ObserveCartOperation("merge", "ok")
	h.respond(w, http.StatusOK, state)
}

// itemIDParam returns the decoded id segment. chi matches on the escaped
// path when one exists, so ids containing a slash arrive still encoded.
func itemIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (h *Handler) sessionKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart sessions not configured", nil)
		return "", false
	}
	key, ok := common.CartSession(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart session not resolved", nil)
		return "", false
	}
	return key, true
}

func (h *Handler) view(state State) View {
	summary := Summarize(state)
	items := state.Items
	if items == nil {
		items = []Item{}
	}
	return View{
		Items:          items,
		CouponCode:     state.CouponCode,
		AppliedCoupon:  state.AppliedCoupon,
		DiscountAmount: state.DiscountAmount,
		Subtotal:       summary.Subtotal,
		Total:          summary.Total,
		Currency:       h.Currency,
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, state State) {
	common.Data(w, status, h.view(state))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err, http.StatusBadRequest) {
		return
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "cart busy, retry", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("cart_operation_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}
