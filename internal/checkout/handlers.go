package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/resilience"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc *Service
}

type checkoutPayload struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// Checkout purchases the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	sessionKey, ok := common.CartSession(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart session not resolved", nil)
		return
	}
	var payload checkoutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)
	if err := common.ValidateStruct(payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.Svc.Checkout(r.Context(), Input{
		SessionKey:     sessionKey,
		UserID:         userID,
		Email:          payload.Email,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if common.WriteAppError(w, err, http.StatusBadRequest) {
		return
	}
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrCouponInvalid):
		common.JSONError(w, http.StatusConflict, "COUPON_INVALID", "applied coupon no longer applies to this cart", nil)
	case errors.Is(err, ErrPurchaseRejected):
		common.JSONError(w, http.StatusConflict, "PURCHASE_REJECTED", err.Error(), nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "purchase service unavailable", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("checkout_failed")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "checkout failed", nil)
	}
}
