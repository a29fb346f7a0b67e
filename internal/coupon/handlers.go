package coupon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/common"
)

// Handler exposes administrative coupon management endpoints.
type Handler struct {
	Repo         Repository
	Svc          *Service
	DefaultLimit int
	MaxLimit     int
}

type couponPayload struct {
	Code       string     `json:"code" validate:"required,max=64"`
	Kind       string     `json:"kind" validate:"omitempty,oneof=fixed_amount percent"`
	Value      int64      `json:"value" validate:"gte=0"`
	MinSpend   int64      `json:"minSpend" validate:"gte=0"`
	UsageLimit *int32     `json:"usageLimit" validate:"omitempty,gte=0"`
	ValidFrom  *time.Time `json:"validFrom"`
	ValidTo    *time.Time `json:"validTo"`
	ItemKinds  []string   `json:"itemKinds" validate:"dive,oneof=template folder picture-template picture-folder audio-content audio-folder"`
	Active     *bool      `json:"active"`
}

type previewRequest struct {
	Code  string        `json:"code" validate:"required"`
	Items []previewItem `json:"items" validate:"required,min=1,dive"`
}

type previewItem struct {
	ID    string `json:"id" validate:"required"`
	Kind  string `json:"kind" validate:"required,oneof=template folder picture-template picture-folder audio-content audio-folder"`
	Price int64  `json:"price" validate:"gte=0"`
}

// List returns a page of coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon repository not configured", nil)
		return
	}
	page := common.PageFromRequest(r, h.defaultLimit(), h.MaxLimit)
	rules, total, err := h.Repo.List(r.Context(), page.Limit, page.Offset())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules, "pagination": page.WithTotal(total)})
}

// Get returns one coupon.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon repository not configured", nil)
		return
	}
	rule, err := h.Repo.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, rule)
}

// Create inserts a new coupon.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon repository not configured", nil)
		return
	}
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	rule, err := buildRule(payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.Repo.Create(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("code", created.Code).Msg("coupon_created")
	common.Data(w, http.StatusCreated, created)
}

// Update replaces the rule of an existing coupon identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon repository not configured", nil)
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Code = code
	rule, err := buildRule(payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.Repo.Update(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, updated)
}

// Delete removes a coupon.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon repository not configured", nil)
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.Repo.Delete(r.Context(), code); err != nil {
		h.writeError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("code", NormalizeCode(code)).Msg("coupon_deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Preview returns the simulated discount for a coupon without persisting state.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]cart.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, cart.Item{ID: it.ID, Kind: cart.Kind(it.Kind), Price: it.Price})
	}
	result, err := h.Svc.Preview(r.Context(), req.Code, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, result)
}

func buildRule(payload couponPayload) (Rule, error) {
	payload.Code = NormalizeCode(payload.Code)
	if err := common.ValidateStruct(payload); err != nil {
		return Rule{}, err
	}
	kind := payload.Kind
	if kind == "" {
		kind = cart.DiscountFixedAmount
	}
	if kind == cart.DiscountPercent && (payload.Value <= 0 || payload.Value > maxPercentBps) {
		return Rule{}, common.Invalid("percent value must be between 1 and 10000 basis points")
	}
	if payload.ValidFrom != nil && payload.ValidTo != nil && payload.ValidTo.Before(*payload.ValidFrom) {
		return Rule{}, common.Invalid("validTo must not precede validFrom")
	}
	kinds := make([]cart.Kind, 0, len(payload.ItemKinds))
	for _, k := range payload.ItemKinds {
		kinds = append(kinds, cart.Kind(k))
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	return Rule{
		Code:       payload.Code,
		Kind:       kind,
		Value:      payload.Value,
		MinSpend:   payload.MinSpend,
		UsageLimit: payload.UsageLimit,
		ValidFrom:  payload.ValidFrom,
		ValidTo:    payload.ValidTo,
		ItemKinds:  kinds,
		Active:     active,
	}, nil
}

func (h *Handler) defaultLimit() int {
	if h.DefaultLimit <= 0 {
		return 20
	}
	return h.DefaultLimit
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if common.WriteAppError(w, err, http.StatusBadRequest) {
		return
	}
	switch {
	case errors.Is(err, ErrNotFound) && !errors.Is(err, cart.ErrCouponRejected):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDuplicate):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, cart.ErrCouponRejected):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_REJECTED", err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("coupon_admin_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon operation failed", nil)
	}
}
