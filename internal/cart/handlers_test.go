package cart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/coupon"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
	"github.com/noah-isme/backend-kreatif/internal/session"
)

const anonID = "6f1c3a52-7d0e-4b6f-9a51-0c2b8f3e4d11"

type cartEnvelope struct {
	Data  cart.View `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newCartRouter(t *testing.T, coupons cart.CouponEvaluator) (http.Handler, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryBackend(time.Hour), nil, time.Second)
	resolver := session.Resolver{}
	h := &cart.Handler{Sessions: mgr, Coupons: coupons, Currency: "IDR", AnonymousKey: resolver.AnonymousKey}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if uid := req.Header.Get("X-Test-User"); uid != "" {
				req = req.WithContext(common.WithUserID(req.Context(), uid))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(resolver.Middleware)
	r.Get("/cart", h.Get)
	r.Delete("/cart", h.Clear)
	r.Post("/cart/items", h.AddItem)
	r.Delete("/cart/items/{kind}/{id}", h.RemoveItem)
	r.Put("/cart/coupon-code", h.SetCouponCode)
	r.Post("/cart/coupon", h.ApplyCoupon)
	r.Delete("/cart/coupon", h.RemoveCoupon)
	r.Post("/cart/merge", h.Merge)
	return r, mgr
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, cartEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(session.HeaderName, anonID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env cartEnvelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

func seededCoupons(t *testing.T) *coupon.Service {
	t.Helper()
	repo := coupon.NewMemoryRepository()
	_, err := repo.Create(context.Background(), coupon.Rule{Code: "HEMAT", Kind: cart.DiscountFixedAmount, Value: 25_000, Active: true})
	require.NoError(t, err)
	return &coupon.Service{Repo: repo}
}

func TestCartAddDedupAndRemove(t *testing.T) {
	router, _ := newCartRouter(t, nil)

	rr, env := do(t, router, http.MethodGet, "/cart", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, env.Data.Items)
	require.Equal(t, "IDR", env.Data.Currency)
	require.Equal(t, anonID, rr.Header().Get(session.HeaderName))

	item := map[string]any{"id": "t1", "kind": "template", "title": "Intro Pack", "price": 100_000}
	rr, env = do(t, router, http.MethodPost, "/cart/items", item, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, env.Data.Items, 1)
	require.EqualValues(t, 100_000, env.Data.Subtotal)

	item["price"] = 1
	rr, env = do(t, router, http.MethodPost, "/cart/items", item, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Data.Items, 1)
	require.EqualValues(t, 100_000, env.Data.Items[0].Price)

	rr, env = do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": "t1", "kind": "folder", "price": 5_000}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, env.Data.Items, 2)

	rr, env = do(t, router, http.MethodDelete, "/cart/items/template/t1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Data.Items, 1)
	require.Equal(t, cart.KindFolder, env.Data.Items[0].Kind)

	rr, _ = do(t, router, http.MethodDelete, "/cart/items/template/missing", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, router, http.MethodDelete, "/cart/items/video/t1", nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCartRemoveItemWithReservedCharacters(t *testing.T) {
	router, _ := newCartRouter(t, nil)

	for _, id := range []string{"a/b", "50%off"} {
		rr, _ := do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": id, "kind": "template", "price": 10}, nil)
		require.Equal(t, http.StatusCreated, rr.Code, id)
	}

	rr, env := do(t, router, http.MethodDelete, "/cart/items/template/"+url.PathEscape("a/b"), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Data.Items, 1)
	require.Equal(t, "50%off", env.Data.Items[0].ID)

	rr, env = do(t, router, http.MethodDelete, "/cart/items/template/"+url.PathEscape("50%off"), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, env.Data.Items)
}

func TestCartAddItemValidation(t *testing.T) {
	router, _ := newCartRouter(t, nil)

	rr, env := do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": "", "kind": "video", "price": -1}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCartApplyCouponFlow(t *testing.T) {
	router, _ := newCartRouter(t, seededCoupons(t))

	do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": "t1", "kind": "template", "price": 100_000}, nil)

	rr, env := do(t, router, http.MethodPost, "/cart/coupon", map[string]any{"code": "hemat"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hemat", env.Data.CouponCode)
	require.NotNil(t, env.Data.AppliedCoupon)
	require.Equal(t, "HEMAT", env.Data.AppliedCoupon.Code)
	require.EqualValues(t, 25_000, env.Data.DiscountAmount)
	require.EqualValues(t, 75_000, env.Data.Total)

	rr, env = do(t, router, http.MethodPost, "/cart/coupon", map[string]any{"code": "NOPE"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotNil(t, env.Error)
	require.Equal(t, "COUPON_REJECTED", env.Error.Code)
	require.Equal(t, "NOPE", env.Data.CouponCode)
	require.Nil(t, env.Data.AppliedCoupon)
	require.Zero(t, env.Data.DiscountAmount)
	require.EqualValues(t, 100_000, env.Data.Total)

	rr, env = do(t, router, http.MethodDelete, "/cart/coupon", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, env.Data.CouponCode)
}

func TestCartSetCouponCodeDoesNotValidate(t *testing.T) {
	router, _ := newCartRouter(t, nil)

	rr, env := do(t, router, http.MethodPut, "/cart/coupon-code", map[string]any{"code": "SUMMER"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "SUMMER", env.Data.CouponCode)
	require.Nil(t, env.Data.AppliedCoupon)
	require.Zero(t, env.Data.DiscountAmount)
}

type failingCoupons struct{}

func (failingCoupons) Evaluate(context.Context, string, []cart.Item) (cart.Coupon, pricing.Money, error) {
	return cart.Coupon{}, 0, errors.New("db down")
}

func TestCartApplyCouponInfrastructureErrorKeepsState(t *testing.T) {
	router, mgr := newCartRouter(t, failingCoupons{})

	rr, _ := do(t, router, http.MethodPost, "/cart/coupon", map[string]any{"code": "HEMAT"}, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	state, err := mgr.View(context.Background(), session.AnonKey(anonID))
	require.NoError(t, err)
	require.Empty(t, state.CouponCode)
}

func TestCartClear(t *testing.T) {
	router, _ := newCartRouter(t, seededCoupons(t))
	do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": "a1", "kind": "audio-content", "price": 40_000}, nil)
	do(t, router, http.MethodPost, "/cart/coupon", map[string]any{"code": "HEMAT"}, nil)

	rr, env := do(t, router, http.MethodDelete, "/cart", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, env.Data.Items)
	require.Empty(t, env.Data.CouponCode)
	require.Nil(t, env.Data.AppliedCoupon)
	require.Zero(t, env.Data.Total)
}

func TestCartMergeIntoUserCart(t *testing.T) {
	router, mgr := newCartRouter(t, nil)
	do(t, router, http.MethodPost, "/cart/items", map[string]any{"id": "p1", "kind": "picture-template", "price": 10_000}, nil)

	rr, _ := do(t, router, http.MethodPost, "/cart/merge", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, env := do(t, router, http.MethodPost, "/cart/merge", nil, map[string]string{"X-Test-User": "u-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Data.Items, 1)

	anon, err := mgr.View(context.Background(), session.AnonKey(anonID))
	require.NoError(t, err)
	require.Empty(t, anon.Items)
}
