package checkout_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/checkout"
	"github.com/noah-isme/backend-kreatif/internal/common"
)

func serveCheckout(h *checkout.Handler, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", strings.NewReader(body))
	ctx := context.Background()
	if userID != "" {
		ctx = common.WithUserID(ctx, userID)
		ctx = common.WithCartSession(ctx, "user:"+userID)
	}
	rr := httptest.NewRecorder()
	h.Checkout(rr, req.WithContext(ctx))
	return rr
}

func TestCheckoutHandlerStatuses(t *testing.T) {
	f := newFixture(t, http.StatusCreated, `{"id":"p-9","status":"paid"}`)
	h := &checkout.Handler{Svc: f.svc}

	rr := serveCheckout(h, "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serveCheckout(h, "u-1", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "EMPTY_CART")

	rr = serveCheckout(h, "u-1", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	fillCart(t, f.mgr, "user:u-1")
	rr = serveCheckout(h, "u-1", `{"email":"buyer@example.com"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"purchaseId":"p-9"`)
}

func TestCheckoutHandlerStaleCoupon(t *testing.T) {
	f := newFixture(t, http.StatusCreated, `{"id":"p-9","status":"paid"}`)
	h := &checkout.Handler{Svc: f.svc}
	_, err := f.mgr.Update(context.Background(), "user:u-1", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "f1", Kind: cart.KindFolder, Price: 10_000})
		s.SetAppliedCoupon(&cart.Coupon{Code: "TPL", DiscountKind: cart.DiscountFixedAmount, Value: 10_000})
		s.SetDiscountAmount(10_000)
		return nil
	})
	require.NoError(t, err)

	rr := serveCheckout(h, "u-1", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "COUPON_INVALID")
	require.Empty(t, f.got)
}
