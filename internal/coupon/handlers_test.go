package coupon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/coupon"
)

func newRouter(repo *coupon.MemoryRepository) http.Handler {
	h := &coupon.Handler{Repo: repo, Svc: &coupon.Service{Repo: repo}}
	r := chi.NewRouter()
	r.Get("/coupons", h.List)
	r.Post("/coupons", h.Create)
	r.Post("/coupons/preview", h.Preview)
	r.Get("/coupons/{code}", h.Get)
	r.Put("/coupons/{code}", h.Update)
	r.Delete("/coupons/{code}", h.Delete)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCouponAdminHandlers(t *testing.T) {
	repo := coupon.NewMemoryRepository()
	router := newRouter(repo)

	t.Run("create", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/coupons", `{"code":"launch10","kind":"percent","value":1000,"itemKinds":["template","folder"]}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp struct {
			Data coupon.Rule `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "LAUNCH10", resp.Data.Code)
		require.True(t, resp.Data.Active)
	})

	t.Run("duplicate", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/coupons", `{"code":"LAUNCH10","value":5}`)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/coupons", `{"code":"BAD","kind":"bogus","value":-1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

		rec = do(t, router, http.MethodPost, "/coupons", `{"code":"PCT","kind":"percent","value":20000}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, router, http.MethodPost, "/coupons", `{"code":"K","value":1,"itemKinds":["video"]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("preview", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/coupons/preview", `{"code":"launch10","items":[{"id":"t1","kind":"template","price":50000},{"id":"a1","kind":"audio-content","price":10000}]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Data coupon.PreviewResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.EqualValues(t, 5000, resp.Data.Discount)

		rec = do(t, router, http.MethodPost, "/coupons/preview", `{"code":"nope","items":[{"id":"t1","kind":"template","price":1}]}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("update get list delete", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/coupons/launch10", `{"kind":"fixed_amount","value":700,"active":false}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rule, err := repo.GetByCode(context.Background(), "LAUNCH10")
		require.NoError(t, err)
		require.False(t, rule.Active)
		require.EqualValues(t, 700, rule.Value)

		rec = do(t, router, http.MethodGet, "/coupons/launch10", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodGet, "/coupons?limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"total_items":1`)

		rec = do(t, router, http.MethodDelete, "/coupons/launch10", "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, router, http.MethodGet, "/coupons/launch10", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
