package common_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/common"
)

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/cart", nil)
	req.RemoteAddr = "[::ffff:10.1.2.3]:5555"
	require.Equal(t, "ip:10.1.2.3", common.CallerKey(req))

	req = req.WithContext(common.WithUserID(req.Context(), "u-9"))
	require.Equal(t, "user:u-9", common.CallerKey(req))
}

func TestPageFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/coupons?page=3&limit=500", nil)
	page := common.PageFromRequest(req, 20, 100)
	require.Equal(t, 3, page.Number)
	require.Equal(t, 100, page.Limit)
	require.Equal(t, 200, page.Offset())

	page = page.WithTotal(201)
	require.Equal(t, 3, page.TotalPages)

	page = common.PageFromRequest(httptest.NewRequest("GET", "/coupons?page=-1&limit=x", nil), 20, 100)
	require.Equal(t, 1, page.Number)
	require.Equal(t, 20, page.Limit)
	require.Zero(t, page.Offset())
}
