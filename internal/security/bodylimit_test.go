package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		wantStatus    int
		wantBody      string
	}{
		{name: "within limit", max: 64, body: `{"id":"tpl-1"}`, wantStatus: http.StatusOK, wantBody: `{"id":"tpl-1"}`},
		{name: "exactly at limit", max: 5, body: "hello", wantStatus: http.StatusOK, wantBody: "hello"},
		{name: "streamed body too large", max: 5, body: "excessive", contentLength: -1, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "declared length too large", max: 5, body: "abc", contentLength: 100, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "disabled", max: 0, body: strings.Repeat("x", 1024), wantStatus: http.StatusOK, wantBody: strings.Repeat("x", 1024)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := BodyLimit{Max: tc.max}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				seen = string(data)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.body))
			if tc.contentLength != 0 {
				req.ContentLength = tc.contentLength
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, tc.wantBody, seen)
			} else {
				require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
			}
		})
	}
}

func TestBodyLimitPassesEmptyBody(t *testing.T) {
	called := false
	handler := BodyLimit{Max: 1}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil))
	require.True(t, called)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
