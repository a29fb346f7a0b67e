package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveHeaders(h Headers, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return rr.Header()
}

func TestHeadersOverTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://api.kreatif.example/api/v1/cart", nil)
	req.TLS = &tls.ConnectionState{}
	got := serveHeaders(Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}, req)

	require.Equal(t, "nosniff", got.Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", got.Get("Cache-Control"))
	require.Equal(t, "max-age=600; includeSubDomains", got.Get("Strict-Transport-Security"))
}

func TestHeadersSkipHSTSOverPlainHTTP(t *testing.T) {
	got := serveHeaders(Headers{Enable: true, EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://localhost/api/v1/cart", nil))
	require.Equal(t, "DENY", got.Get("X-Frame-Options"))
	require.Empty(t, got.Get("Strict-Transport-Security"))
}

func TestHeadersDisabled(t *testing.T) {
	got := serveHeaders(Headers{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	require.Empty(t, got.Get("X-Content-Type-Options"))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://kreatif.example"}, "X-Cart-Session")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "http://localhost/api/v1/cart", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-Cart-Session")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	allowed := preflight("https://kreatif.example")
	require.Equal(t, http.StatusNoContent, allowed.Code)
	require.Equal(t, "https://kreatif.example", allowed.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", allowed.Header().Get("Access-Control-Allow-Credentials"))

	require.Empty(t, preflight("https://malicious.example").Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "http://localhost/api/v1/cart", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}
