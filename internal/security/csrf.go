package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-kreatif/internal/common"
)

const defaultCSRFName = "X-CSRF-Token"

// CSRF applies double-submit checks to state-changing requests that are
// authenticated by the SessionCookie access cookie. The token header must
// equal the token cookie. Requests without the session cookie, and requests
// carrying a bearer token, cannot be forged cross-site and pass through.
type CSRF struct {
	Header        string
	Cookie        string
	SessionCookie string
}

// Middleware implements chi middleware.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	header := firstNonEmpty(c.Header, defaultCSRFName)
	cookieName := firstNonEmpty(c.Cookie, header)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || !c.cookieAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(header))
		cookie, err := r.Cookie(cookieName)
		switch {
		case token == "":
			reject(w, "missing csrf token")
		case err != nil || strings.TrimSpace(cookie.Value) == "":
			reject(w, "missing csrf cookie")
		case subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1:
			reject(w, "invalid csrf token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (c CSRF) cookieAuthenticated(r *http.Request) bool {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return false
	}
	if c.SessionCookie == "" {
		return true
	}
	_, err := r.Cookie(c.SessionCookie)
	return err == nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func reject(w http.ResponseWriter, msg string) {
	common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", msg, nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
