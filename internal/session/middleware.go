package session

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/obs"
)

// HeaderName carries the anonymous cart session identifier.
const HeaderName = "X-Cart-Session"

// Resolver attaches the cart session key to each request. Authenticated
// callers use their user cart; anonymous callers use the id in HeaderName,
// and receive a fresh one when it is missing or malformed.
type Resolver struct {
	Header string
}

// Middleware implements chi middleware.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	header := res.Header
	if header == "" {
		header = HeaderName
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if userID, ok := common.UserID(ctx); ok && strings.TrimSpace(userID) != "" {
			key := UserKey(userID)
			obs.AnnotateRequest(r, "cart_session", key)
			next.ServeHTTP(w, r.WithContext(common.WithCartSession(ctx, key)))
			return
		}
		anonID := strings.TrimSpace(r.Header.Get(header))
		if _, err := uuid.Parse(anonID); err != nil {
			anonID = uuid.NewString()
		}
		w.Header().Set(header, anonID)
		key := AnonKey(anonID)
		obs.AnnotateRequest(r, "cart_session", key)
		next.ServeHTTP(w, r.WithContext(common.WithCartSession(ctx, key)))
	})
}

// AnonymousKey returns the anonymous session key carried by the request, if
// the header holds a valid id.
func (res Resolver) AnonymousKey(r *http.Request) (string, bool) {
	header := res.Header
	if header == "" {
		header = HeaderName
	}
	anonID := strings.TrimSpace(r.Header.Get(header))
	if _, err := uuid.Parse(anonID); err != nil {
		return "", false
	}
	return AnonKey(anonID), true
}
