package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Aswinesag/gitness/internal/identity"
)

const (
	notifySignIn = "Please sign in to add items to cart"
	// Browsers cannot set headers on websocket upgrades, so upgrade requests
	// may carry the token as a query parameter. Other requests may not.
	queryAccessToken = "access_token"
)

// Authenticate attaches the token's principal to the request context when a
// valid token is present. It never rejects; route groups use RequireUser.
func Authenticate(v *identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			WriteError(w, r, http.StatusUnauthorized, "User not authenticated", notifySignIn)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(v *identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.FromContext(r.Context())
			if !ok || !v.IsAdmin(p) {
				WriteError(w, r, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if !websocket.IsWebSocketUpgrade(r) {
		return ""
	}
	return r.URL.Query().Get(queryAccessToken)
}
