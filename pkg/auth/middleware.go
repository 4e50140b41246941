package auth

import (
	"net/http"
	"strings"
)

// RequireBearerToken returns middleware that extracts the Authorization
// bearer token, verifies it against v, and stores the resolved Identity
// in the request context via WithIdentity. A missing or invalid token
// fails the request with 401 before the wrapped handler ever runs.
func RequireBearerToken(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			identity, err := v.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if header == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(header, prefix) {
		return "", ErrInvalidToken
	}
	return strings.TrimPrefix(header, prefix), nil
}
