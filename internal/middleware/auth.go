package middleware

import (
	"errors"
	"net/http"

	"wikid/internal/data"
)

// Authenticator checks credentials against the user store.
type Authenticator interface {
	Authenticate(name, password string) (*data.UserInfo, error)
}

// BasicAuth enforces HTTP basic authentication on every request and puts
// the verified user name on the request context.
func BasicAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}
			user, err := auth.Authenticate(name, password)
			if err != nil {
				if errors.Is(err, data.ErrUserNotFound) {
					unauthorized(w)
					return
				}
				http.Error(w, "Authentication error", http.StatusInternalServerError)
				return
			}
			ctx := WithUserName(r.Context(), user.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="wikid"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
