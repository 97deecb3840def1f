package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/password-reset/request",
	"/v1/auth/password-reset/confirm",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the bearer token into a live identity and attaches
// it, the raw token and the request metadata to the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestMeta(r.Context(), audit.RequestMeta{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		r = r.WithContext(ctx)

		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.auth == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication service unavailable")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.auth.ResolveSession(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				writeError(w, r, http.StatusUnauthorized, err.Error())
			case errors.Is(err, auth.ErrInactive):
				writeError(w, r, http.StatusBadRequest, "inactive user")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx = auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
