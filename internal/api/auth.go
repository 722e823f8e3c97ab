package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew is the leeway allowed on token time claims.
const clockSkew = 2 * time.Minute

type contextKey string

const subjectContextKey contextKey = "subject"

// tokenAuth validates HS256 bearer tokens signed with a shared secret.
type tokenAuth struct {
	key    []byte
	parser *jwt.Parser
	srv    *Server
}

func newTokenAuth(secret string, srv *Server) *tokenAuth {
	return &tokenAuth{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(clockSkew),
		),
		srv: srv,
	}
}

// authenticate rejects requests without a valid bearer token and stores the
// token subject in the request context.
func (a *tokenAuth) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			a.srv.writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.srv.writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		var claims jwt.RegisteredClaims
		_, err := a.parser.ParseWithClaims(parts[1], &claims, func(*jwt.Token) (any, error) {
			return a.key, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				a.srv.writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			a.srv.logger.Debug("rejected bearer token", "error", err)
			a.srv.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subjectFrom returns the authenticated token subject, or "" when auth is off.
func subjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(subjectContextKey).(string)
	return sub
}
