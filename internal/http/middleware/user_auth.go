package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userKey contextKey = "authedUser"

// User is the authenticated principal extracted from a JWT. Authentication
// itself lives outside this service; the token is the thin interface to it.
type User struct {
	ID   string
	Role string
}

// UserClaims is the expected JWT payload: standard claims plus a role.
type UserClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// UserJWT enforces an HMAC-signed JWT carried in the Authorization header
// and places the resulting User in the request context.
func UserJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			user, err := ParseUserToken(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// UserJWTFromQuery authenticates via a ?token= query parameter. EventSource
// cannot set request headers, so the SSE endpoint uses this variant.
func UserJWTFromQuery(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			user, err := ParseUserToken(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ParseUserToken validates an HMAC-signed token and returns its principal.
func ParseUserToken(tokenString, secret string) (User, error) {
	if secret == "" {
		return User{}, fmt.Errorf("middleware: auth secret not configured")
	}
	claims := UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return User{}, fmt.Errorf("middleware: parse token: %w", err)
	}
	if claims.Subject == "" {
		return User{}, fmt.Errorf("middleware: token missing subject")
	}
	return User{ID: claims.Subject, Role: claims.Role}, nil
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user if present.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}
