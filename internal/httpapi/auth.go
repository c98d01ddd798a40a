package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tosti/internal/models"
	"tosti/internal/store"
)

type userContextKey struct{}

var errInvalidToken = errors.New("invalid token")

// Claims is the bearer token issued by the campus identity provider. The
// subject is the username.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator turns bearer tokens into stored users.
type Authenticator struct {
	secret   []byte
	identity store.IdentityStore
}

func NewAuthenticator(secret string, identity store.IdentityStore) *Authenticator {
	return &Authenticator{secret: []byte(secret), identity: identity}
}

// User resolves the caller of r. Requests without a token are anonymous and
// get the zero User.
func (a *Authenticator) User(r *http.Request) (models.User, error) {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if raw == "" {
		return models.User{}, nil
	}
	claims, err := a.parse(raw)
	if err != nil {
		return models.User{}, err
	}
	issued := time.Now().UTC()
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	return a.identity.AuthenticateUser(r.Context(), store.LoginInput{
		Username:    claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		IssuedAt:    issued,
	})
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func AuthMiddleware(auth *Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.User(r)
		if err != nil {
			if errors.Is(err, errInvalidToken) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "user lookup failed")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) models.User {
	user, _ := ctx.Value(userContextKey{}).(models.User)
	return user
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
