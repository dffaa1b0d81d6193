package middleware

import (
	"context"
	"net/http"
	"strings"

	"link-shortener/pkg/tier"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Account is the authenticated caller as asserted by the identity system.
// Token issuance lives elsewhere; this middleware only verifies.
type Account struct {
	ID   uuid.UUID
	Tier tier.Tier
}

type accountContextKey struct{}

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

type authClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// Authenticate rejects requests without a valid bearer token and puts the
// resolved Account on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		account, err := m.ParseToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := WithAccount(r.Context(), account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseToken verifies an HS256 token and extracts the account identity.
func (m *AuthMiddleware) ParseToken(tokenString string) (*Account, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, err
	}

	return &Account{ID: id, Tier: tier.ParseTier(claims.Tier)}, nil
}

// WithAccount returns a context carrying the authenticated account.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// GetAccountFromContext retrieves the authenticated account, or nil.
func GetAccountFromContext(ctx context.Context) *Account {
	if account, ok := ctx.Value(accountContextKey{}).(*Account); ok {
		return account
	}
	return nil
}
