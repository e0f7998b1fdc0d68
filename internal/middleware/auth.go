// Package middleware содержит HTTP middleware витрины.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminSubjectKey contextKey = "adminSubject"

// RoleAdmin — значение claim role, дающее доступ к административным маршрутам.
const RoleAdmin = "admin"

// AdminClaims содержит claims токена администратора.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var errNoToken = errors.New("bearer token is missing")

// AuthMiddleware проверяет bearer-токен администратора (JWT, HS256).
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт middleware с ключом подписи. С пустым ключом любой токен отклоняется.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secret),
	}
}

// Middleware пропускает только запросы с действительным токеном роли admin.
// Отсутствующий или неверный токен даёт 401, токен другой роли даёт 403.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parseToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if claims.Role != RoleAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), adminSubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) parseToken(header string) (*AdminClaims, error) {
	if len(a.secretKey) == 0 {
		return nil, errors.New("admin auth is not configured")
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, errNoToken
	}

	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	return claims, nil
}

// GetAdminFromContext возвращает subject токена администратора, прошедшего проверку.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(adminSubjectKey).(string)
	return sub, ok
}
