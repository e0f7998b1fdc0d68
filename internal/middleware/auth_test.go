package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, role string, method jwt.SigningMethod, ttl time.Duration) string {
	t.Helper()

	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin@shop",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		sub, ok := GetAdminFromContext(r.Context())
		if !ok {
			t.Fatalf("admin subject not in context")
		}
		if sub != "admin@shop" {
			t.Fatalf("subject from context = %q, want admin@shop", sub)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/orders", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", RoleAdmin, jwt.SigningMethodHS256, time.Hour))

	w := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(w, r)

	if !nextCalled {
		t.Fatalf("next handler was not called, status %d", w.Code)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "no header", secret: "test-secret", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", secret: "test-secret", header: "Basic YWRtaW46YWRtaW4=", want: http.StatusUnauthorized},
		{name: "garbage token", secret: "test-secret", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			secret: "test-secret",
			header: "Bearer " + signToken(t, "other-secret", RoleAdmin, jwt.SigningMethodHS256, time.Hour),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "expired",
			secret: "test-secret",
			header: "Bearer " + signToken(t, "test-secret", RoleAdmin, jwt.SigningMethodHS256, -time.Minute),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "other algorithm",
			secret: "test-secret",
			header: "Bearer " + signToken(t, "test-secret", RoleAdmin, jwt.SigningMethodHS512, time.Hour),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "not configured",
			secret: "",
			header: "Bearer " + signToken(t, "test-secret", RoleAdmin, jwt.SigningMethodHS256, time.Hour),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "not admin",
			secret: "test-secret",
			header: "Bearer " + signToken(t, "test-secret", "user", jwt.SigningMethodHS256, time.Hour),
			want:   http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(tt.secret)

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
