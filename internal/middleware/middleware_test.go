package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"loot-stix/pkg"
)

const testSecret = "test-secret"

func signToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "u1",
		"username": "greg",
		"is_gm":    true,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func runMiddleware(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := JWTAuthMiddleware(testSecret, pkg.NewZapLogger(zap.NewNop()))(
		func(c echo.Context) error {
			called = true
			return c.NoContent(http.StatusOK)
		})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec, called
}

func TestJWTAuthMiddlewareValidHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t))

	rec, called := runMiddleware(t, req)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("handler not reached: code=%d called=%v", rec.Code, called)
	}
}

func TestJWTAuthMiddlewareQueryParamFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token="+signToken(t), nil)

	rec, called := runMiddleware(t, req)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("handler not reached: code=%d called=%v", rec.Code, called)
	}
}

func TestJWTAuthMiddlewareMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)

	rec, called := runMiddleware(t, req)
	if called {
		t.Error("handler must not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthMiddlewareInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	rec, called := runMiddleware(t, req)
	if called {
		t.Error("handler must not run with a bad token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthMiddlewareWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1"})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	rec, called := runMiddleware(t, req)
	if called {
		t.Error("handler must not run with a forged token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
