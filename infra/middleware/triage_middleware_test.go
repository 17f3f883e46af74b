package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"triage_server/pkg/apperr"
	"triage_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	app.Use(Recover())
	return app
}

func TestJWTAuth(t *testing.T) {
	userID := uuid.New()
	app := newTestApp()
	app.Use(JWTAuth(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(uuid.UUID).String())
	})

	valid := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	noExp := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID.String()})
	badSub := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	hs512 := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{"valid", "Bearer " + valid, 200, userID.String()},
		{"missing", "", 401, apperr.CodeUnauthorized},
		{"wrong scheme", "Basic " + valid, 401, apperr.CodeUnauthorized},
		{"expired", "Bearer " + expired, 401, apperr.CodeTokenExpired},
		{"no exp", "Bearer " + noExp, 401, apperr.CodeInvalidToken},
		{"bad subject", "Bearer " + badSub, 401, apperr.CodeInvalidToken},
		{"other algorithm", "Bearer " + hs512, 401, apperr.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.wantCode, body)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %s, want to contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestErrorHandlerAndRecover(t *testing.T) {
	app := newTestApp()
	app.Get("/app", func(c *fiber.Ctx) error { return apperr.NotFound("email") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrConflict })
	app.Get("/plain", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/app", 404, `"code":"NOT_FOUND"`},
		{"/fiber", 409, `"code":"CONFLICT"`},
		{"/plain", 500, `"code":"INTERNAL_ERROR"`},
		{"/panic", 500, `"code":"INTERNAL_ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-1")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %s", body)
			}
			if got := resp.Header.Get("X-Request-ID"); got != "req-1" {
				t.Errorf("X-Request-ID = %q", got)
			}
		})
	}
}

func TestUserRateLimit(t *testing.T) {
	app := newTestApp()
	userID := uuid.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/sync", UserRateLimit(ratelimit.NewSlidingWindowLimiter(nil, 1, time.Minute), "sync"),
		func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		codes = append(codes, resp.StatusCode)
		if i == 1 && resp.Header.Get("Retry-After") == "" {
			t.Error("missing Retry-After on limited response")
		}
	}
	if codes[0] != 200 || codes[1] != 429 {
		t.Errorf("status codes = %v, want [200 429]", codes)
	}
}
