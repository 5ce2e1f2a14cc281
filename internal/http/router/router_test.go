package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "tour_portal_backend/internal/http"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "router-secret"

type testConfig struct{}

func (testConfig) GetHTTPAddr() string        { return ":0" }
func (testConfig) GetCORSAllowAll() bool      { return false }
func (testConfig) GetCORSOrigins() []string   { return []string{"http://localhost:3000"} }
func (testConfig) GetCORSAllowCreds() bool    { return true }
func (testConfig) GetJWTAccessSecret() string { return testSecret }

type routeModule struct{}

func (routeModule) Name() string { return "routes" }

func (routeModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	ctx.V1.POST("/public", ok)
	ctx.Protected.GET("/private", ok)
	ctx.Admin.GET("/report", ok)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.New("test"),
		Health:  health,
		Modules: []apphttp.Module{routeModule{}},
	})
}

func accessToken(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": roles,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serve(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsDatabaseState(t *testing.T) {
	if rec := serve(newTestEngine(pinger{}), http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	down := newTestEngine(pinger{err: errors.New("connection refused")})
	if rec := serve(down, http.MethodGet, "/api/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRouteGroups(t *testing.T) {
	engine := newTestEngine(nil)
	agent := accessToken(t, "agent")
	admin := accessToken(t, httpkit.RoleAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"public without token", http.MethodPost, "/api/v1/public", "", http.StatusNoContent},
		{"protected without token", http.MethodGet, "/api/v1/private", "", http.StatusUnauthorized},
		{"protected with token", http.MethodGet, "/api/v1/private", agent, http.StatusNoContent},
		{"admin as agent", http.MethodGet, "/api/v1/admin/report", agent, http.StatusForbidden},
		{"admin as admin", http.MethodGet, "/api/v1/admin/report", admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		if rec := serve(engine, tc.method, tc.path, tc.token); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	rec := serve(newTestEngine(nil), http.MethodGet, "/api/health", "")
	if rec.Header().Get(httpkit.RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

