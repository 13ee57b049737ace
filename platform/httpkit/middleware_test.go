package httpkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lead_rotation_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return "test-secret" }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTenantRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tenant", AuthRequired(testJWTConfig{}), func(c *gin.Context) {
		tenantID, ok := MustGetTenantID(c)
		if !ok {
			return
		}
		c.String(http.StatusOK, tenantID.String())
	})
	r.GET("/admin", AuthRequired(testJWTConfig{}), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthRequiredExposesTenant(t *testing.T) {
	tenantID := uuid.New()
	token := signToken(t, jwt.MapClaims{
		"sub":       uuid.NewString(),
		"type":      "access",
		"tenant_id": tenantID.String(),
		"exp":       time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newTenantRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != tenantID.String() {
		t.Fatalf("expected tenant %s, got %s", tenantID, rec.Body.String())
	}
}

func TestAuthRequiredRejectsRefreshTokens(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newTenantRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTenantlessTokenIsForbidden(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "access",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newTenantRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireRoleBlocksNonAdmins(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": []string{"user"},
		"exp":   time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newTenantRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleErrorCarriesCodeAndRetryable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	HandleError(c, apperr.Unavailable("rotation busy").WithCode("rotation_lock_timeout"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "rotation_lock_timeout" || !body.Retryable {
		t.Fatalf("unexpected body %+v", body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on retryable errors")
	}
}
