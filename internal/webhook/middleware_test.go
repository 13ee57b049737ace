package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestIsDomainAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact", "https://acme.com", []string{"acme.com"}, true},
		{"case insensitive", "https://ACME.com", []string{" Acme.COM "}, true},
		{"wildcard subdomain", "https://forms.acme.com", []string{"*.acme.com"}, true},
		{"wildcard apex", "https://acme.com/page", []string{"*.acme.com"}, true},
		{"wildcard suffix trick", "https://evilacme.com", []string{"*.acme.com"}, false},
		{"other host", "https://other.com", []string{"acme.com"}, false},
		{"any", "https://other.com", []string{"*"}, true},
		{"empty origin", "", []string{"acme.com"}, false},
		{"no host", "acme.com", []string{"acme.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDomainAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Fatalf("isDomainAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

type lookupFunc func(ctx context.Context, hash string) (APIKey, error)

func (f lookupFunc) GetByHash(ctx context.Context, hash string) (APIKey, error) { return f(ctx, hash) }

func TestAPIKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	plaintext, hash, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key := APIKey{ID: uuid.New(), TenantID: uuid.New(), Name: "landing", KeyHash: hash, IsActive: true, AllowedDomains: []string{"acme.com"}}
	lookup := lookupFunc(func(_ context.Context, h string) (APIKey, error) {
		if h != hash {
			return APIKey{}, ErrAPIKeyNotFound
		}
		return key, nil
	})

	r := gin.New()
	r.POST("/hook", APIKeyAuthMiddleware(lookup), func(c *gin.Context) {
		tenantID, ok := getWebhookTenantID(c)
		if !ok {
			return
		}
		c.String(http.StatusOK, tenantID.String())
	})

	tests := []struct {
		name   string
		key    string
		origin string
		status int
	}{
		{"missing key", "", "https://acme.com", http.StatusUnauthorized},
		{"unknown key", "rlk_nope", "https://acme.com", http.StatusUnauthorized},
		{"foreign domain", plaintext, "https://evil.com", http.StatusForbidden},
		{"allowed", plaintext, "https://acme.com", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == http.StatusOK && rec.Body.String() != key.TenantID.String() {
				t.Fatalf("expected tenant %s, got %s", key.TenantID, rec.Body.String())
			}
		})
	}
}

func TestGenerateAPIKeyPrefixAndHash(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if len(plaintext) != 68 || plaintext[:4] != "rlk_" {
		t.Fatalf("unexpected key shape %q", plaintext)
	}
	if prefix != plaintext[:12] {
		t.Fatalf("prefix %q does not start the key", prefix)
	}
	if HashKey(plaintext) != hash {
		t.Fatal("hash does not match plaintext")
	}
}
