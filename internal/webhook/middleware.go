package webhook

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey carries the plaintext webhook key.
	HeaderAPIKey = "X-Webhook-API-Key"

	ctxTenantID = "webhookTenantID"
	ctxKeyID    = "webhookKeyID"
	ctxKeyName  = "webhookKeyName"
)

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header
// and sets the tenant context on the gin context.
func APIKeyAuthMiddleware(keys KeyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := keys.GetByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		// Domain validation (if allowed_domains is configured). Server-to-server
		// callers without Origin fall back to Referer.
		if len(key.AllowedDomains) > 0 {
			origin := c.GetHeader("Origin")
			if origin == "" {
				origin = c.GetHeader("Referer")
			}
			if !isDomainAllowed(origin, key.AllowedDomains) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "domain not allowed"})
				return
			}
		}

		c.Set(ctxTenantID, key.TenantID)
		c.Set(ctxKeyID, key.ID)
		c.Set(ctxKeyName, key.Name)
		c.Next()
	}
}

// isDomainAllowed checks if the origin matches any of the allowed domains.
// Supports exact match and wildcard subdomains (e.g., "*.example.com").
func isDomainAllowed(origin string, allowedDomains []string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "*" {
			return true
		}
		if strings.HasPrefix(domain, "*.") {
			suffix := domain[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) || host == domain[2:] {
				return true
			}
		} else if host == domain {
			return true
		}
	}
	return false
}
