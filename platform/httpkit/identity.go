// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoleAdmin is the role required for administrative rotation operations.
const RoleAdmin = "admin"

// Identity represents the authenticated user's identity.
// Handlers read the caller and tenant through it without depending on token details.
type Identity interface {
	UserID() uuid.UUID
	// TenantID returns the tenant the token is scoped to, if any.
	TenantID() *uuid.UUID
	Roles() []string
	HasRole(role string) bool
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	tenantID      *uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID    { return i.userID }
func (i *identity) TenantID() *uuid.UUID { return i.tenantID }
func (i *identity) Roles() []string      { return i.roles }
func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, rolesOK := c.Get(ContextRolesKey); rolesOK {
		roleList, _ = roles.([]string)
	}

	var tenantID *uuid.UUID
	if raw, ok := c.Get(ContextTenantIDKey); ok {
		if tid, ok := raw.(uuid.UUID); ok {
			tenantID = &tid
		}
	}

	return &identity{
		userID:        uid,
		tenantID:      tenantID,
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetTenantID returns the caller's tenant or aborts the request.
// Unauthenticated callers get 401; tokens without a tenant get 403.
func MustGetTenantID(c *gin.Context) (uuid.UUID, bool) {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}
	tenantID := id.TenantID()
	if tenantID == nil || *tenantID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no organization context"})
		return uuid.Nil, false
	}
	return *tenantID, true
}
