package http

import (
	"lead_rotation_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module mounts one area of the API: rotation admin, queue stats,
// assignment exports or webhook intake.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups a module can mount on.
//
// V1 is unauthenticated. Protected requires a tenant-scoped access token and
// Admin additionally requires the admin role, so queue edits and resets
// belong there while reads of the rotation state go on Protected.
type RouterContext struct {
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup
	// PublicRateLimiter throttles machine-to-machine intake on V1.
	PublicRateLimiter *httpkit.RateLimiter
}
