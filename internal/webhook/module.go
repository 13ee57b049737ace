// Package webhook provides the lead intake bounded context module.
// This file defines the module that encapsulates webhook setup and route registration.
package webhook

import (
	apphttp "lead_rotation_backend/internal/http"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	keys    KeyLookup
}

// NewModule creates and initializes the webhook module with all its dependencies.
// enqueuer may be nil when no background worker is configured.
func NewModule(keys KeyStore, assigner Assigner, enqueuer Enqueuer, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(keys, assigner, enqueuer, log)
	return &Module{
		handler: NewHandler(service, val),
		keys:    keys,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public intake endpoint (API key auth, no JWT)
	webhookGroup := ctx.V1.Group("/webhook")
	if ctx.PublicRateLimiter != nil {
		webhookGroup.Use(ctx.PublicRateLimiter.RateLimit())
	}
	webhookGroup.Use(APIKeyAuthMiddleware(m.keys))
	webhookGroup.POST("/leads", m.handler.HandleLeadIntake)

	// Admin API key management (JWT auth + admin role)
	adminGroup := ctx.Admin.Group("/webhook/keys")
	adminGroup.POST("", m.handler.HandleCreateAPIKey)
	adminGroup.GET("", m.handler.HandleListAPIKeys)
	adminGroup.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
