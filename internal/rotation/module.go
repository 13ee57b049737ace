// Package rotation provides the lead rotation bounded context module.
// This file defines the module that encapsulates rotation setup and route registration.
package rotation

import (
	"lead_rotation_backend/internal/events"
	apphttp "lead_rotation_backend/internal/http"
	"lead_rotation_backend/internal/rotation/handler"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/lock"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/validator"
)

// Module is the rotation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the rotation service over store. locker may be nil when
// Redis is not configured.
func NewModule(store repository.Store, locker lock.Locker, eventBus events.Bus, val *validator.Validator, cfg config.RotationConfig, log *logger.Logger, opts ...service.Option) *Module {
	svc := service.New(store, locker, eventBus, cfg, log, opts...)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Service exposes the assignment engine to other modules and the worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "rotation"
}

// RegisterRoutes mounts rotation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/rotation"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/rotation"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
