// Package stats provides the assignment statistics bounded context module.
package stats

import (
	"context"

	"lead_rotation_backend/internal/events"
	apphttp "lead_rotation_backend/internal/http"
	"lead_rotation_backend/internal/stats/handler"
	"lead_rotation_backend/internal/stats/repository"
	"lead_rotation_backend/internal/stats/service"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/logger"
)

// Module is the stats bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the statistics service. cache may be nil.
func NewModule(reader repository.Reader, cache service.Cache, cfg config.StatsConfig, log *logger.Logger) *Module {
	svc := service.New(reader, cache, cfg, log)
	return &Module{handler: handler.New(svc), service: svc}
}

// RegisterHandlers subscribes cache invalidation to committed assignments.
func (m *Module) RegisterHandlers(bus events.Bus, log *logger.Logger) {
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadAssigned)
		if !ok {
			return nil
		}
		if err := m.service.Invalidate(ctx, e.TenantID); err != nil {
			log.WithContext(ctx).Warn("stats cache invalidation failed", "tenant_id", e.TenantID.String(), "error", err)
		}
		return nil
	}))
}

// Service exposes the statistics service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "stats"
}

// RegisterRoutes mounts stats routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/rotation"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
