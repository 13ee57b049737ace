// Package exports provides CSV export of the assignment history.
package exports

import (
	apphttp "lead_rotation_backend/internal/http"
)

// Module is the exports bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the exports module over reader.
func NewModule(reader Reader) *Module {
	return &Module{handler: NewHandler(reader)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "exports"
}

// RegisterRoutes mounts export routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/rotation/assignments/export.csv", m.handler.ExportAssignmentsCSV)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
