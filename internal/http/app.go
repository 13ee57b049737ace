// Package http holds the contracts between the composition root, the router
// and the rotation, stats, export and webhook modules.
package http

import (
	"context"

	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker is a readiness probe for one backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to HealthChecker.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependency names a probe reported by /api/health.
type Dependency struct {
	Name  string
	Check HealthChecker
	// Optional dependencies degrade the report without failing readiness.
	Optional bool
}

// App is what cmd/api hands to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Dependencies are probed in order on every health request.
	Dependencies []Dependency
	Modules      []Module
}
