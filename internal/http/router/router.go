package router

import (
	"context"
	"net/http"
	"time"

	apphttp "lead_rotation_backend/internal/http"
	"lead_rotation_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	healthTimeout    = 2 * time.Second
	webhookKeyHeader = "X-Webhook-API-Key"
)

// New builds the gin engine and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", healthHandler(app.Dependencies))

	authMiddleware := httpkit.AuthRequired(app.Config)
	v1 := engine.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(authMiddleware)
	admin := v1.Group("/admin")
	admin.Use(authMiddleware, httpkit.RequireRole(httpkit.RoleAdmin))

	rc := &apphttp.RouterContext{
		V1:                v1,
		Protected:         protected,
		Admin:             admin,
		PublicRateLimiter: httpkit.NewRateLimiter(rate.Limit(20), 40, httpkit.HeaderOrIPKey(webhookKeyHeader), app.Logger),
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(rc)
		app.Logger.Info("module registered", "module", module.Name())
	}

	return engine
}

// healthHandler reports 503 when a required dependency fails its probe and
// "degraded" when only optional ones do.
func healthHandler(deps []apphttp.Dependency) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		checks := make(map[string]string, len(deps))
		for _, dep := range deps {
			if err := dep.Check.Ping(ctx); err != nil {
				checks[dep.Name] = "unavailable"
				if dep.Optional {
					if code == http.StatusOK {
						status = "degraded"
					}
					continue
				}
				status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[dep.Name] = "ok"
		}
		c.JSON(code, gin.H{"status": status, "checks": checks})
	}
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.HeaderRequestID, webhookKeyHeader},
		ExposeHeaders:    []string{httpkit.HeaderRequestID, "Retry-After"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
