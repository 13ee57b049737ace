package handler

import (
	"time"

	"lead_rotation_backend/internal/stats/repository"
	"lead_rotation_backend/internal/stats/service"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/httpkit"
	"lead_rotation_backend/platform/sanitize"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Summary)
}

// Summary handles GET /rotation/stats?vendorId&pipelineId&origin&from&to.
// An empty origin parameter selects assignments without an origin.
func (h *Handler) Summary(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	filter, err := parseFilter(c)
	if httpkit.HandleError(c, err) {
		return
	}

	summary, err := h.svc.Summarize(c.Request.Context(), tenantID, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

func parseFilter(c *gin.Context) (repository.Filter, error) {
	var f repository.Filter

	if raw := c.Query("vendorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, invalid("vendorId must be a UUID")
		}
		f.VendorID = &id
	}
	if raw := c.Query("pipelineId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, invalid("pipelineId must be a UUID")
		}
		f.PipelineID = &id
	}
	if raw, present := c.GetQuery("origin"); present {
		origin := ""
		if normalized := sanitize.OriginTag(&raw); normalized != nil {
			origin = *normalized
		}
		f.Origin = &origin
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, invalid("from must be an RFC3339 timestamp")
		}
		f.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, invalid("to must be an RFC3339 timestamp")
		}
		f.To = &t
	}
	return f, nil
}

func invalid(message string) error {
	return apperr.BadRequest(message).WithCode("invalid_input")
}
