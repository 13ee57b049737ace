package handler

import (
	"net/http"

	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/internal/rotation/transport"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/httpkit"
	"lead_rotation_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

// Handler serves the rotation endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts tenant-scoped rotation routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/assignments", h.AssignLead)
	rg.GET("/simulation", h.Simulate)
	rg.GET("/queue", h.QueueState)
	rg.GET("/vendors", h.ListRegistry)
}

// RegisterAdminRoutes mounts admin-only rotation routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/reset", h.Reset)
}

func (h *Handler) AssignLead(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	var req transport.AssignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest).WithCode(service.CodeInvalidInput))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation("validation failed").WithCode(service.CodeInvalidInput).WithDetails(err.Error()))
		return
	}

	result, err := h.svc.AssignLead(c.Request.Context(), tenantID, req.LeadID, req.Origin)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if result.AlreadyAssigned {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, ToAssignmentResponse(result))
}

func (h *Handler) Simulate(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	result, err := h.svc.SimulateNext(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.SimulationResponse{
		Vendor:               toVendorResponse(result.Vendor),
		Pipeline:             transport.PipelineResponse{ID: result.Pipeline.ID, Name: result.Pipeline.Name},
		Stage:                transport.StageResponse{ID: result.Stage.ID, Name: result.Stage.Name, Position: result.Stage.Position},
		QueuePosition:        result.QueuePosition,
		TotalEligibleVendors: result.TotalEligibleVendors,
		Advisory:             transport.SimulationAdvisory,
	})
}

func (h *Handler) QueueState(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	qs, err := h.svc.GetQueueState(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.QueueStateResponse{TotalEligible: qs.TotalEligible, UpdatedAt: qs.UpdatedAt}
	if qs.LastVendor != nil {
		v := toVendorResponse(*qs.LastVendor)
		resp.LastVendor = &v
	}
	if qs.NextVendor != nil {
		v := toVendorResponse(*qs.NextVendor)
		resp.NextVendor = &v
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ListRegistry(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	preview, err := h.svc.ListRegistry(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.RegistryResponse{
		Vendors:    make([]transport.RegistryEntryResponse, 0, len(preview.Vendors)),
		TotalSlots: preview.TotalSlots,
	}
	for _, e := range preview.Vendors {
		resp.Vendors = append(resp.Vendors, transport.RegistryEntryResponse{
			Vendor:        toVendorResponse(e.Vendor),
			QueuePosition: e.QueuePosition,
			Slots:         e.Slots,
			IsNext:        e.IsNext,
			IsLast:        e.IsLast,
		})
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Reset(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	if err := h.svc.ResetQueue(c.Request.Context(), tenantID, httpkit.GetIdentity(c).UserID()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "reset"})
}

// ToAssignmentResponse converts a service result to its JSON form.
func ToAssignmentResponse(r service.AssignmentResult) transport.AssignmentResponse {
	return transport.AssignmentResponse{
		LeadID:               r.LeadID,
		Vendor:               toVendorResponse(r.Vendor),
		Pipeline:             transport.PipelineResponse{ID: r.Pipeline.ID, Name: r.Pipeline.Name},
		Stage:                transport.StageResponse{ID: r.Stage.ID, Name: r.Stage.Name, Position: r.Stage.Position},
		QueuePosition:        r.QueuePosition,
		TotalEligibleVendors: r.TotalEligibleVendors,
		EventID:              r.EventID,
		AssignedAt:           r.AssignedAt,
		Origin:               r.Origin,
		AlreadyAssigned:      r.AlreadyAssigned,
	}
}

func toVendorResponse(v domain.Vendor) transport.VendorResponse {
	return transport.VendorResponse{
		ID:                 v.ID,
		DisplayName:        v.DisplayName,
		Order:              v.Order,
		Weight:             v.EffectiveWeight(),
		PipelineOverrideID: v.PipelineOverrideID,
	}
}
