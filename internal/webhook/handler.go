package webhook

import (
	"net/http"
	"time"

	rotationhandler "lead_rotation_backend/internal/rotation/handler"
	rotationservice "lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/httpkit"
	"lead_rotation_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidKeyID   = "invalid key ID"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// ---- Lead intake (public, API-key authenticated) ----

// LeadIntakeRequest is the body posted by an external lead source.
type LeadIntakeRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
	Origin *string   `json:"origin" validate:"omitempty,max=256,origintag"`
	Async  bool      `json:"async"`
}

// LeadQueuedResponse is returned when the assignment runs in the worker.
type LeadQueuedResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	TaskID string    `json:"taskId"`
	Status string    `json:"status"`
}

// HandleLeadIntake assigns an inbound lead.
// POST /api/v1/webhook/leads
// Authenticated via X-Webhook-API-Key header (set by middleware).
func (h *Handler) HandleLeadIntake(c *gin.Context) {
	tenantID, ok := getWebhookTenantID(c)
	if !ok {
		return
	}

	var req LeadIntakeRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	keyID, _ := c.Get(ctxKeyID)
	keyName, _ := c.Get(ctxKeyName)
	in := Intake{
		TenantID: tenantID,
		LeadID:   req.LeadID,
		Origin:   req.Origin,
		Async:    req.Async,
	}
	in.KeyID, _ = keyID.(uuid.UUID)
	in.KeyName, _ = keyName.(string)

	result, err := h.service.AcceptLead(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}

	if result.Assignment == nil {
		c.JSON(http.StatusAccepted, LeadQueuedResponse{LeadID: req.LeadID, TaskID: result.TaskID, Status: "queued"})
		return
	}
	status := http.StatusCreated
	if result.Assignment.AlreadyAssigned {
		status = http.StatusOK
	}
	c.JSON(status, rotationhandler.ToAssignmentResponse(*result.Assignment))
}

// ---- Admin API Key Management (JWT authenticated) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=200"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	KeyPrefix      string    `json:"keyPrefix"`
	AllowedDomains []string  `json:"allowedDomains"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a new webhook API key.
// POST /api/v1/admin/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	key, plaintext, err := h.service.CreateAPIKey(c.Request.Context(), tenantID, req.Name, req.AllowedDomains)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists all API keys for the tenant.
// GET /api/v1/admin/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	keys, err := h.service.ListAPIKeys(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, resp)
}

// HandleRevokeAPIKey revokes a webhook API key.
// DELETE /api/v1/admin/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidKeyID))
		return
	}

	if httpkit.HandleError(c, h.service.RevokeAPIKey(c.Request.Context(), tenantID, keyID)) {
		return
	}
	httpkit.OK(c, gin.H{"message": "API key revoked"})
}

// ---- Helpers ----

func toAPIKeyResponse(k APIKey) APIKeyResponse {
	domains := k.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return APIKeyResponse{
		ID:             k.ID,
		Name:           k.Name,
		KeyPrefix:      k.KeyPrefix,
		AllowedDomains: domains,
		IsActive:       k.IsActive,
		CreatedAt:      k.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidRequest).WithCode(rotationservice.CodeInvalidInput))
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(errValidation).WithCode(rotationservice.CodeInvalidInput).WithDetails(err.Error()))
		return false
	}
	return true
}

func getWebhookTenantID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(ctxTenantID)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook tenant context"})
		return uuid.Nil, false
	}
	tenantID, ok := raw.(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook tenant context"})
		return uuid.Nil, false
	}
	return tenantID, true
}
