package service

import (
	"time"

	"lead_rotation_backend/internal/rotation/domain"

	"github.com/google/uuid"
)

// Error codes carried on apperr.Error.Code.
const (
	CodeNoEligibleVendors    = "no_eligible_vendors"
	CodeNoPipelineConfigured = "no_pipeline_configured"
	CodeNoInitialStage       = "no_initial_stage"
	CodeRotationConflict     = "rotation_conflict"
	CodeLockTimeout          = "rotation_lock_timeout"
	CodeInvalidInput         = "invalid_input"
	CodeTenantNotFound       = "tenant_not_found"
)

// AssignmentResult describes where a lead landed, or would land for a
// simulation. Simulations carry a zero EventID and AssignedAt.
type AssignmentResult struct {
	LeadID               uuid.UUID
	Vendor               domain.Vendor
	Pipeline             domain.Pipeline
	Stage                domain.Stage
	QueuePosition        int
	TotalEligibleVendors int
	EventID              uuid.UUID
	AssignedAt           time.Time
	Origin               *string
	AlreadyAssigned      bool
}

// QueueState is the read-only view of a tenant's cursor.
type QueueState struct {
	LastVendor    *domain.Vendor
	NextVendor    *domain.Vendor
	TotalEligible int
	UpdatedAt     *time.Time
}

// RegistryEntry is one participating vendor with its share of the cycle.
type RegistryEntry struct {
	Vendor        domain.Vendor
	QueuePosition int
	Slots         int
	IsNext        bool
	IsLast        bool
}

// RegistryPreview lists the rotation as the next assignment will see it.
type RegistryPreview struct {
	Vendors    []RegistryEntry
	TotalSlots int
}
