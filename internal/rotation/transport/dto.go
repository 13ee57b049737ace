package transport

import (
	"time"

	"github.com/google/uuid"
)

// SimulationAdvisory accompanies every simulation response.
const SimulationAdvisory = "Preview only. Another assignment may commit before yours, so the actual vendor can differ."

// Request DTOs
type AssignLeadRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
	Origin *string   `json:"origin,omitempty" validate:"omitempty,max=256,origintag"`
}

// Response DTOs
type VendorResponse struct {
	ID                 uuid.UUID  `json:"id"`
	DisplayName        string     `json:"displayName"`
	Order              *int       `json:"order,omitempty"`
	Weight             int        `json:"weight"`
	PipelineOverrideID *uuid.UUID `json:"pipelineOverrideId,omitempty"`
}

type PipelineResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type StageResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

type AssignmentResponse struct {
	LeadID               uuid.UUID        `json:"leadId"`
	Vendor               VendorResponse   `json:"vendor"`
	Pipeline             PipelineResponse `json:"pipeline"`
	Stage                StageResponse    `json:"stage"`
	QueuePosition        int              `json:"queuePosition"`
	TotalEligibleVendors int              `json:"totalEligibleVendors"`
	EventID              uuid.UUID        `json:"eventId"`
	AssignedAt           time.Time        `json:"assignedAt"`
	Origin               *string          `json:"origin,omitempty"`
	AlreadyAssigned      bool             `json:"alreadyAssigned"`
}

type SimulationResponse struct {
	Vendor               VendorResponse   `json:"vendor"`
	Pipeline             PipelineResponse `json:"pipeline"`
	Stage                StageResponse    `json:"stage"`
	QueuePosition        int              `json:"queuePosition"`
	TotalEligibleVendors int              `json:"totalEligibleVendors"`
	Advisory             string           `json:"advisory"`
}

type QueueStateResponse struct {
	LastVendor    *VendorResponse `json:"lastVendor"`
	NextVendor    *VendorResponse `json:"nextVendor"`
	TotalEligible int             `json:"totalEligible"`
	UpdatedAt     *time.Time      `json:"updatedAt"`
}

type RegistryEntryResponse struct {
	Vendor        VendorResponse `json:"vendor"`
	QueuePosition int            `json:"queuePosition"`
	Slots         int            `json:"slots"`
	IsNext        bool           `json:"isNext"`
	IsLast        bool           `json:"isLast"`
}

type RegistryResponse struct {
	Vendors    []RegistryEntryResponse `json:"vendors"`
	TotalSlots int                     `json:"totalSlots"`
}
