// Package events defines the rotation domain events. Modules import the bus
// types from here so they never reach into platform/events directly.
package events

import (
	"lead_rotation_backend/platform/events"
	"lead_rotation_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus used by cmd/api and cmd/scheduler.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Rotation Domain Events
// =============================================================================

// LeadAssigned is published after an assignment commits. Replays of an
// existing assignment do not publish it again.
type LeadAssigned struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	LeadID        uuid.UUID `json:"leadId"`
	AssignmentID  uuid.UUID `json:"assignmentId"`
	VendorID      uuid.UUID `json:"vendorId"`
	PipelineID    uuid.UUID `json:"pipelineId"`
	StageID       uuid.UUID `json:"stageId"`
	Origin        *string   `json:"origin,omitempty"`
	QueuePosition int       `json:"queuePosition"`
}

func (e LeadAssigned) EventName() string     { return "rotation.lead.assigned" }
func (e LeadAssigned) EventTenant() uuid.UUID { return e.TenantID }

// RotationReset is published when an admin clears a tenant's cursor.
type RotationReset struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	ActorID  uuid.UUID `json:"actorId"`
}

func (e RotationReset) EventName() string     { return "rotation.queue.reset" }
func (e RotationReset) EventTenant() uuid.UUID { return e.TenantID }

var (
	_ events.TenantScoped = LeadAssigned{}
	_ events.TenantScoped = RotationReset{}
)
