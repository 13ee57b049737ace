package repository

import (
	"context"
	"errors"

	"lead_rotation_backend/internal/rotation/domain"

	"github.com/google/uuid"
)

var (
	// ErrTenantNotFound is returned when the tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrNotFound is returned when a vendor, pipeline or stage lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a storage conflict that is safe to retry: a
	// serialization failure, a deadlock or a racing duplicate event.
	ErrConflict = errors.New("rotation storage conflict")
	// ErrLockTimeout is returned when the rotation state lock was not granted in time.
	ErrLockTimeout = errors.New("rotation state lock timeout")
)

// =====================================
// Segregated Interfaces
// =====================================

// Reader provides read-only access to one tenant's rotation data.
type Reader interface {
	// ListParticipating returns participating vendors in rotation order.
	// Fails with ErrTenantNotFound for unknown tenants.
	ListParticipating(ctx context.Context) ([]domain.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (domain.Vendor, error)
	// LoadCatalog returns the tenant's active pipelines and their stages.
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
	GetPipeline(ctx context.Context, id uuid.UUID) (domain.Pipeline, error)
	GetStage(ctx context.Context, id uuid.UUID) (domain.Stage, error)
	GetState(ctx context.Context) (domain.RotationState, error)
	// FindEventByLead returns the assignment of leadID, if any.
	FindEventByLead(ctx context.Context, leadID uuid.UUID) (domain.AssignmentEvent, bool, error)
}

// Tx is a tenant-scoped read-write unit of work.
type Tx interface {
	Reader
	// LockState takes the exclusive rotation lock of the tenant and returns
	// the current state.
	LockState(ctx context.Context) (domain.RotationState, error)
	SaveState(ctx context.Context, state domain.RotationState) error
	// AppendEvent inserts an event. A second event for the same lead fails
	// with ErrConflict.
	AppendEvent(ctx context.Context, event domain.AssignmentEvent) error
}

// Store runs tenant-scoped units of work.
type Store interface {
	// View runs fn against a consistent read-only snapshot without locking.
	View(ctx context.Context, tenantID uuid.UUID, fn func(Reader) error) error
	// Update runs fn in one transaction. Nothing fn wrote survives if fn
	// returns an error or the commit fails.
	Update(ctx context.Context, tenantID uuid.UUID, fn func(Tx) error) error
}

// EventSource exposes the assignment log for statistics.
type EventSource interface {
	ListEvents(ctx context.Context, tenantID uuid.UUID) ([]domain.AssignmentEvent, error)
	ListVendors(ctx context.Context, tenantID uuid.UUID) ([]domain.Vendor, error)
}
