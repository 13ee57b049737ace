// Package domain holds the rotation entities and the pure rotation algorithm.
// Nothing here touches storage or the clock.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Vendor is a salesperson as seen by the rotation.
type Vendor struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	DisplayName        string
	Participates       bool
	Order              *int
	Weight             int
	PipelineOverrideID *uuid.UUID
}

// EffectiveWeight clamps the stored weight to at least one slot.
func (v Vendor) EffectiveWeight() int {
	if v.Weight < 1 {
		return 1
	}
	return v.Weight
}

// RotationState is the per-tenant cursor.
type RotationState struct {
	TenantID             uuid.UUID
	LastAssignedVendorID *uuid.UUID
	// LastRunPosition is the 1-based occurrence of the last vendor inside
	// the expanded sequence. Zero means unknown and is treated as the first.
	LastRunPosition int
	UpdatedAt       time.Time
}

// AssignmentEvent records one committed assignment. Events are never updated.
type AssignmentEvent struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	LeadID     uuid.UUID
	VendorID   uuid.UUID
	PipelineID uuid.UUID
	StageID    uuid.UUID
	Origin     *string
	CreatedAt  time.Time
}

// Pipeline is a sales pipeline from the tenant's catalog.
type Pipeline struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Name                string
	ResponsibleVendorID *uuid.UUID
	Active              bool
}

// Stage is a column inside a pipeline.
type Stage struct {
	ID         uuid.UUID
	PipelineID uuid.UUID
	Name       string
	IsInitial  bool
	Position   int
}

// SortVendors orders vendors by Order ascending with nulls last, then by ID.
func SortVendors(vendors []Vendor) {
	sort.SliceStable(vendors, func(i, j int) bool {
		a, b := vendors[i], vendors[j]
		switch {
		case a.Order != nil && b.Order != nil && *a.Order != *b.Order:
			return *a.Order < *b.Order
		case a.Order != nil && b.Order == nil:
			return true
		case a.Order == nil && b.Order != nil:
			return false
		}
		return compareUUID(a.ID, b.ID) < 0
	})
}

// FilterParticipating returns the participating vendors in rotation order.
func FilterParticipating(vendors []Vendor) []Vendor {
	out := make([]Vendor, 0, len(vendors))
	for _, v := range vendors {
		if v.Participates {
			out = append(out, v)
		}
	}
	SortVendors(out)
	return out
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
