package repository

import (
	"context"
	"sort"
	"time"

	rotationrepo "lead_rotation_backend/internal/rotation/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows the events a summary counts. A non-nil Origin pointing at
// an empty string selects events without an origin.
type Filter struct {
	VendorID   *uuid.UUID
	PipelineID *uuid.UUID
	Origin     *string
	From       *time.Time
	To         *time.Time
}

// Bounds are the inclusive lower edges of the rolling windows.
type Bounds struct {
	DayStart   time.Time
	WeekStart  time.Time
	MonthStart time.Time
}

// Counts holds one row of window counts.
type Counts struct {
	Today     int64 `json:"today"`
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
	AllTime   int64 `json:"allTime"`
}

// Add accumulates another row.
func (c *Counts) Add(o Counts) {
	c.Today += o.Today
	c.ThisWeek += o.ThisWeek
	c.ThisMonth += o.ThisMonth
	c.AllTime += o.AllTime
}

type VendorCounts struct {
	VendorID    uuid.UUID `json:"vendorId"`
	DisplayName string    `json:"displayName"`
	Counts      Counts    `json:"counts"`
}

type OriginCounts struct {
	Origin string `json:"origin"`
	Counts Counts `json:"counts"`
}

// Reader aggregates the assignment log.
type Reader interface {
	CountByVendor(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]VendorCounts, error)
	CountByOrigin(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]OriginCounts, error)
}

// Repository aggregates in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const windowColumns = `
	COUNT(*) FILTER (WHERE e.created_at >= $2),
	COUNT(*) FILTER (WHERE e.created_at >= $3),
	COUNT(*) FILTER (WHERE e.created_at >= $4),
	COUNT(*)`

const filterClause = `
	WHERE e.tenant_id = $1
	  AND ($5::uuid IS NULL OR e.vendor_id = $5)
	  AND ($6::uuid IS NULL OR e.pipeline_id = $6)
	  AND (NOT $7::boolean OR e.origin IS NOT DISTINCT FROM $8::text)
	  AND ($9::timestamptz IS NULL OR e.created_at >= $9)
	  AND ($10::timestamptz IS NULL OR e.created_at < $10)`

func queryArgs(tenantID uuid.UUID, f Filter, b Bounds) []any {
	var origin *string
	if f.Origin != nil && *f.Origin != "" {
		origin = f.Origin
	}
	return []any{tenantID, b.DayStart, b.WeekStart, b.MonthStart, f.VendorID, f.PipelineID, f.Origin != nil, origin, f.From, f.To}
}

func (r *Repository) CountByVendor(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]VendorCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.vendor_id, COALESCE(v.display_name, ''),`+windowColumns+`
		FROM assignment_events e
		LEFT JOIN rotation_vendors v ON v.id = e.vendor_id`+filterClause+`
		GROUP BY e.vendor_id, v.display_name
		ORDER BY COUNT(*) DESC, e.vendor_id ASC
	`, queryArgs(tenantID, f, b)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VendorCounts, error) {
		var vc VendorCounts
		err := row.Scan(&vc.VendorID, &vc.DisplayName, &vc.Counts.Today, &vc.Counts.ThisWeek, &vc.Counts.ThisMonth, &vc.Counts.AllTime)
		return vc, err
	})
}

func (r *Repository) CountByOrigin(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]OriginCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(e.origin, ''),`+windowColumns+`
		FROM assignment_events e`+filterClause+`
		GROUP BY COALESCE(e.origin, '')
		ORDER BY COUNT(*) DESC, COALESCE(e.origin, '') ASC
	`, queryArgs(tenantID, f, b)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OriginCounts, error) {
		var oc OriginCounts
		err := row.Scan(&oc.Origin, &oc.Counts.Today, &oc.Counts.ThisWeek, &oc.Counts.ThisMonth, &oc.Counts.AllTime)
		return oc, err
	})
}

// MemoryReader aggregates over an in-process event source.
type MemoryReader struct {
	source rotationrepo.EventSource
}

func NewMemoryReader(source rotationrepo.EventSource) *MemoryReader {
	return &MemoryReader{source: source}
}

func (m *MemoryReader) CountByVendor(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]VendorCounts, error) {
	events, err := m.source.ListEvents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	vendors, err := m.source.ListVendors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(vendors))
	for _, v := range vendors {
		names[v.ID] = v.DisplayName
	}

	byVendor := make(map[uuid.UUID]*VendorCounts)
	for _, e := range events {
		if !matches(f, e.VendorID, e.PipelineID, e.Origin, e.CreatedAt) {
			continue
		}
		vc, ok := byVendor[e.VendorID]
		if !ok {
			vc = &VendorCounts{VendorID: e.VendorID, DisplayName: names[e.VendorID]}
			byVendor[e.VendorID] = vc
		}
		vc.Counts.Add(windowRow(e.CreatedAt, b))
	}

	out := make([]VendorCounts, 0, len(byVendor))
	for _, vc := range byVendor {
		out = append(out, *vc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Counts.AllTime != out[j].Counts.AllTime {
			return out[i].Counts.AllTime > out[j].Counts.AllTime
		}
		return out[i].VendorID.String() < out[j].VendorID.String()
	})
	return out, nil
}

func (m *MemoryReader) CountByOrigin(ctx context.Context, tenantID uuid.UUID, f Filter, b Bounds) ([]OriginCounts, error) {
	events, err := m.source.ListEvents(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byOrigin := make(map[string]*OriginCounts)
	for _, e := range events {
		if !matches(f, e.VendorID, e.PipelineID, e.Origin, e.CreatedAt) {
			continue
		}
		key := ""
		if e.Origin != nil {
			key = *e.Origin
		}
		oc, ok := byOrigin[key]
		if !ok {
			oc = &OriginCounts{Origin: key}
			byOrigin[key] = oc
		}
		oc.Counts.Add(windowRow(e.CreatedAt, b))
	}

	out := make([]OriginCounts, 0, len(byOrigin))
	for _, oc := range byOrigin {
		out = append(out, *oc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Counts.AllTime != out[j].Counts.AllTime {
			return out[i].Counts.AllTime > out[j].Counts.AllTime
		}
		return out[i].Origin < out[j].Origin
	})
	return out, nil
}

func matches(f Filter, vendorID, pipelineID uuid.UUID, origin *string, at time.Time) bool {
	if f.VendorID != nil && *f.VendorID != vendorID {
		return false
	}
	if f.PipelineID != nil && *f.PipelineID != pipelineID {
		return false
	}
	if f.Origin != nil {
		if *f.Origin == "" && origin != nil {
			return false
		}
		if *f.Origin != "" && (origin == nil || *origin != *f.Origin) {
			return false
		}
	}
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && !at.Before(*f.To) {
		return false
	}
	return true
}

func windowRow(at time.Time, b Bounds) Counts {
	c := Counts{AllTime: 1}
	if !at.Before(b.DayStart) {
		c.Today = 1
	}
	if !at.Before(b.WeekStart) {
		c.ThisWeek = 1
	}
	if !at.Before(b.MonthStart) {
		c.ThisMonth = 1
	}
	return c
}

var (
	_ Reader = (*Repository)(nil)
	_ Reader = (*MemoryReader)(nil)
)
