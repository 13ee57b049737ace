package exports

import (
	"context"
	"time"

	rotationrepo "lead_rotation_backend/internal/rotation/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one exported assignment with display names resolved. Names are
// empty when the vendor or catalog row was deleted after the assignment.
type Row struct {
	EventID      uuid.UUID
	LeadID       uuid.UUID
	VendorID     uuid.UUID
	VendorName   string
	PipelineID   uuid.UUID
	PipelineName string
	StageID      uuid.UUID
	StageName    string
	Origin       *string
	AssignedAt   time.Time
}

// Reader lists assignments in [from, to), oldest first, at most limit rows.
type Reader interface {
	ListAssignments(ctx context.Context, tenantID uuid.UUID, from, to time.Time, limit int) ([]Row, error)
}

// Repository reads assignment history from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListAssignments(ctx context.Context, tenantID uuid.UUID, from, to time.Time, limit int) ([]Row, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.lead_id, e.vendor_id, COALESCE(v.display_name, ''),
			e.pipeline_id, COALESCE(p.name, ''), e.stage_id, COALESCE(s.name, ''),
			e.origin, e.created_at
		FROM assignment_events e
		LEFT JOIN rotation_vendors v ON v.id = e.vendor_id AND v.tenant_id = e.tenant_id
		LEFT JOIN rotation_pipelines p ON p.id = e.pipeline_id AND p.tenant_id = e.tenant_id
		LEFT JOIN rotation_stages s ON s.id = e.stage_id AND s.tenant_id = e.tenant_id
		WHERE e.tenant_id = $1 AND e.created_at >= $2 AND e.created_at < $3
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var out Row
		err := row.Scan(&out.EventID, &out.LeadID, &out.VendorID, &out.VendorName,
			&out.PipelineID, &out.PipelineName, &out.StageID, &out.StageName,
			&out.Origin, &out.AssignedAt)
		return out, err
	})
}

// MemorySource is what MemoryReader needs from the in-memory rotation store.
type MemorySource interface {
	rotationrepo.EventSource
	rotationrepo.Store
}

// MemoryReader serves exports from the in-memory rotation store.
type MemoryReader struct {
	source MemorySource
}

func NewMemoryReader(source MemorySource) *MemoryReader {
	return &MemoryReader{source: source}
}

func (m *MemoryReader) ListAssignments(ctx context.Context, tenantID uuid.UUID, from, to time.Time, limit int) ([]Row, error) {
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

	out := make([]Row, 0)
	err = m.source.View(ctx, tenantID, func(r rotationrepo.Reader) error {
		for _, e := range events {
			if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
				continue
			}
			if len(out) == limit {
				break
			}
			row := Row{
				EventID:    e.ID,
				LeadID:     e.LeadID,
				VendorID:   e.VendorID,
				VendorName: names[e.VendorID],
				PipelineID: e.PipelineID,
				StageID:    e.StageID,
				Origin:     e.Origin,
				AssignedAt: e.CreatedAt,
			}
			if p, err := r.GetPipeline(ctx, e.PipelineID); err == nil {
				row.PipelineName = p.Name
			}
			if s, err := r.GetStage(ctx, e.StageID); err == nil {
				row.StageName = s.Name
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}
