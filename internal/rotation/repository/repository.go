package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres Store.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New creates a Repository. lockTimeout bounds the wait for the rotation
// state row lock inside Update.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// View implements Store.
func (r *Repository) View(ctx context.Context, tenantID uuid.UUID, fn func(Reader) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgScope{q: tx, tenantID: tenantID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update implements Store.
func (r *Repository) Update(ctx context.Context, tenantID uuid.UUID, fn func(Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return classify(err)
		}
	}

	if err := fn(&pgScope{q: tx, tenantID: tenantID}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

// ListEvents implements EventSource.
func (r *Repository) ListEvents(ctx context.Context, tenantID uuid.UUID) ([]domain.AssignmentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, lead_id, vendor_id, pipeline_id, stage_id, origin, created_at
		FROM assignment_events
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AssignmentEvent, 0)
	for rows.Next() {
		var e domain.AssignmentEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.LeadID, &e.VendorID, &e.PipelineID, &e.StageID, &e.Origin, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListVendors implements EventSource. It returns every vendor of the tenant.
func (r *Repository) ListVendors(ctx context.Context, tenantID uuid.UUID) ([]domain.Vendor, error) {
	return scanVendors(ctx, r.pool, `
		SELECT id, tenant_id, display_name, participates, rotation_order, weight, pipeline_override_id
		FROM rotation_vendors
		WHERE tenant_id = $1
		ORDER BY rotation_order ASC NULLS LAST, id ASC
	`, tenantID)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsLockTimeout(err):
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	case db.IsTransientTxError(err), db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

// pgScope implements Tx over a pgx transaction bound to one tenant.
type pgScope struct {
	q        pgx.Tx
	tenantID uuid.UUID
}

func (s *pgScope) ListParticipating(ctx context.Context) ([]domain.Vendor, error) {
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, s.tenantID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTenantNotFound
	}

	return scanVendors(ctx, s.q, `
		SELECT id, tenant_id, display_name, participates, rotation_order, weight, pipeline_override_id
		FROM rotation_vendors
		WHERE tenant_id = $1 AND participates
		ORDER BY rotation_order ASC NULLS LAST, id ASC
	`, s.tenantID)
}

func (s *pgScope) GetVendor(ctx context.Context, id uuid.UUID) (domain.Vendor, error) {
	var v domain.Vendor
	err := s.q.QueryRow(ctx, `
		SELECT id, tenant_id, display_name, participates, rotation_order, weight, pipeline_override_id
		FROM rotation_vendors
		WHERE tenant_id = $1 AND id = $2
	`, s.tenantID, id).Scan(&v.ID, &v.TenantID, &v.DisplayName, &v.Participates, &v.Order, &v.Weight, &v.PipelineOverrideID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vendor{}, ErrNotFound
	}
	return v, err
}

func (s *pgScope) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, tenant_id, name, responsible_vendor_id, active
		FROM rotation_pipelines
		WHERE tenant_id = $1 AND active
	`, s.tenantID)
	if err != nil {
		return domain.Catalog{}, err
	}
	pipelines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Pipeline, error) {
		var p domain.Pipeline
		err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.ResponsibleVendorID, &p.Active)
		return p, err
	})
	if err != nil {
		return domain.Catalog{}, err
	}

	rows, err = s.q.Query(ctx, `
		SELECT s.id, s.pipeline_id, s.name, s.is_initial, s.position
		FROM rotation_stages s
		JOIN rotation_pipelines p ON p.id = s.pipeline_id
		WHERE s.tenant_id = $1 AND p.active
	`, s.tenantID)
	if err != nil {
		return domain.Catalog{}, err
	}
	stages, err := pgx.CollectRows(rows, scanStage)
	if err != nil {
		return domain.Catalog{}, err
	}

	return domain.Catalog{Pipelines: pipelines, Stages: stages}, nil
}

func (s *pgScope) GetPipeline(ctx context.Context, id uuid.UUID) (domain.Pipeline, error) {
	var p domain.Pipeline
	err := s.q.QueryRow(ctx, `
		SELECT id, tenant_id, name, responsible_vendor_id, active
		FROM rotation_pipelines
		WHERE tenant_id = $1 AND id = $2
	`, s.tenantID, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.ResponsibleVendorID, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pipeline{}, ErrNotFound
	}
	return p, err
}

func (s *pgScope) GetStage(ctx context.Context, id uuid.UUID) (domain.Stage, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, pipeline_id, name, is_initial, position
		FROM rotation_stages
		WHERE tenant_id = $1 AND id = $2
	`, s.tenantID, id)
	if err != nil {
		return domain.Stage{}, err
	}
	stage, err := pgx.CollectExactlyOneRow(rows, scanStage)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stage{}, ErrNotFound
	}
	return stage, err
}

func (s *pgScope) GetState(ctx context.Context) (domain.RotationState, error) {
	state := domain.RotationState{TenantID: s.tenantID}
	err := s.q.QueryRow(ctx, `
		SELECT last_assigned_vendor_id, last_run_position, updated_at
		FROM rotation_states
		WHERE tenant_id = $1
	`, s.tenantID).Scan(&state.LastAssignedVendorID, &state.LastRunPosition, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RotationState{TenantID: s.tenantID}, nil
	}
	return state, err
}

func (s *pgScope) FindEventByLead(ctx context.Context, leadID uuid.UUID) (domain.AssignmentEvent, bool, error) {
	var e domain.AssignmentEvent
	err := s.q.QueryRow(ctx, `
		SELECT id, tenant_id, lead_id, vendor_id, pipeline_id, stage_id, origin, created_at
		FROM assignment_events
		WHERE tenant_id = $1 AND lead_id = $2
	`, s.tenantID, leadID).Scan(&e.ID, &e.TenantID, &e.LeadID, &e.VendorID, &e.PipelineID, &e.StageID, &e.Origin, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssignmentEvent{}, false, nil
	}
	if err != nil {
		return domain.AssignmentEvent{}, false, err
	}
	return e, true, nil
}

// LockState creates the state row on first use, then locks it until the
// transaction ends.
func (s *pgScope) LockState(ctx context.Context) (domain.RotationState, error) {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO rotation_states (tenant_id, last_run_position, updated_at)
		SELECT id, 0, now() FROM tenants WHERE id = $1
		ON CONFLICT (tenant_id) DO NOTHING
	`, s.tenantID); err != nil {
		return domain.RotationState{}, err
	}

	state := domain.RotationState{TenantID: s.tenantID}
	err := s.q.QueryRow(ctx, `
		SELECT last_assigned_vendor_id, last_run_position, updated_at
		FROM rotation_states
		WHERE tenant_id = $1
		FOR UPDATE
	`, s.tenantID).Scan(&state.LastAssignedVendorID, &state.LastRunPosition, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RotationState{}, ErrTenantNotFound
	}
	return state, err
}

func (s *pgScope) SaveState(ctx context.Context, state domain.RotationState) error {
	_, err := s.q.Exec(ctx, `
		UPDATE rotation_states
		SET last_assigned_vendor_id = $2, last_run_position = $3, updated_at = $4
		WHERE tenant_id = $1
	`, s.tenantID, state.LastAssignedVendorID, state.LastRunPosition, state.UpdatedAt)
	return err
}

func (s *pgScope) AppendEvent(ctx context.Context, e domain.AssignmentEvent) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO assignment_events (id, tenant_id, lead_id, vendor_id, pipeline_id, stage_id, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, s.tenantID, e.LeadID, e.VendorID, e.PipelineID, e.StageID, e.Origin, e.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: lead %s already assigned", ErrConflict, e.LeadID)
	}
	return err
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanVendors(ctx context.Context, q rowQuerier, sql string, args ...any) ([]domain.Vendor, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Vendor, error) {
		var v domain.Vendor
		err := row.Scan(&v.ID, &v.TenantID, &v.DisplayName, &v.Participates, &v.Order, &v.Weight, &v.PipelineOverrideID)
		return v, err
	})
}

func scanStage(row pgx.CollectableRow) (domain.Stage, error) {
	var st domain.Stage
	err := row.Scan(&st.ID, &st.PipelineID, &st.Name, &st.IsInitial, &st.Position)
	return st, err
}

var (
	_ Store       = (*Repository)(nil)
	_ EventSource = (*Repository)(nil)
	_ Tx          = (*pgScope)(nil)
)
