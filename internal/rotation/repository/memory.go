package repository

import (
	"context"
	"fmt"
	"sync"

	"lead_rotation_backend/internal/rotation/domain"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Update clones the tenant, runs the
// unit of work on the clone and swaps it in only on success. Writers of one
// tenant are serialized by a semaphore that honours context cancellation.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenantData
	locks   map[uuid.UUID]chan struct{}

	// BeforeCommit runs after fn succeeds and before the swap. Returning an
	// error aborts the unit of work.
	BeforeCommit func(tenantID uuid.UUID) error
}

type tenantData struct {
	vendors   []domain.Vendor
	pipelines []domain.Pipeline
	stages    []domain.Stage
	state     domain.RotationState
	events    []domain.AssignmentEvent
}

func (t *tenantData) clone() *tenantData {
	return &tenantData{
		vendors:   append([]domain.Vendor(nil), t.vendors...),
		pipelines: append([]domain.Pipeline(nil), t.pipelines...),
		stages:    append([]domain.Stage(nil), t.stages...),
		state:     t.state,
		events:    append([]domain.AssignmentEvent(nil), t.events...),
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[uuid.UUID]*tenantData),
		locks:   make(map[uuid.UUID]chan struct{}),
	}
}

// AddTenant registers a tenant with no vendors.
func (m *MemoryStore) AddTenant(tenantID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenantID]; !ok {
		m.tenants[tenantID] = &tenantData{state: domain.RotationState{TenantID: tenantID}}
	}
}

// PutVendor inserts or replaces a vendor.
func (m *MemoryStore) PutVendor(v domain.Vendor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenantLocked(v.TenantID)
	for i := range t.vendors {
		if t.vendors[i].ID == v.ID {
			t.vendors[i] = v
			return
		}
	}
	t.vendors = append(t.vendors, v)
}

// PutPipeline inserts or replaces a pipeline.
func (m *MemoryStore) PutPipeline(p domain.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenantLocked(p.TenantID)
	for i := range t.pipelines {
		if t.pipelines[i].ID == p.ID {
			t.pipelines[i] = p
			return
		}
	}
	t.pipelines = append(t.pipelines, p)
}

// PutStage inserts or replaces a stage of a pipeline owned by tenantID.
func (m *MemoryStore) PutStage(tenantID uuid.UUID, s domain.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenantLocked(tenantID)
	for i := range t.stages {
		if t.stages[i].ID == s.ID {
			t.stages[i] = s
			return
		}
	}
	t.stages = append(t.stages, s)
}

func (m *MemoryStore) tenantLocked(tenantID uuid.UUID) *tenantData {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantData{state: domain.RotationState{TenantID: tenantID}}
		m.tenants[tenantID] = t
	}
	return t
}

// semaphore returns the writer semaphore of a known tenant. Unknown tenants
// get none so the lock map only grows with AddTenant and the Put helpers.
func (m *MemoryStore) semaphore(tenantID uuid.UUID) (chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.tenants[tenantID]; !known {
		return nil, false
	}
	sem, ok := m.locks[tenantID]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[tenantID] = sem
	}
	return sem, true
}

func (m *MemoryStore) snapshot(tenantID uuid.UUID) (*tenantData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// View implements Store.
func (m *MemoryStore) View(ctx context.Context, tenantID uuid.UUID, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, _ := m.snapshot(tenantID)
	return fn(&memScope{tenantID: tenantID, data: data})
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, tenantID uuid.UUID, fn func(Tx) error) error {
	sem, ok := m.semaphore(tenantID)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Every write on an unknown tenant fails, so there is nothing to serialize.
		return fn(&memScope{tenantID: tenantID})
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}
	defer func() { <-sem }()

	data, _ := m.snapshot(tenantID)
	scope := &memScope{tenantID: tenantID, data: data}
	if err := fn(scope); err != nil {
		return err
	}
	if m.BeforeCommit != nil {
		if err := m.BeforeCommit(tenantID); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	current.state = data.state
	current.events = data.events
	return nil
}

// ListEvents implements EventSource.
func (m *MemoryStore) ListEvents(_ context.Context, tenantID uuid.UUID) ([]domain.AssignmentEvent, error) {
	data, ok := m.snapshot(tenantID)
	if !ok {
		return nil, ErrTenantNotFound
	}
	return data.events, nil
}

// ListVendors implements EventSource.
func (m *MemoryStore) ListVendors(_ context.Context, tenantID uuid.UUID) ([]domain.Vendor, error) {
	data, ok := m.snapshot(tenantID)
	if !ok {
		return nil, ErrTenantNotFound
	}
	vendors := data.vendors
	domain.SortVendors(vendors)
	return vendors, nil
}

// memScope implements Tx over a private clone of one tenant.
type memScope struct {
	tenantID uuid.UUID
	data     *tenantData
}

func (s *memScope) ListParticipating(context.Context) ([]domain.Vendor, error) {
	if s.data == nil {
		return nil, ErrTenantNotFound
	}
	return domain.FilterParticipating(s.data.vendors), nil
}

func (s *memScope) GetVendor(_ context.Context, id uuid.UUID) (domain.Vendor, error) {
	if s.data == nil {
		return domain.Vendor{}, ErrTenantNotFound
	}
	for _, v := range s.data.vendors {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.Vendor{}, ErrNotFound
}

func (s *memScope) LoadCatalog(context.Context) (domain.Catalog, error) {
	if s.data == nil {
		return domain.Catalog{}, ErrTenantNotFound
	}
	var catalog domain.Catalog
	active := make(map[uuid.UUID]bool)
	for _, p := range s.data.pipelines {
		if p.Active {
			catalog.Pipelines = append(catalog.Pipelines, p)
			active[p.ID] = true
		}
	}
	for _, st := range s.data.stages {
		if active[st.PipelineID] {
			catalog.Stages = append(catalog.Stages, st)
		}
	}
	return catalog, nil
}

func (s *memScope) GetPipeline(_ context.Context, id uuid.UUID) (domain.Pipeline, error) {
	if s.data == nil {
		return domain.Pipeline{}, ErrTenantNotFound
	}
	for _, p := range s.data.pipelines {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Pipeline{}, ErrNotFound
}

func (s *memScope) GetStage(_ context.Context, id uuid.UUID) (domain.Stage, error) {
	if s.data == nil {
		return domain.Stage{}, ErrTenantNotFound
	}
	for _, st := range s.data.stages {
		if st.ID == id {
			return st, nil
		}
	}
	return domain.Stage{}, ErrNotFound
}

func (s *memScope) GetState(context.Context) (domain.RotationState, error) {
	if s.data == nil {
		return domain.RotationState{TenantID: s.tenantID}, nil
	}
	return s.data.state, nil
}

func (s *memScope) FindEventByLead(_ context.Context, leadID uuid.UUID) (domain.AssignmentEvent, bool, error) {
	if s.data == nil {
		return domain.AssignmentEvent{}, false, nil
	}
	for _, e := range s.data.events {
		if e.LeadID == leadID {
			return e, true, nil
		}
	}
	return domain.AssignmentEvent{}, false, nil
}

func (s *memScope) LockState(context.Context) (domain.RotationState, error) {
	if s.data == nil {
		return domain.RotationState{}, ErrTenantNotFound
	}
	return s.data.state, nil
}

func (s *memScope) SaveState(_ context.Context, state domain.RotationState) error {
	if s.data == nil {
		return ErrTenantNotFound
	}
	state.TenantID = s.tenantID
	s.data.state = state
	return nil
}

func (s *memScope) AppendEvent(_ context.Context, e domain.AssignmentEvent) error {
	if s.data == nil {
		return ErrTenantNotFound
	}
	for _, existing := range s.data.events {
		if existing.LeadID == e.LeadID {
			return fmt.Errorf("%w: lead %s already assigned", ErrConflict, e.LeadID)
		}
	}
	e.TenantID = s.tenantID
	s.data.events = append(s.data.events, e)
	return nil
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ EventSource = (*MemoryStore)(nil)
	_ Tx          = (*memScope)(nil)
)
