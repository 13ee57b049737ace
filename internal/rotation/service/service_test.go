package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lead_rotation_backend/internal/events"
	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/lock"
	"lead_rotation_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRotationConfig struct {
	lockTimeout time.Duration
	attempts    int
}

func (c testRotationConfig) GetRotationLockTimeout() time.Duration {
	if c.lockTimeout == 0 {
		return 5 * time.Second
	}
	return c.lockTimeout
}
func (c testRotationConfig) GetRotationLockTTL() time.Duration        { return 10 * time.Second }
func (c testRotationConfig) GetRotationRetryBaseDelay() time.Duration { return time.Millisecond }
func (c testRotationConfig) GetRotationMaxAttempts() int {
	if c.attempts == 0 {
		return 3
	}
	return c.attempts
}

type fixture struct {
	store    *repository.MemoryStore
	svc      *Service
	bus      *events.InMemoryBus
	tenantID uuid.UUID
	vendors  []domain.Vendor
}

// newFixture seeds one tenant whose vendors each own a pipeline with an
// initial stage. weights are given in rotation order.
func newFixture(t *testing.T, weights ...int) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	tenantID := uuid.New()
	store.AddTenant(tenantID)

	f := &fixture{store: store, tenantID: tenantID}
	for i, w := range weights {
		order := i
		v := domain.Vendor{
			ID:           uuid.New(),
			TenantID:     tenantID,
			DisplayName:  string(rune('A' + i)),
			Participates: true,
			Order:        &order,
			Weight:       w,
		}
		store.PutVendor(v)
		f.vendors = append(f.vendors, v)

		pipeline := domain.Pipeline{ID: uuid.New(), TenantID: tenantID, Name: "Sales " + v.DisplayName, ResponsibleVendorID: &v.ID, Active: true}
		store.PutPipeline(pipeline)
		store.PutStage(tenantID, domain.Stage{ID: uuid.New(), PipelineID: pipeline.ID, Name: "New", IsInitial: true})
	}

	f.bus = events.NewInMemoryBus(logger.Nop())
	f.svc = New(store, nil, f.bus, testRotationConfig{}, logger.Nop())
	return f
}

func (f *fixture) events(t *testing.T) []domain.AssignmentEvent {
	t.Helper()
	evts, err := f.store.ListEvents(context.Background(), f.tenantID)
	require.NoError(t, err)
	return evts
}

func (f *fixture) state(t *testing.T) domain.RotationState {
	t.Helper()
	var state domain.RotationState
	err := f.store.View(context.Background(), f.tenantID, func(r repository.Reader) error {
		var err error
		state, err = r.GetState(context.Background())
		return err
	})
	require.NoError(t, err)
	return state
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err))
}

func TestAssignLeadRotatesFairly(t *testing.T) {
	f := newFixture(t, 1, 1, 1)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		res, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		require.NoError(t, err)
		assert.Equal(t, f.vendors[i%3].ID, res.Vendor.ID, "assignment %d", i+1)
		assert.Equal(t, i%3+1, res.QueuePosition)
		assert.Equal(t, 3, res.TotalEligibleVendors)
		assert.Equal(t, "New", res.Stage.Name)
		assert.False(t, res.AlreadyAssigned)
	}
	assert.Len(t, f.events(t), 6)
}

func TestAssignLeadWeightedExample(t *testing.T) {
	f := newFixture(t, 1, 1, 2)
	ctx := context.Background()

	// Move the cursor to B.
	for i := 0; i < 2; i++ {
		_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		require.NoError(t, err)
	}
	require.Equal(t, f.vendors[1].ID, *f.state(t).LastAssignedVendorID)

	want := []uuid.UUID{f.vendors[2].ID, f.vendors[2].ID, f.vendors[0].ID}
	for i, id := range want {
		res, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		require.NoError(t, err)
		assert.Equal(t, id, res.Vendor.ID, "call %d", i+1)
	}
}

func TestAssignLeadIsIdempotent(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()
	leadID := uuid.New()
	origin := "  Facebook <b>Ads</b> "

	var published int32
	f.bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		atomic.AddInt32(&published, 1)
		return nil
	}))

	first, err := f.svc.AssignLead(ctx, f.tenantID, leadID, &origin)
	require.NoError(t, err)
	second, err := f.svc.AssignLead(ctx, f.tenantID, leadID, &origin)
	require.NoError(t, err)
	f.bus.Wait()

	assert.False(t, first.AlreadyAssigned)
	assert.True(t, second.AlreadyAssigned)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, first.Vendor.ID, second.Vendor.ID)
	assert.Equal(t, first.Pipeline.ID, second.Pipeline.ID)
	assert.Equal(t, first.Stage.ID, second.Stage.ID)
	assert.Equal(t, first.QueuePosition, second.QueuePosition)
	assert.True(t, first.AssignedAt.Equal(second.AssignedAt))
	require.NotNil(t, second.Origin)
	assert.Equal(t, "facebook ads", *second.Origin)

	assert.Len(t, f.events(t), 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&published))

	next, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, f.vendors[1].ID, next.Vendor.ID, "a replay must not advance the cursor")
}

func TestSimulateNextDoesNotMutate(t *testing.T) {
	f := newFixture(t, 1, 2)
	ctx := context.Background()

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.NoError(t, err)
	before := f.state(t)

	first, err := f.svc.SimulateNext(ctx, f.tenantID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.svc.SimulateNext(ctx, f.tenantID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, before, f.state(t))
	assert.Len(t, f.events(t), 1)
	assert.Equal(t, uuid.Nil, first.EventID)

	committed, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, first.Vendor.ID, committed.Vendor.ID)
	assert.Equal(t, first.Stage.ID, committed.Stage.ID)
}

func TestAssignLeadAbortedCommitLeavesNoTrace(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()
	before := f.state(t)

	f.store.BeforeCommit = func(uuid.UUID) error { return errors.New("simulated crash") }
	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.GetKind(err))

	assert.Equal(t, before, f.state(t))
	assert.Empty(t, f.events(t))

	f.store.BeforeCommit = nil
	res, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, f.vendors[0].ID, res.Vendor.ID)
}

func TestAssignLeadConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t, 1, 1, 1, 1, 1)
	ctx := context.Background()

	const calls = 100
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	evts := f.events(t)
	require.Len(t, evts, calls)
	counts := map[uuid.UUID]int{}
	for i, e := range evts {
		counts[e.VendorID]++
		assert.Equal(t, f.vendors[i%5].ID, e.VendorID, "event %d out of rotation order", i)
	}
	for _, v := range f.vendors {
		assert.Equal(t, 20, counts[v.ID], "vendor %s", v.DisplayName)
	}

	state := f.state(t)
	require.NotNil(t, state.LastAssignedVendorID)
	assert.Equal(t, f.vendors[4].ID, *state.LastAssignedVendorID)
}

func TestEmptyRegistryFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	assertCode(t, err, CodeNoEligibleVendors)
	assert.Equal(t, apperr.KindUnprocessable, apperr.GetKind(err))

	_, err = f.svc.SimulateNext(ctx, f.tenantID)
	assertCode(t, err, CodeNoEligibleVendors)

	assert.Empty(t, f.events(t))
	assert.True(t, f.state(t).UpdatedAt.IsZero())
}

func TestConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no pipeline", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutVendor(domain.Vendor{ID: uuid.New(), TenantID: f.tenantID, DisplayName: "Solo", Participates: true, Weight: 1})

		_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		assertCode(t, err, CodeNoPipelineConfigured)
		assert.False(t, apperr.IsRetryable(err))
		assert.Empty(t, f.events(t))
	})

	t.Run("no stage", func(t *testing.T) {
		f := newFixture(t)
		v := domain.Vendor{ID: uuid.New(), TenantID: f.tenantID, DisplayName: "Solo", Participates: true, Weight: 1}
		f.store.PutVendor(v)
		f.store.PutPipeline(domain.Pipeline{ID: uuid.New(), TenantID: f.tenantID, Name: "Empty", ResponsibleVendorID: &v.ID, Active: true})

		_, err := f.svc.SimulateNext(ctx, f.tenantID)
		assertCode(t, err, CodeNoInitialStage)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.svc.AssignLead(ctx, uuid.New(), uuid.New(), nil)
		assertCode(t, err, CodeTenantNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.Nil, nil)
		assertCode(t, err, CodeInvalidInput)
	})
}

func TestAssignLeadLockTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, 1)
	f.svc = New(f.store, nil, f.bus, testRotationConfig{lockTimeout: 20 * time.Millisecond, attempts: 2}, logger.Nop())
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.store.Update(ctx, f.tenantID, func(repository.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	assertCode(t, err, CodeLockTimeout)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, apperr.KindUnavailable, apperr.GetKind(err))
}

func TestAssignLeadCallerDeadlineIsRetryable(t *testing.T) {
	f := newFixture(t, 1)
	f.svc = New(f.store, nil, f.bus, testRotationConfig{lockTimeout: time.Second, attempts: 5}, logger.Nop())

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.store.Update(context.Background(), f.tenantID, func(repository.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	assertCode(t, err, CodeLockTimeout)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, apperr.KindUnavailable, apperr.GetKind(err))
	assert.Empty(t, f.events(t))
}

// busyLocker never grants the lock and waits for the caller to give up.
type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, _ string) (lock.Unlock, error) {
	<-ctx.Done()
	return nil, lock.ErrNotAcquired
}

func TestAssignLeadCallerCancelledWhileWaitingForLockIsRetryable(t *testing.T) {
	f := newFixture(t, 1)
	f.svc = New(f.store, busyLocker{}, f.bus, testRotationConfig{lockTimeout: time.Second, attempts: 1}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	assertCode(t, err, CodeLockTimeout)
	assert.True(t, apperr.IsRetryable(err))
	assert.Empty(t, f.events(t))
}

func TestQueueStateAndReset(t *testing.T) {
	f := newFixture(t, 1, 1, 1)
	ctx := context.Background()

	qs, err := f.svc.GetQueueState(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Nil(t, qs.LastVendor)
	assert.Nil(t, qs.UpdatedAt)
	require.NotNil(t, qs.NextVendor)
	assert.Equal(t, f.vendors[0].ID, qs.NextVendor.ID)

	for i := 0; i < 2; i++ {
		_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		require.NoError(t, err)
	}

	qs, err = f.svc.GetQueueState(ctx, f.tenantID)
	require.NoError(t, err)
	require.NotNil(t, qs.LastVendor)
	assert.Equal(t, f.vendors[1].ID, qs.LastVendor.ID)
	assert.Equal(t, f.vendors[2].ID, qs.NextVendor.ID)
	assert.Equal(t, 3, qs.TotalEligible)
	assert.NotNil(t, qs.UpdatedAt)

	require.NoError(t, f.svc.ResetQueue(ctx, f.tenantID, uuid.New()))

	qs, err = f.svc.GetQueueState(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Nil(t, qs.LastVendor)
	assert.Equal(t, f.vendors[0].ID, qs.NextVendor.ID)
	assert.Len(t, f.events(t), 2, "reset keeps the assignment history")
}

func TestListRegistry(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()

	_, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
	require.NoError(t, err)

	preview, err := f.svc.ListRegistry(ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, preview.Vendors, 2)
	assert.Equal(t, 3, preview.TotalSlots)
	assert.Equal(t, 2, preview.Vendors[0].Slots)
	assert.True(t, preview.Vendors[0].IsLast)
	assert.True(t, preview.Vendors[0].IsNext, "weight 2 keeps the turn for a second slot")
	assert.False(t, preview.Vendors[1].IsNext)
}

func TestIntervalExpanderCanBeSwappedIn(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.svc = New(f.store, nil, f.bus, testRotationConfig{}, logger.Nop(), WithExpander(domain.IntervalExpander{}))
	ctx := context.Background()

	counts := map[uuid.UUID]int{}
	for i := 0; i < 30; i++ {
		res, err := f.svc.AssignLead(ctx, f.tenantID, uuid.New(), nil)
		require.NoError(t, err)
		counts[res.Vendor.ID]++
	}
	assert.Equal(t, 20, counts[f.vendors[0].ID])
	assert.Equal(t, 10, counts[f.vendors[1].ID])
}
