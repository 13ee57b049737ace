package service

import (
	"context"
	"errors"
	"time"

	"lead_rotation_backend/internal/events"
	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/lock"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const lockKeyPrefix = "tenant:"

// Service runs lead assignments against a Store.
type Service struct {
	store    repository.Store
	locker   lock.Locker
	bus      events.Bus
	cfg      config.RotationConfig
	log      *logger.Logger
	expander domain.Expander
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithExpander swaps the weight interpretation.
func WithExpander(exp domain.Expander) Option {
	return func(s *Service) { s.expander = exp }
}

// WithClock overrides the time source of committed assignments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. A nil locker falls back to the store's own locking.
func New(store repository.Store, locker lock.Locker, bus events.Bus, cfg config.RotationConfig, log *logger.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:    store,
		locker:   locker,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		expander: domain.ProportionalExpander{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignLead assigns leadID to the next vendor of the tenant's rotation.
// Assigning the same lead again returns the original assignment with
// AlreadyAssigned set and writes nothing.
func (s *Service) AssignLead(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (AssignmentResult, error) {
	if tenantID == uuid.Nil {
		return AssignmentResult{}, apperr.Validation("tenantId is required").WithCode(CodeInvalidInput)
	}
	if leadID == uuid.Nil {
		return AssignmentResult{}, apperr.Validation("leadId is required").WithCode(CodeInvalidInput)
	}
	origin = sanitize.OriginTag(origin)

	var (
		result  AssignmentResult
		attempt int
	)
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		r, err := s.assignOnce(ctx, tenantID, leadID, origin)
		if err == nil {
			result = r
			return nil
		}
		if isTransient(err) {
			s.log.WithContext(ctx).LockContention(tenantID.String(), attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if isTransient(err) {
			s.log.WithContext(ctx).Error("rotation_retries_exhausted",
				"tenant_id", tenantID.String(), "lead_id", leadID.String(), "attempts", attempt, "error", err)
		}
		return AssignmentResult{}, toAppError(err, "AssignLead")
	}

	s.log.WithContext(ctx).Assignment(tenantID.String(), leadID.String(), result.Vendor.ID.String(),
		result.QueuePosition, result.TotalEligibleVendors, result.AlreadyAssigned)

	if !result.AlreadyAssigned && s.bus != nil {
		s.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent:     events.NewBaseEvent(),
			TenantID:      tenantID,
			LeadID:        leadID,
			AssignmentID:  result.EventID,
			VendorID:      result.Vendor.ID,
			PipelineID:    result.Pipeline.ID,
			StageID:       result.Stage.ID,
			Origin:        result.Origin,
			QueuePosition: result.QueuePosition,
		})
	}
	return result, nil
}

func (s *Service) backoff() retry.Backoff {
	attempts := s.cfg.GetRotationMaxAttempts()
	if attempts < 1 {
		attempts = 1
	}
	base := s.cfg.GetRotationRetryBaseDelay()
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

// assignOnce is one attempt: tenant lock, then a single unit of work bounded
// by the lock timeout.
func (s *Service) assignOnce(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (AssignmentResult, error) {
	var result AssignmentResult
	err := s.withTenantLock(ctx, tenantID, func(txCtx context.Context) error {
		return s.store.Update(txCtx, tenantID, func(tx repository.Tx) error {
			state, err := tx.LockState(txCtx)
			if err != nil {
				return err
			}

			vendors, err := tx.ListParticipating(txCtx)
			if err != nil {
				return err
			}

			if existing, found, err := tx.FindEventByLead(txCtx, leadID); err != nil {
				return err
			} else if found {
				result, err = replay(txCtx, tx, existing, vendors)
				return err
			}

			pick, err := domain.NextVendor(vendors, state, s.expander)
			if err != nil {
				return err
			}

			catalog, err := tx.LoadCatalog(txCtx)
			if err != nil {
				return err
			}
			pipeline, stage, err := domain.ResolveDestination(pick.Vendor, catalog)
			if err != nil {
				return configError(err, pick.Vendor)
			}

			now := s.now().UTC()
			vendorID := pick.Vendor.ID
			if err := tx.SaveState(txCtx, domain.RotationState{
				TenantID:             tenantID,
				LastAssignedVendorID: &vendorID,
				LastRunPosition:      pick.RunPosition,
				UpdatedAt:            now,
			}); err != nil {
				return err
			}

			event := domain.AssignmentEvent{
				ID:         uuid.New(),
				TenantID:   tenantID,
				LeadID:     leadID,
				VendorID:   vendorID,
				PipelineID: pipeline.ID,
				StageID:    stage.ID,
				Origin:     origin,
				CreatedAt:  now,
			}
			if err := tx.AppendEvent(txCtx, event); err != nil {
				return err
			}

			result = AssignmentResult{
				LeadID:               leadID,
				Vendor:               pick.Vendor,
				Pipeline:             pipeline,
				Stage:                stage,
				QueuePosition:        pick.QueuePosition,
				TotalEligibleVendors: pick.TotalEligible,
				EventID:              event.ID,
				AssignedAt:           now,
				Origin:               origin,
			}
			return nil
		})
	})
	return result, err
}

// withTenantLock bounds fn by the lock timeout and holds the distributed
// tenant lock around it. A deadline hit while waiting is a lock timeout.
func (s *Service) withTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.GetRotationLockTimeout())
	defer cancel()

	unlock, err := s.locker.Acquire(lockCtx, lockKeyPrefix+tenantID.String())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) && ctx.Err() == nil {
			return repository.ErrLockTimeout
		}
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.WithContext(ctx).Warn("rotation_lock_release_failed", "tenant_id", tenantID.String(), "error", err)
		}
	}()

	err = fn(lockCtx)
	if err != nil && lockCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, repository.ErrLockTimeout) {
		return errors.Join(repository.ErrLockTimeout, err)
	}
	return err
}

// replay rebuilds the result of an existing assignment. Catalog rows removed
// since then are reported by id only.
func replay(ctx context.Context, r repository.Reader, existing domain.AssignmentEvent, vendors []domain.Vendor) (AssignmentResult, error) {
	vendor, err := r.GetVendor(ctx, existing.VendorID)
	if errors.Is(err, repository.ErrNotFound) {
		vendor, err = domain.Vendor{ID: existing.VendorID, TenantID: existing.TenantID}, nil
	}
	if err != nil {
		return AssignmentResult{}, err
	}
	pipeline, err := r.GetPipeline(ctx, existing.PipelineID)
	if errors.Is(err, repository.ErrNotFound) {
		pipeline, err = domain.Pipeline{ID: existing.PipelineID, TenantID: existing.TenantID}, nil
	}
	if err != nil {
		return AssignmentResult{}, err
	}
	stage, err := r.GetStage(ctx, existing.StageID)
	if errors.Is(err, repository.ErrNotFound) {
		stage, err = domain.Stage{ID: existing.StageID, PipelineID: existing.PipelineID}, nil
	}
	if err != nil {
		return AssignmentResult{}, err
	}

	position := 0
	for i, v := range vendors {
		if v.ID == vendor.ID {
			position = i + 1
			break
		}
	}

	return AssignmentResult{
		LeadID:               existing.LeadID,
		Vendor:               vendor,
		Pipeline:             pipeline,
		Stage:                stage,
		QueuePosition:        position,
		TotalEligibleVendors: len(vendors),
		EventID:              existing.ID,
		AssignedAt:           existing.CreatedAt.UTC(),
		Origin:               existing.Origin,
		AlreadyAssigned:      true,
	}, nil
}

// SimulateNext computes what AssignLead would return right now without
// locking or writing. The answer may be stale by the time it is used.
func (s *Service) SimulateNext(ctx context.Context, tenantID uuid.UUID) (AssignmentResult, error) {
	var result AssignmentResult
	err := s.store.View(ctx, tenantID, func(r repository.Reader) error {
		vendors, err := r.ListParticipating(ctx)
		if err != nil {
			return err
		}
		state, err := r.GetState(ctx)
		if err != nil {
			return err
		}
		pick, err := domain.NextVendor(vendors, state, s.expander)
		if err != nil {
			return err
		}
		catalog, err := r.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		pipeline, stage, err := domain.ResolveDestination(pick.Vendor, catalog)
		if err != nil {
			return configError(err, pick.Vendor)
		}

		result = AssignmentResult{
			Vendor:               pick.Vendor,
			Pipeline:             pipeline,
			Stage:                stage,
			QueuePosition:        pick.QueuePosition,
			TotalEligibleVendors: pick.TotalEligible,
		}
		return nil
	})
	if err != nil {
		return AssignmentResult{}, toAppError(err, "SimulateNext")
	}
	return result, nil
}

// GetQueueState reports the last and next vendor. An empty registry is not
// an error here; NextVendor is nil.
func (s *Service) GetQueueState(ctx context.Context, tenantID uuid.UUID) (QueueState, error) {
	var qs QueueState
	err := s.store.View(ctx, tenantID, func(r repository.Reader) error {
		vendors, err := r.ListParticipating(ctx)
		if err != nil {
			return err
		}
		state, err := r.GetState(ctx)
		if err != nil {
			return err
		}

		qs.TotalEligible = len(vendors)
		if !state.UpdatedAt.IsZero() {
			updatedAt := state.UpdatedAt.UTC()
			qs.UpdatedAt = &updatedAt
		}
		if state.LastAssignedVendorID != nil {
			last, err := r.GetVendor(ctx, *state.LastAssignedVendorID)
			switch {
			case err == nil:
				qs.LastVendor = &last
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}
		}
		if len(vendors) > 0 {
			pick, err := domain.NextVendor(vendors, state, s.expander)
			if err != nil {
				return err
			}
			qs.NextVendor = &pick.Vendor
		}
		return nil
	})
	if err != nil {
		return QueueState{}, toAppError(err, "GetQueueState")
	}
	return qs, nil
}

// ListRegistry previews the participating vendors with their slots per cycle.
func (s *Service) ListRegistry(ctx context.Context, tenantID uuid.UUID) (RegistryPreview, error) {
	var preview RegistryPreview
	err := s.store.View(ctx, tenantID, func(r repository.Reader) error {
		vendors, err := r.ListParticipating(ctx)
		if err != nil {
			return err
		}
		state, err := r.GetState(ctx)
		if err != nil {
			return err
		}

		preview.Vendors = make([]RegistryEntry, 0, len(vendors))
		if len(vendors) == 0 {
			return nil
		}

		pick, err := domain.NextVendor(vendors, state, s.expander)
		if err != nil {
			return err
		}
		slots := domain.SlotCounts(vendors, s.expander)
		preview.TotalSlots = pick.TotalSlots
		for i, v := range vendors {
			preview.Vendors = append(preview.Vendors, RegistryEntry{
				Vendor:        v,
				QueuePosition: i + 1,
				Slots:         slots[v.ID],
				IsNext:        v.ID == pick.Vendor.ID,
				IsLast:        state.LastAssignedVendorID != nil && *state.LastAssignedVendorID == v.ID,
			})
		}
		return nil
	})
	if err != nil {
		return RegistryPreview{}, toAppError(err, "ListRegistry")
	}
	return preview, nil
}

// ResetQueue clears the cursor so the next assignment starts at the first
// vendor. Assignment history is kept.
func (s *Service) ResetQueue(ctx context.Context, tenantID, actorID uuid.UUID) error {
	err := s.withTenantLock(ctx, tenantID, func(txCtx context.Context) error {
		return s.store.Update(txCtx, tenantID, func(tx repository.Tx) error {
			if _, err := tx.LockState(txCtx); err != nil {
				return err
			}
			return tx.SaveState(txCtx, domain.RotationState{TenantID: tenantID, UpdatedAt: s.now().UTC()})
		})
	})
	if err != nil {
		return toAppError(err, "ResetQueue")
	}

	s.log.WithContext(ctx).Info("rotation_reset", "tenant_id", tenantID.String(), "actor_id", actorID.String())
	if s.bus != nil {
		s.bus.Publish(ctx, events.RotationReset{BaseEvent: events.NewBaseEvent(), TenantID: tenantID, ActorID: actorID})
	}
	return nil
}
