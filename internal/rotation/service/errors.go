package service

import (
	"context"
	"errors"

	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/lock"
)

func isTransient(err error) bool {
	return errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrLockTimeout)
}

// configError attaches the vendor to a resolver failure.
func configError(err error, vendor domain.Vendor) error {
	appErr := toAppError(err, "")
	if appErr.Kind == apperr.KindUnprocessable {
		details := map[string]string{"vendorId": vendor.ID.String()}
		if vendor.PipelineOverrideID != nil {
			details["pipelineOverrideId"] = vendor.PipelineOverrideID.String()
		}
		return appErr.WithDetails(details)
	}
	return appErr
}

// toAppError maps domain and storage errors to the closed set of API codes.
func toAppError(err error, op string) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Op == "" && op != "" {
			appErr.Op = op
		}
		return appErr
	}

	var out *apperr.Error
	switch {
	case errors.Is(err, domain.ErrNoEligibleVendors):
		out = apperr.Wrap(apperr.KindUnprocessable, "no vendor participates in the rotation; enable at least one vendor", err).
			WithCode(CodeNoEligibleVendors)
	case errors.Is(err, domain.ErrNoPipelineConfigured):
		out = apperr.Wrap(apperr.KindUnprocessable, "the selected vendor has no active pipeline; set a pipeline override or make them responsible for an active pipeline", err).
			WithCode(CodeNoPipelineConfigured)
	case errors.Is(err, domain.ErrNoInitialStage):
		out = apperr.Wrap(apperr.KindUnprocessable, "the destination pipeline has no stages; add an initial stage", err).
			WithCode(CodeNoInitialStage)
	case errors.Is(err, repository.ErrTenantNotFound):
		out = apperr.Wrap(apperr.KindNotFound, "tenant not found", err).WithCode(CodeTenantNotFound)
	case errors.Is(err, repository.ErrLockTimeout):
		out = apperr.Wrap(apperr.KindUnavailable, "rotation is busy for this tenant; retry shortly", err).WithCode(CodeLockTimeout)
	case errors.Is(err, lock.ErrNotAcquired),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		// The caller gave up. A retry replays any assignment that did commit.
		out = apperr.Wrap(apperr.KindUnavailable, "rotation is busy for this tenant; retry shortly", err).WithCode(CodeLockTimeout)
	case errors.Is(err, repository.ErrConflict):
		out = apperr.Wrap(apperr.KindUnavailable, "rotation changed concurrently; retry shortly", err).WithCode(CodeRotationConflict)
	default:
		out = apperr.Wrap(apperr.KindInternal, "rotation storage failure", err)
	}
	if op != "" {
		out = out.WithOp(op)
	}
	return out
}
