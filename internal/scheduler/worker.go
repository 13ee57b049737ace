package scheduler

import (
	"context"
	"errors"
	"fmt"

	rotationservice "lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Assigner is the rotation entry point the worker drives.
type Assigner interface {
	AssignLead(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (rotationservice.AssignmentResult, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, assigner Assigner, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("scheduler task failed", "task", task.Type(), "retry", retried, "maxRetry", maxRetry, "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskAssignLead, &assignLeadHandler{assigner: assigner, log: log})

	return &Worker{server: server, mux: mux, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

type assignLeadHandler struct {
	assigner Assigner
	log      *logger.Logger
}

// ProcessTask assigns the queued lead. Configuration and input errors skip
// retry; lock timeouts and storage failures are retried by asynq.
func (h *assignLeadHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAssignLeadPayload(task)
	if err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("tenant id: %v: %w", err, asynq.SkipRetry)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("lead id: %v: %w", err, asynq.SkipRetry)
	}

	result, err := h.assigner.AssignLead(ctx, tenantID, leadID, payload.Origin)
	if err != nil {
		if isPermanent(err) {
			h.log.Warn("queued assignment rejected", "tenantId", tenantID, "leadId", leadID, "code", apperr.CodeOf(err), "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.log.Info("queued assignment completed",
		"tenantId", tenantID, "leadId", leadID, "vendorId", result.Vendor.ID, "replayed", result.AlreadyAssigned)
	return nil
}

func isPermanent(err error) bool {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return false
	}
	return !appErr.Retryable && appErr.Kind != apperr.KindInternal && appErr.Kind != apperr.KindUnknown
}
