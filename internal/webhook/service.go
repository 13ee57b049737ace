package webhook

import (
	"context"
	"errors"
	"strings"

	rotationservice "lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/logger"
	"lead_rotation_backend/platform/sanitize"

	"github.com/google/uuid"
)

// CodeQueueUnavailable marks a failed hand-off to the background worker.
const CodeQueueUnavailable = "queue_unavailable"

// Assigner runs a lead through the rotation synchronously.
type Assigner interface {
	AssignLead(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (rotationservice.AssignmentResult, error)
}

// Enqueuer hands a lead to the background worker.
type Enqueuer interface {
	EnqueueAssignment(ctx context.Context, tenantID, leadID uuid.UUID, origin *string) (string, error)
}

// KeyStore is the persistence the service needs for API key management.
type KeyStore interface {
	KeyLookup
	Create(ctx context.Context, tenantID uuid.UUID, name string, keyHash string, keyPrefix string, allowedDomains []string) (APIKey, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, keyID uuid.UUID, tenantID uuid.UUID) error
}

// Intake is an inbound lead accepted by an API key.
type Intake struct {
	TenantID uuid.UUID
	KeyID    uuid.UUID
	KeyName  string
	LeadID   uuid.UUID
	Origin   *string
	Async    bool
}

// IntakeResult is either a finished assignment or a queued task.
type IntakeResult struct {
	Assignment *rotationservice.AssignmentResult
	TaskID     string
}

// Service handles webhook business logic.
type Service struct {
	keys     KeyStore
	assigner Assigner
	enqueuer Enqueuer
	log      *logger.Logger
}

// NewService creates a new webhook service. enqueuer may be nil, in which
// case async requests are assigned inline.
func NewService(keys KeyStore, assigner Assigner, enqueuer Enqueuer, log *logger.Logger) *Service {
	return &Service{keys: keys, assigner: assigner, enqueuer: enqueuer, log: log}
}

// AcceptLead assigns or enqueues an inbound lead. Without an explicit origin
// the API key name is used so per-integration stats stay meaningful.
func (s *Service) AcceptLead(ctx context.Context, in Intake) (IntakeResult, error) {
	origin := sanitize.OriginTag(in.Origin)
	if origin == nil {
		origin = sanitize.OriginTag(&in.KeyName)
	}

	if in.Async {
		if s.enqueuer != nil {
			taskID, err := s.enqueuer.EnqueueAssignment(ctx, in.TenantID, in.LeadID, origin)
			if err != nil {
				return IntakeResult{}, apperr.Wrap(apperr.KindUnavailable, "could not queue assignment", err).
					WithCode(CodeQueueUnavailable)
			}
			s.log.WithContext(ctx).Info("webhook lead queued",
				"tenantId", in.TenantID, "leadId", in.LeadID, "keyId", in.KeyID, "taskId", taskID)
			return IntakeResult{TaskID: taskID}, nil
		}
		s.log.WithContext(ctx).Warn("async intake requested without a worker, assigning inline",
			"tenantId", in.TenantID, "leadId", in.LeadID)
	}

	result, err := s.assigner.AssignLead(ctx, in.TenantID, in.LeadID, origin)
	if err != nil {
		return IntakeResult{}, err
	}
	return IntakeResult{Assignment: &result}, nil
}

// CreateAPIKey generates a key and stores its hash. The plaintext is only
// returned here.
func (s *Service) CreateAPIKey(ctx context.Context, tenantID uuid.UUID, name string, allowedDomains []string) (APIKey, string, error) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return APIKey{}, "", apperr.Internal("failed to generate API key")
	}

	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	key, err := s.keys.Create(ctx, tenantID, strings.TrimSpace(name), hash, prefix, domains)
	if err != nil {
		return APIKey{}, "", err
	}
	s.log.WithContext(ctx).Info("webhook API key created", "tenantId", tenantID, "keyId", key.ID, "prefix", prefix)
	return key, plaintext, nil
}

// ListAPIKeys returns a tenant's keys, newest first.
func (s *Service) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	return s.keys.ListByTenant(ctx, tenantID)
}

// RevokeAPIKey deactivates a key owned by the tenant.
func (s *Service) RevokeAPIKey(ctx context.Context, tenantID, keyID uuid.UUID) error {
	err := s.keys.Revoke(ctx, keyID, tenantID)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return apperr.NotFound("API key not found")
	}
	if err != nil {
		return err
	}
	s.log.WithContext(ctx).Info("webhook API key revoked", "tenantId", tenantID, "keyId", keyID)
	return nil
}
