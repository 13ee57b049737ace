// Package webhook provides inbound lead intake for external systems.
// It handles API key management and assigns posted leads through the rotation.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

// APIKey represents a webhook API key stored in the database.
type APIKey struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KeyLookup resolves an active key by hash.
type KeyLookup interface {
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
}

// Repository provides data access for webhook API keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
// The plaintext key is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "rlk_" + hex.EncodeToString(bytes)
	prefix = plaintext[:12]
	return plaintext, HashKey(plaintext), prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const keyColumns = `id, tenant_id, name, key_hash, key_prefix, allowed_domains, is_active, created_at, updated_at`

func scanKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(
		&key.ID, &key.TenantID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.AllowedDomains, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	return key, err
}

// Create creates a new API key record.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, name string, keyHash string, keyPrefix string, allowedDomains []string) (APIKey, error) {
	return scanKey(r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (tenant_id, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+keyColumns, tenantID, name, keyHash, keyPrefix, allowedDomains))
}

// GetByHash retrieves an active API key by its hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	key, err := scanKey(r.pool.QueryRow(ctx, `
		SELECT `+keyColumns+`
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListByTenant returns all API keys for a tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+keyColumns+`
		FROM webhook_api_keys
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates an API key.
func (r *Repository) Revoke(ctx context.Context, keyID uuid.UUID, tenantID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, keyID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
