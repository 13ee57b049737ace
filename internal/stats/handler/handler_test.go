package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	rotationdomain "lead_rotation_backend/internal/rotation/domain"
	rotationrepo "lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/internal/stats/repository"
	"lead_rotation_backend/internal/stats/service"
	"lead_rotation_backend/platform/httpkit"
	"lead_rotation_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statsConfig struct{}

func (statsConfig) GetStatsCacheTTL() time.Duration  { return 0 }
func (statsConfig) GetStatsLocation() *time.Location { return time.UTC }

type statsEnv struct {
	engine *gin.Engine
	ana    uuid.UUID
	bob    uuid.UUID
}

// newStatsEnv seeds three assignments: Ana from a landing page, Ana without
// an origin and Bob without an origin.
func newStatsEnv(t *testing.T) *statsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := rotationrepo.NewMemoryStore()
	tenantID := uuid.New()
	store.AddTenant(tenantID)
	env := &statsEnv{ana: uuid.New(), bob: uuid.New()}
	store.PutVendor(rotationdomain.Vendor{ID: env.ana, TenantID: tenantID, DisplayName: "Ana", Participates: true, Weight: 1})
	store.PutVendor(rotationdomain.Vendor{ID: env.bob, TenantID: tenantID, DisplayName: "Bob", Participates: true, Weight: 1})

	landing := "landing page"
	at := time.Date(2026, time.October, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	err := store.Update(ctx, tenantID, func(tx rotationrepo.Tx) error {
		for _, e := range []rotationdomain.AssignmentEvent{
			{ID: uuid.New(), LeadID: uuid.New(), VendorID: env.ana, Origin: &landing, CreatedAt: at},
			{ID: uuid.New(), LeadID: uuid.New(), VendorID: env.ana, CreatedAt: at.Add(time.Hour)},
			{ID: uuid.New(), LeadID: uuid.New(), VendorID: env.bob, CreatedAt: at.Add(2 * time.Hour)},
		} {
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	svc := service.New(repository.NewMemoryReader(store), nil, statsConfig{}, logger.Nop())
	r := gin.New()
	group := r.Group("/rotation", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	})
	New(svc).RegisterRoutes(group)
	env.engine = r
	return env
}

func (e *statsEnv) get(t *testing.T, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/rotation/stats?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decodeSummary(t *testing.T, rec *httptest.ResponseRecorder) service.Summary {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary service.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	return summary
}

func TestSummaryFilters(t *testing.T) {
	env := newStatsEnv(t)

	tests := []struct {
		name  string
		query url.Values
		total int64
	}{
		{"no filter", url.Values{}, 3},
		{"empty origin selects unattributed", url.Values{"origin": {""}}, 2},
		{"origin is normalized", url.Values{"origin": {"  Landing   PAGE "}}, 1},
		{"vendor", url.Values{"vendorId": {env.bob.String()}}, 1},
		{"vendor and empty origin", url.Values{"vendorId": {env.ana.String()}, "origin": {""}}, 1},
		{"from is inclusive", url.Values{"from": {"2026-10-10T10:00:00Z"}}, 2},
		{"to is exclusive", url.Values{"to": {"2026-10-10T10:00:00Z"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := decodeSummary(t, env.get(t, tt.query))
			assert.Equal(t, tt.total, summary.Totals.AllTime)
		})
	}
}

func TestSummaryRejectsMalformedParameters(t *testing.T) {
	env := newStatsEnv(t)

	tests := []struct {
		name   string
		query  url.Values
		status int
	}{
		{"vendor id", url.Values{"vendorId": {"not-a-uuid"}}, http.StatusBadRequest},
		{"pipeline id", url.Values{"pipelineId": {"42"}}, http.StatusBadRequest},
		{"from", url.Values{"from": {"2026-10-10"}}, http.StatusBadRequest},
		{"to", url.Values{"to": {"yesterday"}}, http.StatusBadRequest},
		{"inverted range", url.Values{"from": {"2026-10-11T00:00:00Z"}, "to": {"2026-10-10T00:00:00Z"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, tt.query)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body httpkit.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "invalid_input", body.Code)
			assert.False(t, body.Retryable)
		})
	}
}
