package exports

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lead_rotation_backend/internal/events"
	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/httpkit"
	"lead_rotation_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rotationConfig struct{}

func (rotationConfig) GetRotationLockTimeout() time.Duration    { return time.Second }
func (rotationConfig) GetRotationLockTTL() time.Duration        { return time.Second }
func (rotationConfig) GetRotationMaxAttempts() int              { return 1 }
func (rotationConfig) GetRotationRetryBaseDelay() time.Duration { return time.Millisecond }

type exportEnv struct {
	engine   *gin.Engine
	tenantID uuid.UUID
	leads    []uuid.UUID
}

func newExportEnv(t *testing.T, assignedAt ...time.Time) *exportEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	tenantID := uuid.New()
	store.AddTenant(tenantID)
	order := 0
	v := domain.Vendor{ID: uuid.New(), TenantID: tenantID, DisplayName: "Ana", Participates: true, Order: &order, Weight: 1}
	p := domain.Pipeline{ID: uuid.New(), TenantID: tenantID, Name: "Sales", ResponsibleVendorID: &v.ID, Active: true}
	store.PutVendor(v)
	store.PutPipeline(p)
	store.PutStage(tenantID, domain.Stage{ID: uuid.New(), PipelineID: p.ID, Name: "New", IsInitial: true})

	env := &exportEnv{tenantID: tenantID}
	i := 0
	clock := func() time.Time { return assignedAt[i] }
	log := logger.Nop()
	svc := service.New(store, nil, events.NewInMemoryBus(log), rotationConfig{}, log, service.WithClock(clock))
	origin := "Website"
	for i = range assignedAt {
		leadID := uuid.New()
		_, err := svc.AssignLead(context.Background(), tenantID, leadID, &origin)
		require.NoError(t, err)
		env.leads = append(env.leads, leadID)
	}

	h := NewHandler(NewMemoryReader(store))
	h.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	r := gin.New()
	r.GET("/export.csv", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	}, h.ExportAssignmentsCSV)
	env.engine = r
	return env
}

func (e *exportEnv) get(t *testing.T, query string) (*httptest.ResponseRecorder, [][]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv"+query, nil))
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	return rec, records
}

func TestExportAssignmentsCSV(t *testing.T) {
	env := newExportEnv(t,
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC),
	)

	rec, records := env.get(t, "?fromDate=2026-03-01&toDate=2026-03-05")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "assignments-2026-03-01-2026-03-05.csv")

	require.Len(t, records, 3)
	assert.Equal(t, csvHeaders(), records[0])
	assert.Equal(t, env.leads[0].String(), records[1][1])
	assert.Equal(t, "Ana", records[1][3])
	assert.Equal(t, "Sales", records[1][4])
	assert.Equal(t, "New", records[1][5])
	assert.Equal(t, "Website", records[1][6])
	assert.Equal(t, env.leads[1].String(), records[2][1])
}

func TestExportAssignmentsCSVTimezoneShiftsDays(t *testing.T) {
	env := newExportEnv(t, time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC))

	_, records := env.get(t, "?fromDate=2026-03-10&toDate=2026-03-10&timezone=Europe/Amsterdam")
	require.Len(t, records, 2)
	assert.Equal(t, "2026-03-10T00:30:00+01:00", records[1][0])

	_, records = env.get(t, "?fromDate=2026-03-10&toDate=2026-03-10")
	assert.Len(t, records, 1)
}

func TestExportAssignmentsCSVDefaultsAndLimit(t *testing.T) {
	env := newExportEnv(t,
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	)

	_, records := env.get(t, "")
	assert.Len(t, records, 3)

	_, records = env.get(t, "?limit=1")
	require.Len(t, records, 2)
	assert.Equal(t, env.leads[0].String(), records[1][1])
}

func TestExportAssignmentsCSVRejectsBadInput(t *testing.T) {
	env := newExportEnv(t)

	for _, query := range []string{
		"?fromDate=2026-03-05&toDate=2026-03-01",
		"?fromDate=03/01/2026",
		"?timezone=Mars/Olympus",
	} {
		rec, _ := env.get(t, query)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
