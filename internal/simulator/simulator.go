package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lead_rotation_backend/internal/events"
	"lead_rotation_backend/internal/rotation/domain"
	"lead_rotation_backend/internal/rotation/repository"
	"lead_rotation_backend/internal/rotation/service"
	"lead_rotation_backend/platform/logger"

	"github.com/google/uuid"
)

// VendorShare is one vendor's line in a report.
type VendorShare struct {
	Name     string  `json:"name"`
	Weight   int     `json:"weight"`
	Slots    int     `json:"slots"`
	Assigned int     `json:"assigned"`
	Share    float64 `json:"share"`
}

// Report summarizes a simulated run.
type Report struct {
	Expander string        `json:"expander"`
	Leads    int           `json:"leads"`
	Cycle    int           `json:"cycle"`
	Vendors  []VendorShare `json:"vendors"`
	Sequence []string      `json:"sequence"`
}

type simConfig struct{}

func (simConfig) GetRotationLockTimeout() time.Duration    { return time.Second }
func (simConfig) GetRotationLockTTL() time.Duration        { return time.Second }
func (simConfig) GetRotationMaxAttempts() int              { return 1 }
func (simConfig) GetRotationRetryBaseDelay() time.Duration { return time.Millisecond }

// ExpanderFor maps a fixture or flag name to an expander.
func ExpanderFor(name string) (domain.Expander, error) {
	switch strings.ToLower(name) {
	case "", ExpanderProportional:
		return domain.ProportionalExpander{}, nil
	case ExpanderInterval:
		return domain.IntervalExpander{}, nil
	default:
		return nil, fmt.Errorf("unknown expander %q", name)
	}
}

// fixtureNamespace seeds the ids of simulated rows so unordered vendors
// tie-break the same way on every run.
var fixtureNamespace = uuid.MustParse("5b1f0c3e-8d2a-4c6e-9f47-2a8e6d1b3c90")

func fixtureID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(strings.Join(parts, "/")))
}

// Run assigns leads one by one through the real rotation service on an
// in-memory store. sequenceLen caps how many picks are echoed in order.
func Run(ctx context.Context, fixture *Fixture, leads int, expanderName string, sequenceLen int) (Report, error) {
	if expanderName == "" {
		expanderName = fixture.Expander
	}
	if expanderName == "" {
		expanderName = ExpanderProportional
	}
	exp, err := ExpanderFor(expanderName)
	if err != nil {
		return Report{}, err
	}

	store := repository.NewMemoryStore()
	tenantID := fixtureID("tenant")
	store.AddTenant(tenantID)

	vendors := make([]domain.Vendor, 0, len(fixture.Vendors))
	names := make(map[uuid.UUID]string, len(fixture.Vendors))
	for _, fv := range fixture.Vendors {
		participates := fv.Participates == nil || *fv.Participates
		v := domain.Vendor{
			ID:           fixtureID("vendor", fv.Name),
			TenantID:     tenantID,
			DisplayName:  fv.Name,
			Participates: participates,
			Order:        fv.Order,
			Weight:       fv.Weight,
		}
		p := domain.Pipeline{ID: fixtureID("pipeline", fv.Name), TenantID: tenantID, Name: fv.Name, ResponsibleVendorID: &v.ID, Active: true}
		store.PutVendor(v)
		store.PutPipeline(p)
		store.PutStage(tenantID, domain.Stage{ID: fixtureID("stage", fv.Name), PipelineID: p.ID, Name: "New", IsInitial: true})
		vendors = append(vendors, v)
		names[v.ID] = fv.Name
	}

	log := logger.Nop()
	svc := service.New(store, nil, events.NewInMemoryBus(log), simConfig{}, log, service.WithExpander(exp))

	assigned := make(map[uuid.UUID]int, len(vendors))
	sequence := make([]string, 0, sequenceLen)
	for i := 0; i < leads; i++ {
		result, err := svc.AssignLead(ctx, tenantID, uuid.New(), nil)
		if err != nil {
			return Report{}, fmt.Errorf("lead %d: %w", i+1, err)
		}
		assigned[result.Vendor.ID]++
		if len(sequence) < sequenceLen {
			sequence = append(sequence, names[result.Vendor.ID])
		}
	}

	eligible := domain.FilterParticipating(vendors)
	domain.SortVendors(eligible)
	slots := domain.SlotCounts(eligible, exp)

	report := Report{Expander: strings.ToLower(expanderName), Leads: leads, Sequence: sequence}
	for _, v := range eligible {
		share := 0.0
		if leads > 0 {
			share = float64(assigned[v.ID]) / float64(leads)
		}
		report.Cycle += slots[v.ID]
		report.Vendors = append(report.Vendors, VendorShare{
			Name:     v.DisplayName,
			Weight:   v.EffectiveWeight(),
			Slots:    slots[v.ID],
			Assigned: assigned[v.ID],
			Share:    share,
		})
	}
	return report, nil
}
