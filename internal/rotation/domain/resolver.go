package domain

import (
	"sort"

	"github.com/google/uuid"
)

// Catalog is the tenant's pipeline and stage data needed to place a lead.
type Catalog struct {
	Pipelines []Pipeline
	Stages    []Stage
}

// ResolveDestination picks the pipeline and initial stage for vendor.
// An active override wins; otherwise the active pipeline the vendor is
// responsible for, lowest name then id when several match.
func ResolveDestination(vendor Vendor, catalog Catalog) (Pipeline, Stage, error) {
	pipeline, ok := resolvePipeline(vendor, catalog.Pipelines)
	if !ok {
		return Pipeline{}, Stage{}, ErrNoPipelineConfigured
	}

	stage, ok := InitialStage(pipeline.ID, catalog.Stages)
	if !ok {
		return Pipeline{}, Stage{}, ErrNoInitialStage
	}
	return pipeline, stage, nil
}

func resolvePipeline(vendor Vendor, pipelines []Pipeline) (Pipeline, bool) {
	if vendor.PipelineOverrideID != nil {
		for _, p := range pipelines {
			if p.ID == *vendor.PipelineOverrideID && p.Active {
				return p, true
			}
		}
	}

	candidates := make([]Pipeline, 0, 1)
	for _, p := range pipelines {
		if p.Active && p.ResponsibleVendorID != nil && *p.ResponsibleVendorID == vendor.ID {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Pipeline{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Name != candidates[j].Name {
			return candidates[i].Name < candidates[j].Name
		}
		return compareUUID(candidates[i].ID, candidates[j].ID) < 0
	})
	return candidates[0], true
}

// InitialStage returns the stage a new lead enters: the stage flagged
// initial first, then the lowest position, then the lowest id.
func InitialStage(pipelineID uuid.UUID, stages []Stage) (Stage, bool) {
	var (
		best  Stage
		found bool
	)
	for _, s := range stages {
		if s.PipelineID != pipelineID {
			continue
		}
		if !found || stageBefore(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func stageBefore(a, b Stage) bool {
	if a.IsInitial != b.IsInitial {
		return a.IsInitial
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return compareUUID(a.ID, b.ID) < 0
}
