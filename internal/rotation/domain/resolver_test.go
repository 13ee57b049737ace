package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestResolveDestination(t *testing.T) {
	v := vendor(idA, intPtr(1), 1)
	other := uuid.MustParse(idB)

	override := Pipeline{ID: uuid.MustParse("10000000-0000-0000-0000-000000000000"), Name: "Override", Active: true}
	inactiveOverride := Pipeline{ID: uuid.MustParse("11000000-0000-0000-0000-000000000000"), Name: "Old", Active: false}
	ownZeta := Pipeline{ID: uuid.MustParse("20000000-0000-0000-0000-000000000000"), Name: "Zeta", ResponsibleVendorID: &v.ID, Active: true}
	ownAlpha := Pipeline{ID: uuid.MustParse("30000000-0000-0000-0000-000000000000"), Name: "Alpha", ResponsibleVendorID: &v.ID, Active: true}
	foreign := Pipeline{ID: uuid.MustParse("40000000-0000-0000-0000-000000000000"), Name: "Aaa", ResponsibleVendorID: &other, Active: true}

	stagesFor := func(p Pipeline) []Stage {
		return []Stage{
			{ID: uuid.New(), PipelineID: p.ID, Name: "Later", Position: 0},
			{ID: uuid.New(), PipelineID: p.ID, Name: "New", IsInitial: true, Position: 5},
		}
	}

	tests := []struct {
		name         string
		overrideID   *uuid.UUID
		pipelines    []Pipeline
		wantPipeline uuid.UUID
		wantErr      error
	}{
		{name: "override wins", overrideID: &override.ID, pipelines: []Pipeline{ownAlpha, override}, wantPipeline: override.ID},
		{name: "inactive override falls back", overrideID: &inactiveOverride.ID, pipelines: []Pipeline{inactiveOverride, ownZeta}, wantPipeline: ownZeta.ID},
		{name: "lowest name among responsible", pipelines: []Pipeline{ownZeta, ownAlpha, foreign}, wantPipeline: ownAlpha.ID},
		{name: "nothing configured", pipelines: []Pipeline{foreign}, wantErr: ErrNoPipelineConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vv := v
			vv.PipelineOverrideID = tt.overrideID

			var stages []Stage
			for _, p := range tt.pipelines {
				stages = append(stages, stagesFor(p)...)
			}

			pipeline, stage, err := ResolveDestination(vv, Catalog{Pipelines: tt.pipelines, Stages: stages})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pipeline.ID != tt.wantPipeline {
				t.Fatalf("expected pipeline %s, got %s", tt.wantPipeline, pipeline.ID)
			}
			if stage.Name != "New" || stage.PipelineID != pipeline.ID {
				t.Fatalf("expected initial stage of the pipeline, got %+v", stage)
			}
		})
	}
}

func TestResolveDestinationWithoutStages(t *testing.T) {
	v := vendor(idA, nil, 1)
	p := Pipeline{ID: uuid.New(), Name: "Empty", ResponsibleVendorID: &v.ID, Active: true}

	_, _, err := ResolveDestination(v, Catalog{Pipelines: []Pipeline{p}})
	if !errors.Is(err, ErrNoInitialStage) {
		t.Fatalf("expected ErrNoInitialStage, got %v", err)
	}
}

func TestInitialStageTieBreak(t *testing.T) {
	pipelineID := uuid.New()
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	stages := []Stage{
		{ID: high, PipelineID: pipelineID, Position: 1},
		{ID: low, PipelineID: pipelineID, Position: 1},
		{ID: uuid.New(), PipelineID: pipelineID, Position: 2},
		{ID: uuid.New(), PipelineID: uuid.New(), Position: 0, IsInitial: true},
	}

	got, ok := InitialStage(pipelineID, stages)
	if !ok {
		t.Fatal("expected a stage")
	}
	if got.ID != low {
		t.Fatalf("expected lowest id on equal position, got %s", got.ID)
	}
}
