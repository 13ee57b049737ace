package domain

import "errors"

var (
	// ErrNoEligibleVendors means no vendor of the tenant participates.
	ErrNoEligibleVendors = errors.New("no vendor participates in the rotation")
	// ErrNoPipelineConfigured means the chosen vendor has neither an active
	// override nor an active pipeline they are responsible for.
	ErrNoPipelineConfigured = errors.New("no active pipeline configured for vendor")
	// ErrNoInitialStage means the destination pipeline has no stages.
	ErrNoInitialStage = errors.New("pipeline has no stages")
)
