package learning

import (
	"fmt"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// Params are the learner tunables.
type Params struct {
	MinSamples         int
	ApprovalIncrement  float64
	RejectionDecrement float64
	CorrectionWeight   float64
	ObservationWeight  float64
	InitialConfidence  float64
}

// DefaultParams returns the standard tunables.
func DefaultParams() Params {
	return Params{
		MinSamples:         3,
		ApprovalIncrement:  0.05,
		RejectionDecrement: 0.10,
		CorrectionWeight:   1.5,
		ObservationWeight:  1.0,
		InitialConfidence:  0.5,
	}
}

// ParamsFromConfig converts the learning configuration section.
func ParamsFromConfig(cfg config.LearningConfig) Params {
	return Params{
		MinSamples:         cfg.MinSamples,
		ApprovalIncrement:  cfg.ApprovalIncrement,
		RejectionDecrement: cfg.RejectionDecrement,
		CorrectionWeight:   cfg.CorrectionWeight,
		ObservationWeight:  cfg.ObservationWeight,
		InitialConfidence:  cfg.InitialConfidence,
	}
}

// Validate checks that the weights can produce a well-defined mean.
func (p Params) Validate() error {
	if p.MinSamples <= 0 {
		return fmt.Errorf("%w: min samples must be positive", domain.ErrInvalidInput)
	}
	if p.CorrectionWeight <= 0 || p.ObservationWeight <= 0 {
		return fmt.Errorf("%w: weights must be positive", domain.ErrInvalidInput)
	}
	if p.ApprovalIncrement < 0 || p.RejectionDecrement < 0 {
		return fmt.Errorf("%w: confidence steps cannot be negative", domain.ErrInvalidInput)
	}
	if p.InitialConfidence < 0 || p.InitialConfidence > 1 {
		return fmt.Errorf("%w: initial confidence outside [0,1]", domain.ErrInvalidInput)
	}
	return nil
}
