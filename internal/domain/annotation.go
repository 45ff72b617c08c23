package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FeatureType classifies what kind of visual feature a candidate marks.
type FeatureType string

// Supported feature types
const (
	FeatureAnatomical FeatureType = "anatomical"
	FeatureBehavioral FeatureType = "behavioral"
	FeatureColor      FeatureType = "color"
	FeaturePattern    FeatureType = "pattern"
)

// IsValid reports whether t is one of the supported feature types.
func (t FeatureType) IsValid() bool {
	switch t {
	case FeatureAnatomical, FeatureBehavioral, FeatureColor, FeaturePattern:
		return true
	default:
		return false
	}
}

// AnnotationCandidate is a bounding box proposed by the vision service that
// pairs a bird feature with a vocabulary term. The stored box is always the
// raw proposal; adjustments are computed when candidates are read for review.
type AnnotationCandidate struct {
	ID          uuid.UUID   `json:"id"`
	ItemID      uuid.UUID   `json:"item_id"`
	Species     string      `json:"species"`
	SpanishTerm string      `json:"spanish_term"`
	EnglishTerm string      `json:"english_term"`
	Box         BoundingBox `json:"bounding_box"`
	Type        FeatureType `json:"type"`
	Confidence  float64     `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Term returns the vocabulary term used as the pattern key.
// Spanish is the target vocabulary; English is used when Spanish is absent.
func (c *AnnotationCandidate) Term() string {
	if t := strings.TrimSpace(c.SpanishTerm); t != "" {
		return t
	}
	return strings.TrimSpace(c.EnglishTerm)
}

// Key returns the pattern key the candidate contributes to.
func (c *AnnotationCandidate) Key() PatternKey {
	return NewPatternKey(c.Species, c.Term())
}

// Validate checks the candidate shape required before it is stored.
func (c *AnnotationCandidate) Validate() error {
	if strings.TrimSpace(c.SpanishTerm) == "" || strings.TrimSpace(c.EnglishTerm) == "" {
		return fmt.Errorf("%w: candidate term pair must be non-empty", ErrValidation)
	}
	if err := c.Box.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: candidate confidence %v outside [0,1]", ErrValidation, c.Confidence)
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: unknown feature type %q", ErrValidation, c.Type)
	}
	return nil
}
