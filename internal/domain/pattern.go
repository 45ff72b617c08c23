package domain

import (
	"strings"
	"time"
)

// PatternKey identifies a learned pattern. Species and term are normalized so
// that spelling differences in case or surrounding whitespace share a pattern.
type PatternKey struct {
	Species string `json:"species"`
	Term    string `json:"term"`
}

// NewPatternKey builds a normalized key.
func NewPatternKey(species, term string) PatternKey {
	return PatternKey{
		Species: NormalizeName(species),
		Term:    NormalizeName(term),
	}
}

// IsZero reports whether either half of the key is empty.
func (k PatternKey) IsZero() bool {
	return k.Species == "" || k.Term == ""
}

// String renders the key as "species/term".
func (k PatternKey) String() string {
	return k.Species + "/" + k.Term
}

// NormalizeName lowercases s and collapses runs of whitespace.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Pattern is the statistical summary of reviewer feedback for one
// (species, term) pair.
type Pattern struct {
	Key                 PatternKey     `json:"key"`
	SampleCount         int            `json:"sample_count"`
	ApprovalCount       int            `json:"approval_count"`
	RejectionCount      int            `json:"rejection_count"`
	CorrectionCount     int            `json:"correction_count"`
	TotalWeight         float64        `json:"total_weight"`
	MeanDelta           BoxDelta       `json:"mean_delta"`
	Confidence          float64        `json:"confidence"`
	RejectionReasons    map[string]int `json:"rejection_reasons"`
	LastRejectionReason string         `json:"last_rejection_reason,omitempty"`
	LastRejectionAt     *time.Time     `json:"last_rejection_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// NewPattern creates an empty pattern with the given starting confidence.
func NewPattern(key PatternKey, initialConfidence float64, now time.Time) *Pattern {
	return &Pattern{
		Key:              key,
		Confidence:       ClampUnit(initialConfidence),
		RejectionReasons: make(map[string]int),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsUsable reports whether enough samples have accumulated for the pattern
// to drive predictions.
func (p *Pattern) IsUsable(minSamples int) bool {
	return p != nil && p.SampleCount >= minSamples
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	c := *p
	c.RejectionReasons = make(map[string]int, len(p.RejectionReasons))
	for k, v := range p.RejectionReasons {
		c.RejectionReasons[k] = v
	}
	c.LastRejectionAt = cloneTime(p.LastRejectionAt)
	return &c
}

// TopRejectionReason returns the most frequent rejection reason, breaking
// ties alphabetically. It returns "" when the pattern was never rejected.
func (p *Pattern) TopRejectionReason() string {
	best, bestCount := "", 0
	for reason, count := range p.RejectionReasons {
		if count > bestCount || (count == bestCount && reason < best) {
			best, bestCount = reason, count
		}
	}
	return best
}
