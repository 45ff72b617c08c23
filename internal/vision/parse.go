package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/domain"
)

// ParseResponse decodes the service's JSON answer. Markdown code fences
// around the document are tolerated.
func ParseResponse(text string) (*Response, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	return &resp, nil
}

// Rejected describes a proposal that failed validation.
type Rejected struct {
	Index int
	Err   error
}

// ValidateCandidates converts the proposals in resp into domain candidates for
// itemID. Malformed proposals are returned in rejected and never fail the
// whole response.
func ValidateCandidates(
	itemID uuid.UUID,
	species string,
	resp *Response,
	now time.Time,
) (valid []*domain.AnnotationCandidate, rejected []Rejected) {
	if resp == nil {
		return nil, nil
	}

	valid = make([]*domain.AnnotationCandidate, 0, len(resp.Annotations))
	for i, a := range resp.Annotations {
		c := &domain.AnnotationCandidate{
			ID:          uuid.New(),
			ItemID:      itemID,
			Species:     species,
			SpanishTerm: strings.TrimSpace(a.SpanishTerm),
			EnglishTerm: strings.TrimSpace(a.EnglishTerm),
			Box: domain.BoundingBox{
				X:      a.BoundingBox.X,
				Y:      a.BoundingBox.Y,
				Width:  a.BoundingBox.Width,
				Height: a.BoundingBox.Height,
			},
			Type:       domain.FeatureType(strings.ToLower(strings.TrimSpace(a.Type))),
			Confidence: a.Confidence,
			CreatedAt:  now,
		}
		if err := c.Validate(); err != nil {
			rejected = append(rejected, Rejected{Index: i, Err: err})
			continue
		}
		valid = append(valid, c)
	}
	return valid, rejected
}
