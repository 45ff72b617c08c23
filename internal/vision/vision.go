package vision

import (
	"context"
	"fmt"

	"github.com/phrazzld/aves-annotator/internal/domain"
)

var (
	// ErrInvalidResponse is returned when the service answers with something
	// that cannot be parsed. Retrying the same image will not help.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response", domain.ErrPermanentService)

	// ErrContentBlocked is returned when the service refuses the image.
	ErrContentBlocked = fmt.Errorf("%w: content blocked", domain.ErrPermanentService)
)

// Request describes one annotation call.
type Request struct {
	ImageID  string
	ImageURI string
	Species  string
	Prompt   string
}

// Client calls the vision service. Implementations classify failures by
// wrapping domain.ErrTransientService or domain.ErrPermanentService.
type Client interface {
	Annotate(ctx context.Context, req Request) (*Response, error)
}

// Response is the JSON document the service is asked to produce.
type Response struct {
	Annotations []CandidateSchema `json:"annotations"`
}

// CandidateSchema is one proposed annotation as returned on the wire.
type CandidateSchema struct {
	SpanishTerm string    `json:"spanishTerm"`
	EnglishTerm string    `json:"englishTerm"`
	BoundingBox BoxSchema `json:"boundingBox"`
	Type        string    `json:"type"`
	Confidence  float64   `json:"confidence"`
}

// BoxSchema is a normalized bounding box on the wire.
type BoxSchema struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Annotate implements Client.
func (f ClientFunc) Annotate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
