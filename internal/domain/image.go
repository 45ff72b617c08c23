package domain

import (
	"fmt"
	"strings"
	"time"
)

// Image is a catalogued bird photograph that can be submitted for annotation.
// Batches reference images by ID; the catalog supplies the location of the
// image data and the species it depicts.
type Image struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Species   string    `json:"species"`
	CreatedAt time.Time `json:"created_at"`
}

// NewImage creates a validated catalog entry.
func NewImage(id, uri, species string) (*Image, error) {
	img := &Image{
		ID:        strings.TrimSpace(id),
		URI:       strings.TrimSpace(uri),
		Species:   strings.TrimSpace(species),
		CreatedAt: time.Now().UTC(),
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks that every field needed to annotate the image is present.
func (i *Image) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: image ID cannot be empty", ErrValidation)
	}
	if i.URI == "" {
		return fmt.Errorf("%w: image URI cannot be empty", ErrValidation)
	}
	if i.Species == "" {
		return fmt.Errorf("%w: image species cannot be empty", ErrValidation)
	}
	return nil
}
