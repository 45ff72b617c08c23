package domain

import (
	"fmt"
	"math"
)

// minBoxSide keeps adjusted boxes from collapsing to zero area.
const minBoxSide = 1e-6

// BoundingBox is a rectangle in normalized image coordinates.
// All fields are fractions of the image width or height.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoxDelta is the positional difference between two bounding boxes.
type BoxDelta struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	DW float64 `json:"dw"`
	DH float64 `json:"dh"`
}

// Validate checks that every coordinate lies in [0,1] and that the box has a
// positive width and height.
func (b BoundingBox) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"x", b.X},
		{"y", b.Y},
		{"width", b.Width},
		{"height", b.Height},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 1 {
			return fmt.Errorf("%w: bounding box %s %v outside [0,1]", ErrValidation, f.name, f.value)
		}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: bounding box must have positive width and height", ErrValidation)
	}
	return nil
}

// Add shifts the box by d and clamps the result back inside the unit square.
func (b BoundingBox) Add(d BoxDelta) BoundingBox {
	out := BoundingBox{
		X:      clamp(b.X+d.DX, 0, 1),
		Y:      clamp(b.Y+d.DY, 0, 1),
		Width:  b.Width + d.DW,
		Height: b.Height + d.DH,
	}
	out.Width = clamp(out.Width, minBoxSide, 1-out.X)
	out.Height = clamp(out.Height, minBoxSide, 1-out.Y)

	// A box pushed against the right or bottom edge keeps a sliver of area.
	if out.X > 1-minBoxSide {
		out.X = 1 - minBoxSide
		out.Width = minBoxSide
	}
	if out.Y > 1-minBoxSide {
		out.Y = 1 - minBoxSide
		out.Height = minBoxSide
	}
	return out
}

// DeltaBetween returns corrected - original.
func DeltaBetween(original, corrected BoundingBox) BoxDelta {
	return BoxDelta{
		DX: corrected.X - original.X,
		DY: corrected.Y - original.Y,
		DW: corrected.Width - original.Width,
		DH: corrected.Height - original.Height,
	}
}

// Magnitude returns the Euclidean length of the delta.
func (d BoxDelta) Magnitude() float64 {
	return math.Sqrt(d.DX*d.DX + d.DY*d.DY + d.DW*d.DW + d.DH*d.DH)
}

// Scale multiplies every component by f.
func (d BoxDelta) Scale(f float64) BoxDelta {
	return BoxDelta{DX: d.DX * f, DY: d.DY * f, DW: d.DW * f, DH: d.DH * f}
}

// Plus returns the component-wise sum.
func (d BoxDelta) Plus(o BoxDelta) BoxDelta {
	return BoxDelta{DX: d.DX + o.DX, DY: d.DY + o.DY, DW: d.DW + o.DW, DH: d.DH + o.DH}
}

// IsZero reports whether every component is zero.
func (d BoxDelta) IsZero() bool {
	return d == BoxDelta{}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampUnit clamps v to [0,1].
func ClampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}
