package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBox_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"valid box", BoundingBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}, false},
		{"full image", BoundingBox{X: 0, Y: 0, Width: 1, Height: 1}, false},
		{"negative x", BoundingBox{X: -0.1, Y: 0.2, Width: 0.3, Height: 0.4}, true},
		{"y above one", BoundingBox{X: 0.1, Y: 1.2, Width: 0.3, Height: 0.4}, true},
		{"zero width", BoundingBox{X: 0.1, Y: 0.2, Width: 0, Height: 0.4}, true},
		{"zero height", BoundingBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0}, true},
		{"NaN", BoundingBox{X: math.NaN(), Y: 0.2, Width: 0.3, Height: 0.4}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.box.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBoundingBox_Add(t *testing.T) {
	t.Parallel()

	t.Run("shifts inside bounds", func(t *testing.T) {
		t.Parallel()
		box := BoundingBox{X: 0.2, Y: 0.3, Width: 0.1, Height: 0.1}
		got := box.Add(BoxDelta{DX: 0.03, DY: 0.01})
		assert.InDelta(t, 0.23, got.X, 1e-9)
		assert.InDelta(t, 0.31, got.Y, 1e-9)
		assert.InDelta(t, 0.1, got.Width, 1e-9)
		assert.InDelta(t, 0.1, got.Height, 1e-9)
		assert.NoError(t, got.Validate())
	})

	t.Run("clamps at the edges", func(t *testing.T) {
		t.Parallel()
		box := BoundingBox{X: 0.9, Y: 0.05, Width: 0.2, Height: 0.1}
		got := box.Add(BoxDelta{DX: 0.2, DY: -0.5, DW: 0.5})
		assert.NoError(t, got.Validate())
		assert.LessOrEqual(t, got.X+got.Width, 1.0+1e-12)
		assert.Equal(t, 0.0, got.Y)
	})

	t.Run("never collapses to zero area", func(t *testing.T) {
		t.Parallel()
		box := BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1}
		got := box.Add(BoxDelta{DW: -1, DH: -1})
		assert.NoError(t, got.Validate())
	})
}

func TestDeltaBetween(t *testing.T) {
	t.Parallel()

	original := BoundingBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}
	corrected := BoundingBox{X: 0.14, Y: 0.11, Width: 0.2, Height: 0.25}

	d := DeltaBetween(original, corrected)
	assert.InDelta(t, 0.04, d.DX, 1e-9)
	assert.InDelta(t, 0.01, d.DY, 1e-9)
	assert.InDelta(t, 0.0, d.DW, 1e-9)
	assert.InDelta(t, 0.05, d.DH, 1e-9)
	assert.InDelta(t, math.Sqrt(0.04*0.04+0.01*0.01+0.05*0.05), d.Magnitude(), 1e-9)
}
