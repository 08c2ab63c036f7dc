// Package grid maps raw pointer coordinates onto the canvas grid. Every client must
// compute the same cell for the same input, peers never re-validate a reported cell.
package grid

import (
	"math"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

// Snap rounds pos to the nearest multiple of gridSize (remainder below half rounds
// down, otherwise up) and clamps it into [0, extent-frameSize]. Total for any input.
func Snap(pos float64, extent, gridSize, frameSize int) int {
	upper := maxOffset(extent, gridSize, frameSize)

	switch {
	case math.IsNaN(pos):
		return 0
	case math.IsInf(pos, 1):
		return upper
	case math.IsInf(pos, -1):
		return 0
	}

	value := pos
	if gridSize > 0 {
		size := float64(gridSize)
		rem := math.Mod(pos, size)
		if rem < size/2 {
			value = pos - rem
		} else {
			value = pos + size - rem
		}
	}

	v := math.Round(value)
	if v <= 0 {
		return 0
	}
	if v >= float64(upper) {
		return upper
	}
	return int(v)
}

// maxOffset: наибольшее кратное gridSize, не превышающее extent-frameSize.
func maxOffset(extent, gridSize, frameSize int) int {
	limit := extent - frameSize
	if limit <= 0 {
		return 0
	}
	if gridSize > 0 {
		limit -= limit % gridSize
	}
	return limit
}

// Mapper snaps both axes with the same canvas configuration.
type Mapper struct {
	Width     int
	Height    int
	GridSize  int
	FrameSize int
}

func (m Mapper) Cell(x, y float64) domain.GridCell {
	return domain.GridCell{
		X: Snap(x, m.Width, m.GridSize, m.FrameSize),
		Y: Snap(y, m.Height, m.GridSize, m.FrameSize),
	}
}

// Contains reports whether c is a cell Mapper could have produced.
func (m Mapper) Contains(c domain.GridCell) bool {
	return m.Cell(float64(c.X), float64(c.Y)) == c
}
