package compose

import (
	"image"
	"image/color"
	"math"
)

// circleMask is an anti-aliased disc filling a 2r×2r square.
type circleMask struct {
	r int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle {
	return image.Rect(0, 0, 2*m.r, 2*m.r)
}

func (m *circleMask) At(x, y int) color.Color {
	r := float64(m.r)
	d := math.Hypot(float64(x)+0.5-r, float64(y)+0.5-r)
	return color.Alpha{A: coverage(r - d)}
}

// roundedMask is a w×h rectangle with corners of radius r.
type roundedMask struct {
	w, h, r int
}

func (m *roundedMask) ColorModel() color.Model { return color.AlphaModel }

func (m *roundedMask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.w, m.h)
}

func (m *roundedMask) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return color.Alpha{}
	}
	r := float64(min(m.r, m.w/2, m.h/2))
	px, py := float64(x)+0.5, float64(y)+0.5

	// only the four corner squares are curved
	cx, cy := px, py
	switch {
	case px < r:
		cx = r
	case px > float64(m.w)-r:
		cx = float64(m.w) - r
	}
	switch {
	case py < r:
		cy = r
	case py > float64(m.h)-r:
		cy = float64(m.h) - r
	}
	if cx == px || cy == py {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{A: coverage(r - math.Hypot(px-cx, py-cy))}
}

// coverage maps a signed distance from an edge (positive inside) to an
// alpha value with a one-pixel ramp.
func coverage(dist float64) uint8 {
	a := dist + 0.5
	switch {
	case a <= 0:
		return 0
	case a >= 1:
		return 0xff
	default:
		return uint8(a * 0xff)
	}
}
