package compose

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// wrapRatio is the share of the canvas width a text line may use.
const wrapRatio = 0.8

// faceSet hands out one face per size for a single render. Faces are not
// safe for concurrent use, so every render gets its own set.
type faceSet struct {
	font  *opentype.Font
	faces map[float64]font.Face
}

func newFaceSet(f *opentype.Font) *faceSet {
	return &faceSet{font: f, faces: make(map[float64]font.Face)}
}

func (s *faceSet) get(size float64) (font.Face, error) {
	if size <= 0 {
		size = defaultFontSize
	}
	if face, ok := s.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %.0fpt face: %w", size, err)
	}
	s.faces[size] = face
	return face, nil
}

func (s *faceSet) close() {
	for _, face := range s.faces {
		_ = face.Close()
	}
}

// WrapText greedily breaks text into lines no wider than maxWidth. Words
// are never split or dropped; a word wider than maxWidth gets a line of its
// own.
func WrapText(face font.Face, text string, maxWidth int) []string {
	limit := fixed.I(maxWidth)
	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if line != "" && font.MeasureString(face, candidate) > limit {
			lines = append(lines, line)
			line = word
			continue
		}
		line = candidate
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func drawText(dst *image.RGBA, face font.Face, t Text) {
	width := dst.Bounds().Dx()
	lines := WrapText(face, t.Content, int(float64(width)*wrapRatio))

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor(t.Color)),
		Face: face,
	}
	for i, line := range lines {
		lw := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((width-lw)/2, t.Position.Y+i*lineHeight+metrics.Ascent.Ceil())
		d.DrawString(line)
	}
}
