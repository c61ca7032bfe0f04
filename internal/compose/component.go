package compose

import (
	"image"
	"image/color"
)

// Component is one layer of a composition: an ExternalImage or a Text.
// Layers are drawn in slice order.
type Component interface {
	isComponent()
}

// ExternalImage pastes a remote image. For a Circle, Position is the circle
// centre; for a Rect it is the top-left corner.
type ExternalImage struct {
	URL      string
	Position image.Point
	Shape    Shape
}

// Text draws wrapped, horizontally centred text. Position.Y is the top of the
// first line; Position.X is unused because every line is centred on the
// canvas.
type Text struct {
	Content  string
	Position image.Point
	FontSize float64
	Color    color.Color // nil means black
}

func (ExternalImage) isComponent() {}
func (Text) isComponent()          {}

// Shape is how an ExternalImage is cropped: Circle or Rect.
type Shape interface {
	isShape()
}

type Circle struct {
	Radius int
}

// Rect fits the image inside Size keeping its aspect ratio. A positive
// CornerRadius rounds the corners; with a Border colour, a frame of
// CornerRadius pixels is drawn around the image.
type Rect struct {
	Size         image.Point
	CornerRadius int
	Border       color.Color
}

func (Circle) isShape() {}
func (Rect) isShape()   {}

const (
	defaultRadius   = 30
	defaultFontSize = 16
)

var defaultRectSize = image.Pt(100, 100)
