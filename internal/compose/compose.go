// Package compose renders frame images: a fixed background with remote
// images (circular or rectangular) and wrapped text layered on top.
package compose

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/opentype"
)

//go:embed assets/background.png
var defaultBackground []byte

var ErrNoTemplate = errors.New("background template unavailable")

// ImageFetcher resolves image URLs. The result must have the same length
// and order as urls, with nil for anything that could not be loaded.
// *fetch.Fetcher satisfies it.
type ImageFetcher interface {
	FetchMany(ctx context.Context, urls []string) []image.Image
}

// Options overrides the embedded background and font. Empty paths keep the
// defaults.
type Options struct {
	BackgroundPath string
	FontPath       string
}

// Compositor renders compositions onto a copy of its background template.
// It is safe for concurrent use.
type Compositor struct {
	fetcher    ImageFetcher
	background image.Image
	font       *opentype.Font
}

// New loads the background template and font. A template that cannot be
// read or decoded is an error: nothing can be rendered without it.
func New(fetcher ImageFetcher, opts Options) (*Compositor, error) {
	bg := defaultBackground
	if opts.BackgroundPath != "" {
		data, err := os.ReadFile(opts.BackgroundPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoTemplate, err)
		}
		bg = data
	}
	background, _, err := image.Decode(bytes.NewReader(bg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTemplate, err)
	}

	fontData := gomedium.TTF
	if opts.FontPath != "" {
		data, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		fontData = data
	}
	f, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Compositor{fetcher: fetcher, background: background, font: f}, nil
}

// Size returns the canvas dimensions.
func (c *Compositor) Size() image.Point {
	return c.background.Bounds().Size()
}

// Compose draws components in order and returns the PNG encoding. Remote
// images are fetched together up front; any that fail are left out.
func (c *Compositor) Compose(ctx context.Context, components []Component) ([]byte, error) {
	img, err := c.Render(ctx, components)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Render is Compose without the PNG encoding.
func (c *Compositor) Render(ctx context.Context, components []Component) (*image.RGBA, error) {
	if c.background == nil {
		return nil, ErrNoTemplate
	}

	canvas := image.NewRGBA(image.Rectangle{Max: c.Size()})
	draw.Draw(canvas, canvas.Bounds(), c.background, c.background.Bounds().Min, draw.Src)

	images := c.resolve(ctx, components)
	faces := newFaceSet(c.font)
	defer faces.close()

	for i, comp := range components {
		switch comp := comp.(type) {
		case ExternalImage:
			src := images[i]
			if src == nil {
				continue
			}
			switch shape := comp.Shape.(type) {
			case Circle:
				pasteCircle(canvas, src, comp.Position, shape.Radius)
			case Rect:
				pasteRect(canvas, src, comp.Position, shape)
			case nil:
				pasteRect(canvas, src, comp.Position, Rect{})
			}
		case Text:
			face, err := faces.get(comp.FontSize)
			if err != nil {
				return nil, err
			}
			drawText(canvas, face, comp)
		default:
			slog.Warn("skipping unknown component", "type", fmt.Sprintf("%T", comp))
		}
	}
	return canvas, nil
}

// resolve fetches each distinct URL once and maps the results back onto the
// component indexes.
func (c *Compositor) resolve(ctx context.Context, components []Component) []image.Image {
	out := make([]image.Image, len(components))

	var urls []string
	index := make(map[string]int)
	for _, comp := range components {
		ext, ok := comp.(ExternalImage)
		if !ok || ext.URL == "" {
			continue
		}
		if _, seen := index[ext.URL]; !seen {
			index[ext.URL] = len(urls)
			urls = append(urls, ext.URL)
		}
	}
	if len(urls) == 0 || c.fetcher == nil {
		return out
	}

	fetched := c.fetcher.FetchMany(ctx, urls)
	for i, comp := range components {
		if ext, ok := comp.(ExternalImage); ok && ext.URL != "" {
			if j := index[ext.URL]; j < len(fetched) {
				out[i] = fetched[j]
			}
		}
	}
	return out
}

// pasteCircle centre-crops src to a square, scales it to 2r×2r and draws it
// through a circular mask centred on centre.
func pasteCircle(dst draw.Image, src image.Image, centre image.Point, r int) {
	if r <= 0 {
		r = defaultRadius
	}
	side := 2 * r

	b := src.Bounds()
	crop := b
	if b.Dx() > b.Dy() {
		off := (b.Dx() - b.Dy()) / 2
		crop = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+b.Dy(), b.Max.Y)
	} else if b.Dy() > b.Dx() {
		off := (b.Dy() - b.Dx()) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+b.Dx())
	}

	scaled := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, crop, draw.Src, nil)

	topLeft := centre.Sub(image.Pt(r, r))
	draw.DrawMask(dst, image.Rectangle{Min: topLeft, Max: topLeft.Add(image.Pt(side, side))},
		scaled, image.Point{}, &circleMask{r: r}, image.Point{}, draw.Over)
}

// pasteRect fits src inside shape.Size keeping its aspect ratio and draws it
// with its top-left corner at pos.
func pasteRect(dst draw.Image, src image.Image, pos image.Point, shape Rect) {
	box := shape.Size
	if box.X <= 0 || box.Y <= 0 {
		box = defaultRectSize
	}
	size := fitSize(src.Bounds().Size(), box)
	if size.X == 0 || size.Y == 0 {
		return
	}

	scaled := image.NewRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)

	r := shape.CornerRadius
	if r <= 0 {
		draw.Draw(dst, image.Rectangle{Min: pos, Max: pos.Add(size)}, scaled, image.Point{}, draw.Over)
		return
	}

	if shape.Border != nil {
		outer := size.Add(image.Pt(2*r, 2*r))
		draw.DrawMask(dst, image.Rectangle{Min: pos, Max: pos.Add(outer)},
			image.NewUniform(shape.Border), image.Point{},
			&roundedMask{w: outer.X, h: outer.Y, r: 2 * r}, image.Point{}, draw.Over)
		pos = pos.Add(image.Pt(r, r))
	}
	draw.DrawMask(dst, image.Rectangle{Min: pos, Max: pos.Add(size)},
		scaled, image.Point{}, &roundedMask{w: size.X, h: size.Y, r: r}, image.Point{}, draw.Over)
}

// fitSize scales src to the largest size inside box with the same aspect
// ratio.
func fitSize(src, box image.Point) image.Point {
	if src.X <= 0 || src.Y <= 0 {
		return image.Point{}
	}
	aspect := float64(src.X) / float64(src.Y)
	if float64(box.X)/float64(box.Y) > aspect {
		return image.Pt(max(1, int(aspect*float64(box.Y))), box.Y)
	}
	return image.Pt(box.X, max(1, int(float64(box.X)/aspect)))
}

func textColor(c color.Color) color.Color {
	if c == nil {
		return color.Black
	}
	return c
}
