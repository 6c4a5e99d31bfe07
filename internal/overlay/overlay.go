// Package overlay draws face boxes and their attribute labels onto frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/iverona/face-detect/internal/annotation"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options controls what the renderer draws.
type Options struct {
	// AttributeThreshold is the minimum confidence for a label to be drawn.
	AttributeThreshold float64
	// LinePitch is the vertical distance in pixels between stacked labels.
	LinePitch int
	// LabelOffset is the distance from the box bottom to the first baseline.
	LabelOffset int
	// Thickness of the box outline in pixels.
	Thickness int
	Color     color.NRGBA
}

// DefaultOptions returns the standard look: green 2px boxes,
// labels every 20px under the box.
func DefaultOptions() Options {
	return Options{
		AttributeThreshold: 0.6,
		LinePitch:          20,
		LabelOffset:        20,
		Thickness:          2,
		Color:              color.NRGBA{R: 0, G: 255, B: 0, A: 255},
	}
}

// Renderer draws detections. It holds no per-frame state.
type Renderer struct {
	opts Options
	face font.Face
}

// New returns a Renderer. Zero-valued pitch or thickness fall back to defaults.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.LinePitch <= 0 {
		opts.LinePitch = def.LinePitch
	}
	if opts.Thickness <= 0 {
		opts.Thickness = def.Thickness
	}
	if opts.Color == (color.NRGBA{}) {
		opts.Color = def.Color
	}
	return &Renderer{opts: opts, face: basicfont.Face7x13}
}

// Render returns a copy of frame with every event drawn on it, in order.
// The caller's frame is not modified.
func (r *Renderer) Render(frame image.Image, events []annotation.Event) *image.NRGBA {
	dst := imaging.Clone(frame)
	src := image.NewUniform(r.opts.Color)

	for _, ev := range events {
		rect := PixelBounds(ev.Box, dst.Bounds())
		strokeRect(dst, rect, r.opts.Thickness, src)

		d := &font.Drawer{Dst: dst, Src: src, Face: r.face}
		for i, label := range Labels(ev.Attributes, r.opts.AttributeThreshold) {
			baseline := rect.Max.Y - 1 + r.opts.LabelOffset + r.opts.LinePitch*i
			d.Dot = fixed.P(rect.Min.X, baseline)
			d.DrawString(label)
		}
	}
	return dst
}

// Labels returns the names of attributes at or above threshold, sorted so the
// label stack does not reorder as confidences jitter between frames.
func Labels(attrs []annotation.Attribute, threshold float64) []string {
	var out []string
	for _, a := range attrs {
		if a.Confidence >= threshold {
			out = append(out, a.Name)
		}
	}
	sort.Strings(out)
	return out
}

// PixelBounds scales a normalized box to frame pixels. The returned rectangle
// includes the right and bottom pixel columns/rows.
func PixelBounds(box annotation.BoundingBox, frame image.Rectangle) image.Rectangle {
	w, h := float64(frame.Dx()), float64(frame.Dy())
	left := frame.Min.X + int(box.Left*w)
	top := frame.Min.Y + int(box.Top*h)
	right := frame.Min.X + int(box.Right*w)
	bottom := frame.Min.Y + int(box.Bottom*h)
	return image.Rect(left, top, right+1, bottom+1)
}

// strokeRect draws an unfilled outline of r, t pixels thick, inside r.
func strokeRect(dst draw.Image, r image.Rectangle, t int, src image.Image) {
	if r.Empty() {
		return
	}
	edges := [4]image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // top
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // left
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		e = e.Intersect(r).Intersect(dst.Bounds())
		if !e.Empty() {
			draw.Draw(dst, e, src, image.Point{}, draw.Src)
		}
	}
}
