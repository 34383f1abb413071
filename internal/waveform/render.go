package waveform

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Style controls frame appearance.
type Style struct {
	Background color.RGBA
	PlotArea   color.RGBA
	Waveform   color.RGBA
	Label      color.RGBA
	// FillAlpha is the opacity of the area between the waveform and zero.
	FillAlpha uint8
	// YRange is the amplitude shown at the top and bottom edge of the plot.
	YRange float64
	// LabelScale enlarges the 7x13 bitmap font.
	LabelScale int
}

// DefaultStyle is green-on-black with a ±1.2 amplitude range. The label
// shares the waveform colour.
func DefaultStyle() Style {
	return Style{
		Background: color.RGBA{0x00, 0x00, 0x00, 0xff},
		PlotArea:   color.RGBA{0x1a, 0x1a, 0x1a, 0xff},
		Waveform:   color.RGBA{0x00, 0xff, 0x00, 0xff},
		Label:      color.RGBA{0x00, 0xff, 0x00, 0xff},
		FillAlpha:  178, // 0.7
		YRange:     1.2,
		LabelScale: 3,
	}
}

// Renderer draws waveform windows onto fixed-size frames.
type Renderer struct {
	Width  int
	Height int
	Style  Style

	plot image.Rectangle
}

// NewRenderer creates a renderer for width x height frames. The plot area
// uses the same proportional margins as a default matplotlib axes.
func NewRenderer(width, height int, style Style) *Renderer {
	plot := image.Rect(
		width*125/1000,
		height*12/100,
		width*900/1000,
		height*89/100,
	)
	return &Renderer{Width: width, Height: height, Style: style, plot: plot}
}

// PlotArea returns the rectangle the waveform is drawn in.
func (r *Renderer) PlotArea() image.Rectangle {
	return r.plot
}

// Render draws samples across the plot area and the progress label in its
// top-right corner. An empty window yields a frame with no waveform.
func (r *Renderer) Render(samples []float64, progress float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.Style.Background), image.Point{}, draw.Src)
	draw.Draw(img, r.plot, image.NewUniform(r.Style.PlotArea), image.Point{}, draw.Src)

	r.drawWaveform(img, samples)
	r.drawLabel(img, fmt.Sprintf("%.1f%%", progress))

	return img
}

func (r *Renderer) drawWaveform(img *image.RGBA, samples []float64) {
	n := len(samples)
	if n == 0 {
		return
	}

	w := r.plot.Dx()
	zero := r.yFor(0)
	fill := image.NewUniform(color.NRGBA{
		R: r.Style.Waveform.R, G: r.Style.Waveform.G, B: r.Style.Waveform.B, A: r.Style.FillAlpha,
	})
	line := image.NewUniform(r.Style.Waveform)

	for col := range w {
		a := col * n / w
		b := max(a+1, (col+1)*n/w)
		// Include the next sample so consecutive columns join up.
		lo, hi := samples[a], samples[a]
		for _, s := range samples[a:min(b+1, n)] {
			lo = min(lo, s)
			hi = max(hi, s)
		}

		x := r.plot.Min.X + col
		yHi, yLo := r.yFor(hi), r.yFor(lo)

		fillTop, fillBottom := min(yHi, zero), max(yLo, zero)
		draw.Draw(img, image.Rect(x, fillTop, x+1, fillBottom+1), fill, image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(x, yHi, x+1, yLo+1), line, image.Point{}, draw.Src)
	}
}

// yFor maps an amplitude to a pixel row inside the plot area.
func (r *Renderer) yFor(v float64) int {
	h := float64(r.plot.Dy() - 1)
	y := float64(r.plot.Min.Y) + (r.Style.YRange-v)/(2*r.Style.YRange)*h
	return min(max(int(y+0.5), r.plot.Min.Y), r.plot.Max.Y-1)
}

func (r *Renderer) drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	scale := max(1, r.Style.LabelScale)

	adv := font.MeasureString(face, text).Ceil()
	lineH := face.Metrics().Height.Ceil()
	mask := image.NewRGBA(image.Rect(0, 0, adv, lineH))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(r.Style.Label),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	// Anchor the scaled text at 98%/95% of the plot area, right/top aligned.
	right := r.plot.Min.X + r.plot.Dx()*98/100
	top := r.plot.Max.Y - r.plot.Dy()*95/100
	dst := image.Rect(right-adv*scale, top, right, top+lineH*scale)
	xdraw.NearestNeighbor.Scale(img, dst, mask, mask.Bounds(), xdraw.Over, nil)
}
