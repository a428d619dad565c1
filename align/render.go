package align

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayRenderer draws the XY projection of an alignment: target cloud,
// source cloud under the solved pose, and residual segments
type OverlayRenderer struct {
	Source *Cloud
	Target *Cloud
	Pose   Pose
	Pairs  *Pairings

	Padding     float64 // world-unit border around the clouds
	PointRadius float64
	Resolution  canvas.Resolution // for PNG output

	TargetColor   color.RGBA
	SourceColor   color.RGBA
	ResidualColor color.RGBA
}

// NewOverlayRenderer creates a renderer with default colors and sizing
func NewOverlayRenderer(source, target *Cloud, pose Pose) *OverlayRenderer {
	return &OverlayRenderer{
		Source:        source,
		Target:        target,
		Pose:          pose,
		Padding:       0.5,
		PointRadius:   0.02,
		Resolution:    canvas.DPI(300),
		TargetColor:   color.RGBA{0, 0, 139, 255},   // dark blue
		SourceColor:   color.RGBA{139, 0, 0, 255},   // dark red
		ResidualColor: color.RGBA{120, 120, 120, 255},
	}
}

// canvasRenderer is implemented by both the svg and rasterizer backends
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the overlay as an SVG to the provided writer
func (r *OverlayRenderer) RenderSVG(w io.Writer) error {
	minX, minY, width, height := r.worldBounds()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, width, height)
	return svgRenderer.Close()
}

// RenderPNG writes the overlay as a PNG to the provided writer
func (r *OverlayRenderer) RenderPNG(w io.Writer) error {
	minX, minY, width, height := r.worldBounds()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, width, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws into either backend (shared logic for SVG and PNG)
func (r *OverlayRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// World to canvas: translate into the padded viewport. Canvas Y grows
	// upward, matching the world frame, so no flip is needed.
	toCanvas := func(x, y float64) (float64, float64) {
		return x - minX + r.Padding, y - minY + r.Padding
	}

	if r.Pairs != nil {
		lineStyle := canvas.DefaultStyle
		lineStyle.Fill = canvas.Paint{}
		lineStyle.Stroke = canvas.Paint{Color: r.ResidualColor}
		lineStyle.StrokeWidth = r.PointRadius / 2
		for _, p := range r.Pairs.PointPairs {
			g := r.Pose.Apply(p.Source)
			x1, y1 := toCanvas(g.X, g.Y)
			x2, y2 := toCanvas(p.Target.X, p.Target.Y)
			path := &canvas.Path{}
			path.MoveTo(x1, y1)
			path.LineTo(x2, y2)
			renderer.RenderPath(path, lineStyle, canvas.Identity)
		}
	}

	dot := canvas.Circle(r.PointRadius)

	targetStyle := canvas.DefaultStyle
	targetStyle.Fill = canvas.Paint{Color: r.TargetColor}
	for _, p := range r.Target.Points {
		x, y := toCanvas(p.X, p.Y)
		renderer.RenderPath(dot, targetStyle, canvas.Identity.Translate(x, y))
	}

	sourceStyle := canvas.DefaultStyle
	sourceStyle.Fill = canvas.Paint{Color: r.SourceColor}
	for _, p := range r.Source.Points {
		g := r.Pose.Apply(p)
		x, y := toCanvas(g.X, g.Y)
		renderer.RenderPath(dot, sourceStyle, canvas.Identity.Translate(x, y))
	}
}

// worldBounds returns the padded XY bounding box of both clouds
func (r *OverlayRenderer) worldBounds() (minX, minY, width, height float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64

	grow := func(x, y float64) {
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	for _, p := range r.Target.Points {
		grow(p.X, p.Y)
	}
	for _, p := range r.Source.Points {
		g := r.Pose.Apply(p)
		grow(g.X, g.Y)
	}
	if minX > maxX {
		minX, minY, maxX, maxY = 0, 0, 1, 1
	}

	width = (maxX - minX) + 2*r.Padding
	height = (maxY - minY) + 2*r.Padding
	return minX, minY, width, height
}

// Quicklook writes a small labelled raster overlay, one pixel per point.
// Cheaper than the vector render for dashboards polling frequently.
func (r *OverlayRenderer) Quicklook(w io.Writer, size int) error {
	if size <= 0 {
		size = 256
	}
	minX, minY, width, height := r.worldBounds()
	scale := float64(size) / math.Max(width, height)

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	plot := func(p Vec3, col color.NRGBA) {
		x := int((p.X - minX + r.Padding) * scale)
		y := size - 1 - int((p.Y-minY+r.Padding)*scale)
		if x >= 0 && x < size && y >= 0 && y < size {
			img.SetNRGBA(x, y, col)
		}
	}

	for _, p := range r.Target.Points {
		plot(p, color.NRGBA{0, 0, 139, 255})
	}
	for _, p := range r.Source.Points {
		plot(r.Pose.Apply(p), color.NRGBA{139, 0, 0, 255})
	}

	drawLabel(img, 4, 14, "target: "+r.Target.SensorID, color.NRGBA{0, 0, 139, 255})
	drawLabel(img, 4, 28, "source: "+r.Source.SensorID, color.NRGBA{139, 0, 0, 255})

	return png.Encode(w, img)
}

// drawLabel draws a text label at the given pixel position
func drawLabel(img *image.NRGBA, x, y int, label string, col color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(label)
}
