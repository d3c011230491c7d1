package visualization

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const plotMargin = 40

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	axisColor  = color.RGBA{R: 102, G: 102, B: 102, A: 255}
	seriesRGBA = color.RGBA{R: 55, G: 83, B: 109, A: 255}
)

// Rasterize draws a chart as a PNG image. It draws bars, wedges, points and
// lines with axes only; titles and tick labels are left to the HTML pages.
func Rasterize(c Chart) ([]byte, error) {
	width, height := c.Width, c.Height
	if width <= 2*plotMargin || height <= 2*plotMargin {
		width, height = defaultWidth, defaultHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	plot := image.Rect(plotMargin, plotMargin, width-plotMargin, height-plotMargin)

	switch c.Type {
	case Pie:
		drawPie(img, plot, c.Values)
	case Bar:
		drawAxes(img, plot)
		drawBars(img, plot, c.Values)
	case Histogram:
		drawAxes(img, plot)
		_, counts := Bins(c.X, histogramBins)
		drawBars(img, plot, counts)
	case Scatter:
		drawAxes(img, plot)
		drawPoints(img, plot, c.X, c.Y, false)
	case TimeSeries:
		drawAxes(img, plot)
		x := make([]float64, len(c.Y))
		for i := range x {
			x[i] = float64(i)
		}
		drawPoints(img, plot, x, c.Y, true)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawAxes(img *image.RGBA, plot image.Rectangle) {
	for x := plot.Min.X; x <= plot.Max.X; x++ {
		img.Set(x, plot.Max.Y, axisColor)
	}
	for y := plot.Min.Y; y <= plot.Max.Y; y++ {
		img.Set(plot.Min.X, y, axisColor)
	}
}

func drawBars(img *image.RGBA, plot image.Rectangle, values []float64) {
	if len(values) == 0 {
		return
	}
	top := 0.0
	for _, v := range values {
		top = math.Max(top, v)
	}
	if top == 0 {
		return
	}

	slot := float64(plot.Dx()) / float64(len(values))
	for i, v := range values {
		if v <= 0 {
			continue
		}
		x0 := plot.Min.X + int(float64(i)*slot+slot*0.1)
		x1 := plot.Min.X + int(float64(i+1)*slot-slot*0.1)
		if x1 <= x0 {
			x1 = x0 + 1
		}
		y0 := plot.Max.Y - int(v/top*float64(plot.Dy()))
		draw.Draw(img, image.Rect(x0, y0, x1, plot.Max.Y), &image.Uniform{C: seriesRGBA}, image.Point{}, draw.Src)
	}
}

func drawPie(img *image.RGBA, plot image.Rectangle, values []float64) {
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return
	}

	// cumulative end angle of each wedge, starting at twelve o'clock
	ends := make([]float64, len(values))
	acc := 0.0
	for i, v := range values {
		if v > 0 {
			acc += v
		}
		ends[i] = acc / total * 2 * math.Pi
	}

	cx := float64(plot.Min.X+plot.Max.X) / 2
	cy := float64(plot.Min.Y+plot.Max.Y) / 2
	radius := math.Min(float64(plot.Dx()), float64(plot.Dy())) / 2

	for y := plot.Min.Y; y < plot.Max.Y; y++ {
		for x := plot.Min.X; x < plot.Max.X; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			angle := math.Atan2(dx, -dy)
			if angle < 0 {
				angle += 2 * math.Pi
			}
			for i, end := range ends {
				if angle <= end {
					img.Set(x, y, paletteColor(i))
					break
				}
			}
		}
	}
}

func drawPoints(img *image.RGBA, plot image.Rectangle, xs, ys []float64, connect bool) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return
	}
	xMin, xMax := bounds(xs)
	yMin, yMax := bounds(ys)

	project := func(x, y float64) (int, int) {
		px := plot.Min.X + int(scale(x, xMin, xMax)*float64(plot.Dx()))
		py := plot.Max.Y - int(scale(y, yMin, yMax)*float64(plot.Dy()))
		return px, py
	}

	prevX, prevY := 0, 0
	for i := range xs {
		px, py := project(xs[i], ys[i])
		if connect && i > 0 {
			drawLine(img, prevX, prevY, px, py)
		}
		draw.Draw(img, image.Rect(px-3, py-3, px+3, py+3), &image.Uniform{C: seriesRGBA}, image.Point{}, draw.Src)
		prevX, prevY = px, py
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, seriesRGBA)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func bounds(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func scale(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var rasterPalette = []color.RGBA{
	rgb(55, 83, 109),
	rgb(26, 118, 255),
	rgb(255, 144, 14),
	rgb(44, 160, 101),
	rgb(214, 39, 40),
	rgb(148, 103, 189),
	rgb(140, 86, 75),
	rgb(227, 119, 194),
	rgb(127, 127, 127),
	rgb(188, 189, 34),
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func paletteColor(i int) color.RGBA {
	return rasterPalette[i%len(rasterPalette)]
}
