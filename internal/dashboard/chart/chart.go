// Package chart renders small server-side SVG charts for the dashboard.
package chart

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Defaults for dashboard charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 240
	DefaultPadding = 28.0
	DefaultTicks   = 5
)

// Style holds the colours and sizing shared by every chart.
type Style struct {
	Title       string
	Description string
	AxisColor   string
	GridColor   string
	Padding     float64
	Ticks       int
}

// frame is the plotting area and value scale of one chart.
type frame struct {
	width, height int
	pad           float64
	w, h          float64
	min, max      float64
	ticks         int
	style         Style
}

func newFrame(width, height int, style Style, values ...[]float64) (*frame, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	f := &frame{width: width, height: height, pad: style.Padding, ticks: style.Ticks, style: style}
	if f.pad <= 0 {
		f.pad = DefaultPadding
	}
	if f.ticks <= 0 {
		f.ticks = DefaultTicks
	}
	f.w = float64(width) - 2*f.pad
	f.h = float64(height) - 2*f.pad
	if f.w <= 0 || f.h <= 0 {
		return nil, fmt.Errorf("chart: viewport too small")
	}
	for _, series := range values {
		for _, v := range series {
			f.min = math.Min(f.min, v)
			f.max = math.Max(f.max, v)
		}
	}
	if f.max-f.min < 1e-9 {
		f.max = f.min + 1
	}
	return f, nil
}

// y maps a value to its vertical pixel position.
func (f *frame) y(v float64) float64 {
	return f.pad + f.h - (v-f.min)/(f.max-f.min)*f.h
}

func (f *frame) open(b *strings.Builder, kind string) {
	title := ident(f.style.Title, kind+"-title")
	desc := ident(f.style.Title, kind+"-desc")
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s" class="chart chart-%s">`,
		f.width, f.height, title, desc, kind)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, title, template.HTMLEscapeString(or(f.style.Title, "Chart")))
	fmt.Fprintf(b, `<desc id="%s">%s</desc>`, desc, template.HTMLEscapeString(f.style.Description))

	axis := or(f.style.AxisColor, "#475569")
	grid := or(f.style.GridColor, "#e2e8f0")
	for i := 0; i <= f.ticks; i++ {
		v := f.min + (f.max-f.min)*float64(i)/float64(f.ticks)
		y := f.y(v)
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`,
			f.pad, y, f.pad+f.w, y, grid)
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`,
			f.pad-6, y+4, axis, tick(v))
	}
	fmt.Fprintf(b, `<g stroke="%s" aria-hidden="true">`, axis)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f"></line>`, f.pad, f.pad, f.pad, f.pad+f.h)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f"></line>`, f.pad, f.y(0), f.pad+f.w, f.y(0))
	b.WriteString(`</g>`)
}

func (f *frame) label(b *strings.Builder, x float64, text string) {
	fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`,
		x, f.pad+f.h+14, or(f.style.AxisColor, "#475569"), template.HTMLEscapeString(text))
}

func (f *frame) legend(b *strings.Builder, entries [][2]string) {
	x := f.pad
	y := math.Max(f.pad-10, 12)
	for _, e := range entries {
		fmt.Fprintf(b, `<rect x="%.2f" y="%.2f" width="10" height="10" fill="%s"></rect>`, x, y-9, e[1])
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10">%s</text>`,
			x+14, y, or(f.style.AxisColor, "#475569"), template.HTMLEscapeString(e[0]))
		x += 14 + 7*float64(len(e[0])) + 16
	}
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func ident(base, suffix string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	id = strings.Trim(id, "-")
	if id == "" {
		id = "chart"
	}
	return id + "-" + suffix
}

func tick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.0fk", v/1_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case v == math.Trunc(v):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}
