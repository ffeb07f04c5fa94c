package chart

import (
	"fmt"
	"html/template"
	"strings"
)

// Line renders one series as a line with a shaded area down to zero.
func Line(width, height int, labels []string, s Series, style Style) (template.HTML, error) {
	if len(s.Values) == 0 {
		return "", fmt.Errorf("chart: series required")
	}
	if len(s.Values) != len(labels) {
		return "", fmt.Errorf("chart: %d labels for %d values", len(labels), len(s.Values))
	}
	f, err := newFrame(width, height, style, s.Values)
	if err != nil {
		return "", err
	}
	color := or(s.Color, "#2563eb")

	xs := make([]float64, len(s.Values))
	for i := range s.Values {
		if len(s.Values) == 1 {
			xs[i] = f.pad + f.w/2
			continue
		}
		xs[i] = f.pad + float64(i)*f.w/float64(len(s.Values)-1)
	}
	var path strings.Builder
	for i, v := range s.Values {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&path, "%s%.2f %.2f ", cmd, xs[i], f.y(v))
	}
	line := strings.TrimSpace(path.String())

	var b strings.Builder
	f.open(&b, "line")
	zero := f.y(0)
	fmt.Fprintf(&b, `<path d="%s L%.2f %.2f L%.2f %.2f Z" fill="%s" fill-opacity="0.12" stroke="none" aria-hidden="true"></path>`,
		line, xs[len(xs)-1], zero, xs[0], zero, color)
	fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"></path>`, line, color)
	for i, v := range s.Values {
		fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="2.5" fill="%s"><title>%s: %s</title></circle>`,
			xs[i], f.y(v), color, template.HTMLEscapeString(labels[i]), tick(v))
	}
	for i, l := range labels {
		if len(labels) > 14 && i%2 == 1 {
			continue
		}
		f.label(&b, xs[i], l)
	}
	if s.Name != "" {
		f.legend(&b, [][2]string{{s.Name, color}})
	}
	b.WriteString(`</svg>`)
	return template.HTML(b.String()), nil
}
