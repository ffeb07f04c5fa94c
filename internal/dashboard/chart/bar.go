package chart

import (
	"fmt"
	"html/template"
	"strings"
)

// Series is one named run of values.
type Series struct {
	Name   string
	Color  string
	Values []float64
}

var palette = []string{"#0ea5e9", "#f97316", "#22c55e", "#a855f7"}

// Bars renders a grouped bar chart with one group per label.
func Bars(width, height int, labels []string, series []Series, style Style) (template.HTML, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("chart: labels required")
	}
	if len(series) == 0 {
		return "", fmt.Errorf("chart: at least one series required")
	}
	values := make([][]float64, len(series))
	for i, s := range series {
		if len(s.Values) != len(labels) {
			return "", fmt.Errorf("chart: series %q has %d values for %d labels", s.Name, len(s.Values), len(labels))
		}
		values[i] = s.Values
	}
	f, err := newFrame(width, height, style, values...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	f.open(&b, "bar")
	group := f.w / float64(len(labels))
	bar := group * 0.8 / float64(len(series))
	zero := f.y(0)
	legend := make([][2]string, len(series))
	for si, s := range series {
		color := or(s.Color, palette[si%len(palette)])
		legend[si] = [2]string{s.Name, color}
		for i, v := range s.Values {
			x := f.pad + float64(i)*group + group*0.1 + float64(si)*bar
			top, bottom := f.y(v), zero
			if top > bottom {
				top, bottom = bottom, top
			}
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s %s: %s</title></rect>`,
				x, top, bar, bottom-top, color, template.HTMLEscapeString(s.Name), template.HTMLEscapeString(labels[i]), tick(v))
		}
	}
	for i, l := range labels {
		if len(labels) > 14 && i%2 == 1 {
			continue
		}
		f.label(&b, f.pad+float64(i)*group+group/2, l)
	}
	f.legend(&b, legend)
	b.WriteString(`</svg>`)
	return template.HTML(b.String()), nil
}
