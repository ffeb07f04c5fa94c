package chart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBars(t *testing.T) {
	html, err := Bars(420, 220, []string{"10-01", "10-02"}, []Series{
		{Name: "In", Values: []float64{12, 4}},
		{Name: "Out", Values: []float64{3, 9}},
	}, Style{Title: "Stock movement"})
	require.NoError(t, err)
	out := string(html)
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Equal(t, 4+2, strings.Count(out, "<rect"), "four bars plus two legend swatches")
	assert.Contains(t, out, "stock-movement-bar-title")
	assert.Contains(t, out, ">Out<")
}

func TestBarsValidatesInput(t *testing.T) {
	_, err := Bars(0, 0, nil, []Series{{Values: []float64{1}}}, Style{})
	require.Error(t, err)
	_, err = Bars(0, 0, []string{"a"}, []Series{{Name: "x", Values: []float64{1, 2}}}, Style{})
	require.Error(t, err)
	_, err = Bars(10, 10, []string{"a"}, []Series{{Values: []float64{1}}}, Style{Padding: 20})
	require.Error(t, err)
}

func TestLineHandlesNegativeAndFlatSeries(t *testing.T) {
	html, err := Line(0, 0, []string{"a", "b", "c"}, Series{Name: "Net", Values: []float64{-5, 0, 7}}, Style{})
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(html), "<circle"))
	assert.Contains(t, string(html), "M")

	flat, err := Line(0, 0, []string{"a"}, Series{Values: []float64{0}}, Style{Title: "Flat"})
	require.NoError(t, err)
	assert.NotContains(t, string(flat), "NaN")
}

func TestTick(t *testing.T) {
	assert.Equal(t, "12", tick(12))
	assert.Equal(t, "2.5", tick(2.5))
	assert.Equal(t, "1.5k", tick(1500))
	assert.Equal(t, "25k", tick(25000))
	assert.Equal(t, "-2.0M", tick(-2_000_000))
}
