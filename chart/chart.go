// Package chart renders run output to PNG using raylib's CPU image API.
// No window or GL context is required.
package chart

import (
	"errors"
	"fmt"
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/radiate/telemetry"
)

// Output file names.
const (
	BalancesPNG = "balances.png"
	LevelsPNG   = "levels.png"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

var (
	background  = rl.NewColor(18, 18, 24, 255)
	axisColor   = rl.NewColor(120, 120, 130, 255)
	sourceColor = rl.NewColor(255, 140, 40, 255)
	envColor    = rl.NewColor(80, 170, 255, 255)
	barColor    = rl.NewColor(150, 110, 255, 255)
)

// Size is the image size in pixels.
type Size struct {
	Width, Height int
}

// DefaultSize is used when a zero Size is passed.
var DefaultSize = Size{Width: 960, Height: 540}

const margin = 40

// frame maps data coordinates into the plot area.
type frame struct {
	w, h       int
	xMax, yMax float64
}

func (f frame) point(x, y float64) (int32, int32) {
	pw := float64(f.w - 2*margin)
	ph := float64(f.h - 2*margin)
	px := margin + x/f.xMax*pw
	py := float64(f.h-margin) - y/f.yMax*ph
	return int32(px), int32(py)
}

func (f frame) drawAxes(img *rl.Image) {
	rl.ImageDrawLine(img, margin, int32(f.h-margin), int32(f.w-margin), int32(f.h-margin), axisColor)
	rl.ImageDrawLine(img, margin, margin, margin, int32(f.h-margin), axisColor)
}

func (s Size) orDefault() Size {
	if s.Width <= 2*margin || s.Height <= 2*margin {
		return DefaultSize
	}
	return s
}

// RenderBalances plots source and environment balances against tick.
func RenderBalances(records []telemetry.BalanceRecord, path string, size Size) error {
	if len(records) == 0 {
		return ErrNoData
	}
	size = size.orDefault()

	yMax := 0.0
	for _, r := range records {
		yMax = max(yMax, r.SourceBalance, r.EnvironmentBalance)
	}
	if yMax <= 0 {
		yMax = 1
	}
	f := frame{w: size.Width, h: size.Height, xMax: float64(max(records[len(records)-1].Tick, 1)), yMax: yMax}

	img := rl.GenImageColor(size.Width, size.Height, background)
	defer rl.UnloadImage(img)
	f.drawAxes(img)

	plot := func(value func(telemetry.BalanceRecord) float64, col color.RGBA) {
		px, py := f.point(float64(records[0].Tick), value(records[0]))
		for _, r := range records[1:] {
			x, y := f.point(float64(r.Tick), value(r))
			rl.ImageDrawLine(img, px, py, x, y, col)
			px, py = x, y
		}
	}
	plot(func(r telemetry.BalanceRecord) float64 { return r.SourceBalance }, sourceColor)
	plot(func(r telemetry.BalanceRecord) float64 { return r.EnvironmentBalance }, envColor)

	return export(img, path)
}

// RenderLevels draws one bar per environment level.
func RenderLevels(levels []float64, path string, size Size) error {
	if len(levels) == 0 {
		return ErrNoData
	}
	size = size.orDefault()

	yMax := 0.0
	for _, v := range levels {
		yMax = max(yMax, v)
	}
	if yMax <= 0 {
		yMax = 1
	}
	f := frame{w: size.Width, h: size.Height, xMax: float64(len(levels)), yMax: yMax}

	img := rl.GenImageColor(size.Width, size.Height, background)
	defer rl.UnloadImage(img)
	f.drawAxes(img)

	barW := max(int32((size.Width-2*margin)/len(levels))-1, 1)
	for i, v := range levels {
		x, y := f.point(float64(i), v)
		_, base := f.point(float64(i), 0)
		if h := base - y; h > 0 {
			rl.ImageDrawRectangle(img, x, y, barW, h, barColor)
		}
	}

	return export(img, path)
}

func export(img *rl.Image, path string) error {
	if !rl.ExportImage(*img, path) {
		return fmt.Errorf("exporting %s", path)
	}
	return nil
}
