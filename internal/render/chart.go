package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/service/cache"
	pkgcache "AnomalyReplay/pkg/cache"
)

// ErrNothingToRender is returned for the idle view.
var ErrNothingToRender = errors.New("no data to render")

var (
	valueColor     = drawing.Color{R: 0, G: 204, B: 150, A: 255}
	consensusColor = drawing.Color{R: 255, G: 0, B: 0, A: 255}
	truthColor     = drawing.Color{R: 255, G: 0, B: 0, A: 38}
)

// Renderer draws views as PNG charts.
type Renderer struct {
	width  int
	height int
}

func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1200
	}
	if height <= 0 {
		height = 650
	}
	return &Renderer{width: width, height: height}
}

// Render writes v as PNG. width and height override the defaults when > 0.
func (r *Renderer) Render(w io.Writer, v *models.View, width, height int) error {
	if width <= 0 {
		width = r.width
	}
	if height <= 0 {
		height = r.height
	}
	var ch chart.Chart
	switch {
	case v == nil:
		return ErrNothingToRender
	case v.Mode == models.ViewLive && v.Live != nil:
		ch = liveChart(v.Live)
	case v.Mode == models.ViewAnalysis && v.Analysis != nil:
		ch = analysisChart(v.Analysis)
	default:
		return ErrNothingToRender
	}
	ch.Width, ch.Height = width, height
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s chart: %w", v.Mode, err)
	}
	return nil
}

func liveChart(l *models.LiveSnapshot) chart.Chart {
	series := make([]chart.Series, 0, 3+2*len(l.Thresholds))
	if gt := l.GroundTruth; gt != nil {
		series = append(series, chart.TimeSeries{
			Name:    "Ground truth",
			XValues: []time.Time{gt.Start, gt.End},
			YValues: []float64{l.YRange.Max, l.YRange.Max},
			Style:   chart.Style{StrokeColor: drawing.ColorTransparent, FillColor: truthColor},
		})
	}
	series = append(series, pointSeries("Value", l.Series, chart.Style{StrokeColor: valueColor, StrokeWidth: 2}))
	for _, tr := range l.Thresholds {
		st := chart.Style{
			StrokeColor:     ParseRGBA(tr.Model.Color),
			StrokeWidth:     1,
			StrokeDashArray: []float64{2, 3},
		}
		series = append(series,
			bandSeries(tr.Model.Name+" upper", l.Series, tr.Upper, st),
			bandSeries(tr.Model.Name+" lower", l.Series, tr.Lower, st),
		)
	}
	if len(l.Consensus) > 0 {
		series = append(series, markerSeries("Consensus", l.Consensus))
	}
	return chart.Chart{
		Title:      fmt.Sprintf("Live %s  value %.1f  alerts %d", l.Status, l.Value, l.AlertCount),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      timeAxis(l.XRange),
		YAxis:      chart.YAxis{Name: "Value", Range: &chart.ContinuousRange{Min: l.YRange.Min, Max: l.YRange.Max}},
		Series:     series,
	}
}

func analysisChart(a *models.AnalysisSnapshot) chart.Chart {
	series := []chart.Series{pointSeries("History", a.History, chart.Style{StrokeColor: valueColor, StrokeWidth: 1})}
	if len(a.Alerts) > 0 {
		series = append(series, markerSeries("Consensus alerts", a.Alerts))
	}
	return chart.Chart{
		Title:      fmt.Sprintf("Analysis  %d/%d  alerts %d", a.Index, a.Total, a.AlertCount),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      timeAxis(a.XRange),
		YAxis:      chart.YAxis{Name: "Value", Range: &chart.ContinuousRange{Min: a.YRange.Min, Max: a.YRange.Max}},
		Series:     series,
	}
}

func pointSeries(name string, pts []models.Point, st chart.Style) chart.TimeSeries {
	xs := make([]time.Time, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.Timestamp, p.Value
	}
	return chart.TimeSeries{Name: name, XValues: xs, YValues: ys, Style: st}
}

// bandSeries pairs a threshold trace with the window timestamps. Empty cells
// are left out and the line joins across them.
func bandSeries(name string, window []models.Point, vals []*float64, st chart.Style) chart.TimeSeries {
	xs := make([]time.Time, 0, len(vals))
	ys := make([]float64, 0, len(vals))
	for i, v := range vals {
		if v == nil || i >= len(window) {
			continue
		}
		xs = append(xs, window[i].Timestamp)
		ys = append(ys, *v)
	}
	return chart.TimeSeries{Name: name, XValues: xs, YValues: ys, Style: st}
}

func markerSeries(name string, pts []models.Point) chart.TimeSeries {
	return pointSeries(name, pts, chart.Style{
		StrokeColor: drawing.ColorTransparent,
		DotWidth:    5,
		DotColor:    consensusColor,
	})
}

// timeAxis pins the x axis to span, widened to one second when it is empty.
func timeAxis(span models.Span) chart.XAxis {
	lo, hi := chart.TimeToFloat64(span.Start), chart.TimeToFloat64(span.End)
	if hi <= lo {
		hi = chart.TimeToFloat64(span.Start.Add(time.Second))
	}
	return chart.XAxis{
		ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
		Range:          &chart.ContinuousRange{Min: lo, Max: hi},
	}
}

// ParseRGBA reads "rgba(r, g, b, a)" or "rgb(r, g, b)" with a in [0,1].
// Unparsable input yields opaque gray.
func ParseRGBA(s string) drawing.Color {
	fallback := drawing.Color{R: 128, G: 128, B: 128, A: 255}
	s = strings.TrimSpace(strings.ToLower(s))
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return fallback
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) < 3 {
		return fallback
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return fallback
		}
		rgb[i] = uint8(n)
	}
	alpha := uint8(255)
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return fallback
		}
		alpha = uint8(a*255 + 0.5)
	}
	return drawing.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}
}

// CachedRenderer memoises PNGs per view, keyed on mode, cursor, zoom range
// and size.
type CachedRenderer struct {
	r     *Renderer
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCachedRenderer(r *Renderer, c cache.BytesCache, ttl time.Duration) *CachedRenderer {
	return &CachedRenderer{r: r, cache: c, ttl: ttl}
}

// PNG returns the rendered chart and whether it came from the cache. Cache
// failures fall back to rendering.
func (c *CachedRenderer) PNG(v *models.View, width, height int) ([]byte, bool, error) {
	key := ChartKey(v, width, height)
	if c.cache != nil && key != "" {
		if b, ok, err := c.cache.GetBytes(key); err == nil && ok {
			return b, true, nil
		}
	}
	var buf bytes.Buffer
	if err := c.r.Render(&buf, v, width, height); err != nil {
		return nil, false, err
	}
	if c.cache != nil && key != "" {
		_ = c.cache.SetBytes(key, buf.Bytes(), c.ttl)
	}
	return buf.Bytes(), false, nil
}

// ChartKey identifies a rendered view. The idle view has no key.
func ChartKey(v *models.View, width, height int) string {
	if v == nil {
		return ""
	}
	switch {
	case v.Live != nil:
		return pkgcache.GenerateKey("chart", "live", pkgcache.HashKey(v.Status.Dataset), v.Live.Index, width, height)
	case v.Analysis != nil:
		x := v.Analysis.XRange
		return pkgcache.GenerateKey("chart", "analysis", pkgcache.HashKey(v.Status.Dataset),
			v.Analysis.Index, x.Start.UnixMilli(), x.End.UnixMilli(), width, height)
	}
	return ""
}
