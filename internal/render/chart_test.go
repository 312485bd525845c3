package render

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/service/cache"
	"AnomalyReplay/internal/services/windowing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func testDataset(n int) *models.Dataset {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	present := []models.ModelInfo{models.KnownModels[0], models.KnownModels[3]}
	recs := make([]models.Record, n)
	for i := range recs {
		v := 20 + math.Sin(float64(i)/5)
		lo := math.NaN()
		if i%7 != 0 {
			lo = v - 2
		}
		recs[i] = models.Record{
			Timestamp:     t0.Add(time.Duration(i) * time.Minute),
			Value:         v,
			IsAnomaly:     models.Bool(i%10 == 0),
			ActualAnomaly: i > 20 && i < 25,
			Bands:         []models.Band{{Upper: v + 2, Lower: lo}, {Upper: v + 3, Lower: v - 3}},
		}
		if i%13 == 0 {
			recs[i].AlertLevel = models.AlertConsensus
		}
	}
	return models.NewDataset("test.csv", recs, present)
}

func TestRenderLiveAndAnalysis(t *testing.T) {
	ds := testDataset(60)
	r := NewRenderer(600, 300)

	live, err := windowing.BuildLive(ds, 25, 30, 500)
	if err != nil {
		t.Fatalf("build live: %v", err)
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, &models.View{Mode: models.ViewLive, Live: live}, 0, 0); err != nil {
		t.Fatalf("render live: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Fatalf("live output is not a png")
	}

	an, err := windowing.BuildAnalysis(ds, 60, models.TimeRange{})
	if err != nil {
		t.Fatalf("build analysis: %v", err)
	}
	buf.Reset()
	if err := r.Render(&buf, &models.View{Mode: models.ViewAnalysis, Analysis: an}, 400, 250); err != nil {
		t.Fatalf("render analysis: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Fatalf("analysis output is not a png")
	}
}

func TestRenderSinglePointWindow(t *testing.T) {
	ds := testDataset(10)
	live, err := windowing.BuildLive(ds, 0, 1, 500)
	if err != nil {
		t.Fatalf("build live: %v", err)
	}
	var buf bytes.Buffer
	if err := NewRenderer(0, 0).Render(&buf, &models.View{Mode: models.ViewLive, Live: live}, 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
}

func TestRenderIdle(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer(0, 0).Render(&buf, &models.View{Mode: models.ViewIdle}, 0, 0); !errors.Is(err, ErrNothingToRender) {
		t.Fatalf("expected ErrNothingToRender, got %v", err)
	}
}

func TestCachedRenderer(t *testing.T) {
	ds := testDataset(40)
	live, _ := windowing.BuildLive(ds, 5, 10, 500)
	v := &models.View{Mode: models.ViewLive, Status: models.PlaybackStatus{Dataset: ds.Source}, Live: live}
	c := NewCachedRenderer(NewRenderer(300, 200), cache.NewTTLCache(), time.Minute)

	first, hit, err := c.PNG(v, 0, 0)
	if err != nil || hit {
		t.Fatalf("first render hit=%v err=%v", hit, err)
	}
	second, hit, err := c.PNG(v, 0, 0)
	if err != nil || !hit || !bytes.Equal(first, second) {
		t.Fatalf("second render must be served from cache")
	}
	if _, hit, _ := c.PNG(v, 301, 200); hit {
		t.Fatalf("a different size must miss")
	}
}

func TestParseRGBA(t *testing.T) {
	c := ParseRGBA("rgba(0, 191, 255, 0.4)")
	if c.R != 0 || c.G != 191 || c.B != 255 || c.A != 102 {
		t.Fatalf("parsed %+v", c)
	}
	if c := ParseRGBA("rgb(1,2,3)"); c.A != 255 || c.B != 3 {
		t.Fatalf("rgb %+v", c)
	}
	if c := ParseRGBA("teal"); c.R != 128 || c.A != 255 {
		t.Fatalf("fallback %+v", c)
	}
}
