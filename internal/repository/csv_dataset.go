package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/domain/repository"
	"AnomalyReplay/internal/service/cache"
	applogger "AnomalyReplay/pkg/logger"
	"AnomalyReplay/pkg/util"
)

const (
	colTimestamp     = "timestamp"
	colValue         = "value"
	colAlertLevel    = "alert_level"
	colIsAnomaly     = "is_anomaly"
	colActualAnomaly = "actual_anomaly"
)

var requiredColumns = []string{colTimestamp, colValue, colAlertLevel, colIsAnomaly, colActualAnomaly}

// CSVDatasetLoader reads the replay CSV once per path and keeps the parsed
// dataset for the process lifetime.
type CSVDatasetLoader struct {
	cache   *cache.TTLCache
	log     *applogger.Logger
	metrics repository.Metrics
	mu      sync.Mutex
}

func NewCSVDatasetLoader(c *cache.TTLCache, log *applogger.Logger, m repository.Metrics) *CSVDatasetLoader {
	if c == nil {
		c = cache.NewTTLCache()
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &CSVDatasetLoader{cache: c, log: log.Component("dataset"), metrics: m}
}

var _ repository.DatasetLoader = (*CSVDatasetLoader)(nil)

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return "dataset:" + abs
	}
	return "dataset:" + path
}

// Load returns the cached dataset for path, reading the file on first use.
func (l *CSVDatasetLoader) Load(ctx context.Context, path string) (*models.Dataset, error) {
	key := cacheKey(path)
	if v, ok := l.cache.Get(key); ok {
		return v.(*models.Dataset), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.cache.Get(key); ok {
		return v.(*models.Dataset), nil
	}

	start := time.Now()
	ds, err := l.read(ctx, path)
	if l.metrics != nil {
		l.metrics.RecordLatency("dataset_load", time.Since(start).Seconds())
	}
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordError("dataset_load")
		}
		l.log.Error("dataset load failed", applogger.String("path", path), applogger.Error(err))
		return nil, err
	}
	l.cache.Set(key, ds, 0)
	l.log.Info("dataset loaded",
		applogger.String("path", path),
		applogger.Int("records", ds.Len()),
		applogger.Int("models", len(ds.Models)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return ds, nil
}

func (l *CSVDatasetLoader) read(ctx context.Context, path string) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	defer f.Close()
	return l.parse(ctx, path, f)
}

func (l *CSVDatasetLoader) parse(ctx context.Context, source string, r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", models.ErrSchema)
		}
		return nil, fmt.Errorf("%w: read header: %v", models.ErrIO, err)
	}
	header := append([]string(nil), head...)
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", models.ErrSchema, strings.Join(missing, ", "))
	}

	type bandCols struct{ up, lo int }
	var present []models.ModelInfo
	var bands []bandCols
	for _, m := range models.KnownModels {
		up, okUp := idx[m.ID.UpperColumn()]
		lo, okLo := idx[m.ID.LowerColumn()]
		switch {
		case okUp && okLo:
			present = append(present, m)
			bands = append(bands, bandCols{up: up, lo: lo})
		case okUp || okLo:
			l.log.Warn("incomplete threshold pair, model omitted", applogger.String("model", m.Name))
		default:
			l.log.Debug("model absent", applogger.String("model", m.Name))
		}
	}

	var records []models.Record
	line := 1
	var prev time.Time
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrSchema, line, err)
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := parseRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrSchema, line, err)
		}
		if len(records) > 0 && rec.Timestamp.Before(prev) {
			return nil, fmt.Errorf("%w: line %d: timestamp %s before previous %s",
				models.ErrSchema, line, rec.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = rec.Timestamp

		rec.Bands = make([]models.Band, len(bands))
		for i, b := range bands {
			up, err := util.ParseFloatCell(row[b.up])
			if err == nil && math.IsInf(up, 0) {
				err = fmt.Errorf("infinite threshold")
			}
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", models.ErrSchema, line, header[b.up], err)
			}
			lo, err := util.ParseFloatCell(row[b.lo])
			if err == nil && math.IsInf(lo, 0) {
				err = fmt.Errorf("infinite threshold")
			}
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", models.ErrSchema, line, header[b.lo], err)
			}
			rec.Bands[i] = models.Band{Upper: up, Lower: lo}
		}
		records = append(records, rec)
	}

	return models.NewDataset(source, records, present), nil
}

func parseRow(row []string, idx map[string]int) (models.Record, error) {
	var rec models.Record

	ts, ok := util.ParseTime(row[idx[colTimestamp]])
	if !ok {
		return rec, fmt.Errorf("timestamp %q", row[idx[colTimestamp]])
	}
	rec.Timestamp = ts

	v, err := util.ParseFloatCell(row[idx[colValue]])
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return rec, fmt.Errorf("value %q", row[idx[colValue]])
	}
	rec.Value = v

	lvl, err := util.ParseFloatCell(row[idx[colAlertLevel]])
	if err != nil {
		return rec, fmt.Errorf("alert_level %q", row[idx[colAlertLevel]])
	}
	if !math.IsNaN(lvl) {
		rec.AlertLevel = models.AlertLevel(int(lvl))
	}

	flag, valid, err := util.ParseFlagCell(row[idx[colIsAnomaly]])
	if err != nil {
		return rec, fmt.Errorf("is_anomaly: %v", err)
	}
	if valid {
		rec.IsAnomaly = models.Bool(flag)
	}

	actual, _, err := util.ParseFlagCell(row[idx[colActualAnomaly]])
	if err != nil {
		return rec, fmt.Errorf("actual_anomaly: %v", err)
	}
	rec.ActualAnomaly = actual
	return rec, nil
}
