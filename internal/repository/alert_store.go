package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
	applogger "AnomalyReplay/pkg/logger"
)

type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ClickHouseAlertStore archives consensus alerts newly crossed by live ticks.
type ClickHouseAlertStore struct {
	db        sqlDB
	table     string
	sessionID string
	log       *applogger.Logger
}

// NewClickHouseAlertStore writes to table, which may be database-qualified.
func NewClickHouseAlertStore(db sqlDB, table, sessionID string, log *applogger.Logger) *ClickHouseAlertStore {
	if log == nil {
		log = applogger.Nop()
	}
	return &ClickHouseAlertStore{db: db, table: table, sessionID: sessionID, log: log.Component("alert_store")}
}

func (s *ClickHouseAlertStore) Name() string { return "clickhouse" }

// Publish inserts the live frame's new consensus points in one statement.
// Other frames are ignored.
func (s *ClickHouseAlertStore) Publish(ctx context.Context, v *models.View) error {
	if v == nil || v.Live == nil || len(v.Live.NewConsensus) == 0 {
		return nil
	}
	pts := v.Live.NewConsensus
	values := make([]string, 0, len(pts))
	args := make([]any, 0, len(pts)*6)
	for _, p := range pts {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, s.sessionID, v.Status.Dataset, uint32(p.Index), p.Timestamp, p.Value, uint8(models.AlertConsensus))
	}
	q := fmt.Sprintf("INSERT INTO %s (session_id, dataset, idx, ts, value, alert_level) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.log.Error("clickhouse insert alerts failed", applogger.Int("rows", len(pts)), applogger.Error(err))
		return fmt.Errorf("insert alerts: %w", err)
	}
	return nil
}

// Recent returns the latest archived alerts of this session, newest first.
func (s *ClickHouseAlertStore) Recent(ctx context.Context, limit int) ([]domrepo.ArchivedAlert, error) {
	q := fmt.Sprintf(`SELECT session_id, dataset, idx, ts, value, alert_level
FROM %s FINAL
WHERE session_id = ?
ORDER BY idx DESC
LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, s.sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := make([]domrepo.ArchivedAlert, 0, limit)
	for rows.Next() {
		var (
			a     domrepo.ArchivedAlert
			idx   uint32
			level uint8
		)
		if err := rows.Scan(&a.SessionID, &a.Dataset, &idx, &a.Point.Timestamp, &a.Point.Value, &level); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Point.Index = int(idx)
		a.Level = models.AlertLevel(level)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseAlertStore) Close() error { return nil }

// MemoryAlertStore keeps the most recent alerts in a ring buffer. It backs
// /api/alerts when ClickHouse is disabled.
type MemoryAlertStore struct {
	mu        sync.Mutex
	sessionID string
	buf       []domrepo.ArchivedAlert
	next      int
	full      bool
}

func NewMemoryAlertStore(sessionID string, capacity int) *MemoryAlertStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAlertStore{sessionID: sessionID, buf: make([]domrepo.ArchivedAlert, capacity)}
}

func (s *MemoryAlertStore) Name() string { return "memory_alerts" }

func (s *MemoryAlertStore) Publish(_ context.Context, v *models.View) error {
	if v == nil {
		return nil
	}
	// a stop rewinds the cursor; archived alerts describe the new pass only
	if v.Mode == models.ViewIdle {
		s.mu.Lock()
		s.next, s.full = 0, false
		s.mu.Unlock()
		return nil
	}
	if v.Live == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range v.Live.NewConsensus {
		s.buf[s.next] = domrepo.ArchivedAlert{SessionID: s.sessionID, Dataset: v.Status.Dataset, Point: p, Level: models.AlertConsensus}
		s.next = (s.next + 1) % len(s.buf)
		if s.next == 0 {
			s.full = true
		}
	}
	return nil
}

func (s *MemoryAlertStore) Recent(_ context.Context, limit int) ([]domrepo.ArchivedAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domrepo.ArchivedAlert, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, s.buf[(s.next-i+len(s.buf))%len(s.buf)])
	}
	return out, nil
}

func (s *MemoryAlertStore) Close() error { return nil }

var (
	_ domrepo.AlertStore = (*ClickHouseAlertStore)(nil)
	_ domrepo.AlertStore = (*MemoryAlertStore)(nil)
)
