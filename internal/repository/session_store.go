package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
	"AnomalyReplay/pkg/cache"
)

// CacheSessionStore persists the playback cursor in a cache.Service, either
// in process or in Redis.
type CacheSessionStore struct {
	cache cache.Service
	key   string
	ttl   time.Duration
}

func NewCacheSessionStore(c cache.Service, sessionID string, ttl time.Duration) *CacheSessionStore {
	return &CacheSessionStore{cache: c, key: cache.GenerateKey("session", sessionID), ttl: ttl}
}

func (s *CacheSessionStore) Save(ctx context.Context, st models.SessionState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	if err := s.cache.Set(ctx, s.key, st, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", s.key, err)
	}
	return nil
}

func (s *CacheSessionStore) Load(ctx context.Context) (models.SessionState, bool, error) {
	var st models.SessionState
	if err := s.cache.Get(ctx, s.key, &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.SessionState{}, false, nil
		}
		return models.SessionState{}, false, fmt.Errorf("load session %s: %w", s.key, err)
	}
	return st, true, nil
}

var _ domrepo.SessionStore = (*CacheSessionStore)(nil)
