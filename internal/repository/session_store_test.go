package repository

import (
	"context"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/pkg/cache"
)

func TestCacheSessionStore(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewCacheSessionStore(mc, "default", time.Hour)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := store.Save(ctx, models.SessionState{Index: 120, Speed: models.SpeedFast, Dataset: "data.csv"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	st, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if st.Index != 120 || st.Speed != models.SpeedFast || st.Dataset != "data.csv" || st.UpdatedAt.IsZero() {
		t.Fatalf("loaded %+v", st)
	}

	other := NewCacheSessionStore(mc, "other", time.Hour)
	if _, ok, _ := other.Load(ctx); ok {
		t.Fatalf("sessions must not share keys")
	}
}
