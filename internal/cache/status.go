// Package cache keeps a warm cluster-status snapshot refreshed in the
// background, so the API index can report the last known leader without a
// store round-trip and leader changes show up in the logs.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/notes-bin/photoleader/internal/store"
)

// StatusSource is the slice of the Topology Monitor the cache consumes.
type StatusSource interface {
	ClusterStatus(ctx context.Context) (*store.ClusterStatus, error)
}

type Status struct {
	mu   sync.RWMutex
	last *store.ClusterStatus
}

// Snapshot returns the most recent cluster status, or nil before the
// first successful refresh.
func (s *Status) Snapshot() *store.ClusterStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// StartRefresh polls the cluster status every interval seconds until ctx
// is cancelled, logging leader changes as they happen.
func (s *Status) StartRefresh(ctx context.Context, src StatusSource, interval int) {
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := src.ClusterStatus(ctx)
			if err != nil {
				slog.Error("cluster status refresh failed", "error", err)
				continue
			}
			s.mu.Lock()
			prev := s.last
			s.last = st
			s.mu.Unlock()
			if leaderChanged(prev, st) {
				slog.Info("replica set leader changed",
					"set", st.SetName, "primary", leaderName(st))
			}
		}
	}
}

func leaderChanged(prev, cur *store.ClusterStatus) bool {
	if prev == nil {
		return cur.Primary != nil
	}
	return leaderName(prev) != leaderName(cur)
}

func leaderName(st *store.ClusterStatus) string {
	if st == nil || st.Primary == nil {
		return ""
	}
	return *st.Primary
}
