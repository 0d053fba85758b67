package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notes-bin/photoleader/internal/store"
)

func statusWithPrimary(name string) *store.ClusterStatus {
	st := &store.ClusterStatus{SetName: "rs0"}
	if name != "" {
		st.Primary = &name
	}
	return st
}

func TestLeaderChanged(t *testing.T) {
	tests := []struct {
		name string
		prev *store.ClusterStatus
		cur  *store.ClusterStatus
		want bool
	}{
		{"first snapshot with leader", nil, statusWithPrimary("a"), true},
		{"first snapshot leaderless", nil, statusWithPrimary(""), false},
		{"same leader", statusWithPrimary("a"), statusWithPrimary("a"), false},
		{"failover", statusWithPrimary("a"), statusWithPrimary("b"), true},
		{"leader lost", statusWithPrimary("a"), statusWithPrimary(""), true},
		{"leader elected", statusWithPrimary(""), statusWithPrimary("a"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leaderChanged(tt.prev, tt.cur))
		})
	}
}

func TestSnapshot(t *testing.T) {
	s := &Status{}
	assert.Nil(t, s.Snapshot())

	st := statusWithPrimary("node1:27017")
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	assert.Equal(t, st, s.Snapshot())
}
