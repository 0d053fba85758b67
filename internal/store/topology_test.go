package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketMembers(t *testing.T) {
	st := &replSetStatus{
		Set: "rs0",
		Members: []replSetMember{
			{Name: "node1:27017", StateStr: "SECONDARY", Health: 1},
			{Name: "node2:27017", StateStr: "PRIMARY", Health: 1},
			{Name: "node3:27017", StateStr: "SECONDARY", Health: 1},
		},
	}

	got := bucketMembers(st)

	assert.Equal(t, "rs0", got.SetName)
	require.NotNil(t, got.Primary)
	assert.Equal(t, "node2:27017", *got.Primary)
	assert.Equal(t, []string{"node1:27017", "node3:27017"}, got.Secondaries)
	assert.Equal(t, 3, got.MemberCount)
}

func TestBucketMembers_Leaderless(t *testing.T) {
	st := &replSetStatus{
		Set: "rs0",
		Members: []replSetMember{
			{Name: "node1:27017", StateStr: "SECONDARY", Health: 1},
			{Name: "node2:27017", StateStr: "RECOVERING", Health: 0},
		},
	}

	// A momentarily leaderless set is a valid snapshot, not a fault.
	got := bucketMembers(st)

	assert.Nil(t, got.Primary)
	assert.Equal(t, []string{"node1:27017"}, got.Secondaries)
	assert.Equal(t, 2, got.MemberCount)
}

func TestBucketMembers_NonVotingStatesExcluded(t *testing.T) {
	st := &replSetStatus{
		Set: "rs0",
		Members: []replSetMember{
			{Name: "node1:27017", StateStr: "PRIMARY", Health: 1},
			{Name: "node2:27017", StateStr: "ARBITER", Health: 1},
			{Name: "node3:27017", StateStr: "DOWN", Health: 0},
		},
	}

	got := bucketMembers(st)

	assert.Empty(t, got.Secondaries)
	assert.Equal(t, 3, got.MemberCount, "every reported member counts, whatever its state")
}

type fakeProber struct {
	pingErr   error
	routed    *replSetStatus
	routedErr error
	direct    *replSetStatus
	directErr error

	routedCalls int
	directCalls int
	directAddr  string
}

func (p *fakeProber) ping(context.Context) error { return p.pingErr }

func (p *fakeProber) routedStatus(context.Context) (*replSetStatus, error) {
	p.routedCalls++
	return p.routed, p.routedErr
}

func (p *fakeProber) directStatus(_ context.Context, addr string) (*replSetStatus, error) {
	p.directCalls++
	p.directAddr = addr
	return p.direct, p.directErr
}

func proberClient(p *fakeProber, fallbackAddr string) *Client {
	return &Client{prober: p, fallbackAddr: fallbackAddr}
}

func TestClusterStatus_RoutedQuery(t *testing.T) {
	p := &fakeProber{
		routed: &replSetStatus{
			Set: "rs0",
			Members: []replSetMember{
				{Name: "node1:27017", StateStr: "PRIMARY", Health: 1},
				{Name: "node2:27017", StateStr: "SECONDARY", Health: 1},
			},
		},
	}
	c := proberClient(p, "node1:27017")

	got, err := c.ClusterStatus(context.Background())
	require.NoError(t, err)

	require.NotNil(t, got.Primary)
	assert.Equal(t, "node1:27017", *got.Primary)
	assert.Equal(t, 1, p.routedCalls)
	assert.Zero(t, p.directCalls, "a healthy routed query never dials the fallback")
}

func TestClusterStatus_FallbackAfterRoutedFailure(t *testing.T) {
	p := &fakeProber{
		routedErr: errors.New("not running with --replSet"),
		direct: &replSetStatus{
			Set: "rs0",
			Members: []replSetMember{
				{Name: "node1:27017", StateStr: "PRIMARY", Health: 1},
			},
		},
	}
	c := proberClient(p, "node1:27017")

	got, err := c.ClusterStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rs0", got.SetName)
	assert.Equal(t, 1, p.directCalls)
	assert.Equal(t, "node1:27017", p.directAddr)
}

func TestClusterStatus_BothTiersFail(t *testing.T) {
	p := &fakeProber{
		routedErr: errors.New("routed query refused"),
		directErr: errors.New("connection refused"),
	}
	c := proberClient(p, "node1:27017")

	_, err := c.ClusterStatus(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 1, p.directCalls)
}

func TestClusterStatus_NoFallbackConfigured(t *testing.T) {
	p := &fakeProber{routedErr: errors.New("routed query refused")}
	c := proberClient(p, "")

	_, err := c.ClusterStatus(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Zero(t, p.directCalls, "no named fallback means no direct dial")
}

func TestMembers_PingFailureShortCircuits(t *testing.T) {
	p := &fakeProber{pingErr: errors.New("no reachable servers")}
	c := proberClient(p, "node1:27017")

	_, _, err := c.Members(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Zero(t, p.routedCalls, "a dead cluster is reported without introspection")
	assert.Zero(t, p.directCalls)
}

func TestMembers_ReportsHealthAndLag(t *testing.T) {
	ping := int64(3)
	p := &fakeProber{
		routed: &replSetStatus{
			Set: "rs0",
			Members: []replSetMember{
				{Name: "node1:27017", StateStr: "PRIMARY", Health: 1, Uptime: 4200},
				{Name: "node2:27017", StateStr: "SECONDARY", Health: 1, Uptime: 4100, PingMs: &ping},
				{Name: "node3:27017", StateStr: "(not reachable/healthy)", Health: 0},
			},
		},
	}
	c := proberClient(p, "")

	set, members, err := c.Members(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rs0", set)
	require.Len(t, members, 3)
	assert.True(t, members[0].Healthy)
	assert.Nil(t, members[0].PingMs, "the queried node reports no ping to itself")
	require.NotNil(t, members[1].PingMs)
	assert.Equal(t, int64(3), *members[1].PingMs)
	assert.False(t, members[2].Healthy)
}
