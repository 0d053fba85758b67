package store

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClusterStatus is a live snapshot of the replica set, recomputed on every
// query and never persisted. Primary is nil while no leader is elected;
// that is not an error, only total unreachability is.
type ClusterStatus struct {
	SetName     string   `json:"replica_set"`
	Primary     *string  `json:"primary"`
	Secondaries []string `json:"secondaries"`
	MemberCount int      `json:"members_count"`
}

// Member is the detailed per-node view behind the replica status page.
type Member struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Healthy    bool   `json:"healthy"`
	UptimeSecs int64  `json:"uptime"`
	PingMs     *int64 `json:"ping_ms,omitempty"`
}

// Raw replSetGetStatus shapes. Only the fields the monitor consumes are
// decoded; the command returns far more.
type replSetStatus struct {
	Set     string          `bson:"set"`
	Members []replSetMember `bson:"members"`
}

type replSetMember struct {
	Name     string  `bson:"name"`
	StateStr string  `bson:"stateStr"`
	Health   float64 `bson:"health"`
	Uptime   int64   `bson:"uptime"`
	PingMs   *int64  `bson:"pingMs"`
}

// ClusterStatus probes liveness, then introspects the replica set and
// buckets each member by its reported role.
func (c *Client) ClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	st, err := c.replSetGetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return bucketMembers(st), nil
}

// Members returns the set name and the detailed per-member report.
func (c *Client) Members(ctx context.Context) (string, []Member, error) {
	st, err := c.replSetGetStatus(ctx)
	if err != nil {
		return "", nil, err
	}
	members := make([]Member, 0, len(st.Members))
	for _, m := range st.Members {
		members = append(members, Member{
			Name:       m.Name,
			State:      m.StateStr,
			Healthy:    m.Health == 1,
			UptimeSecs: m.Uptime,
			PingMs:     m.PingMs,
		})
	}
	return st.Set, members, nil
}

// topologyProber issues the liveness and topology commands. The routed
// variant goes through the replica-set connection, the direct variant
// dials one named member and asks it alone.
type topologyProber interface {
	ping(ctx context.Context) error
	routedStatus(ctx context.Context) (*replSetStatus, error)
	directStatus(ctx context.Context, addr string) (*replSetStatus, error)
}

// driverProber is the production prober, backed by the shared driver
// client.
type driverProber struct {
	client *mongo.Client
}

func (p *driverProber) ping(ctx context.Context) error {
	return p.client.Ping(ctx, nil)
}

func (p *driverProber) routedStatus(ctx context.Context) (*replSetStatus, error) {
	return runReplSetGetStatus(ctx, p.client)
}

func (p *driverProber) directStatus(ctx context.Context, addr string) (*replSetStatus, error) {
	dc, err := mongo.Connect(ctx, options.Client().
		SetHosts([]string{addr}).
		SetDirect(true).
		SetServerSelectionTimeout(opTimeout))
	if err != nil {
		return nil, err
	}
	defer func() { _ = dc.Disconnect(context.Background()) }()
	return runReplSetGetStatus(ctx, dc)
}

func runReplSetGetStatus(ctx context.Context, mc *mongo.Client) (*replSetStatus, error) {
	var st replSetStatus
	err := mc.Database("admin").
		RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).
		Decode(&st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// replSetGetStatus is the two-tier topology query: a cheap ping first (a
// dead cluster is reported without introspection), then the routed
// command, then one retry over a direct connection to the configured
// known-primary address before giving up as unreachable.
func (c *Client) replSetGetStatus(ctx context.Context) (*replSetStatus, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	st, err := c.prober.routedStatus(ctx)
	if err == nil {
		return st, nil
	}
	if c.fallbackAddr == "" {
		return nil, wrapErr(ErrUnreachable, err)
	}

	// Routed query failed, likely answered by a non-authoritative node.
	slog.Warn("topology query failed, retrying against fallback node",
		"fallback", c.fallbackAddr, "error", err)
	st2, err2 := c.prober.directStatus(ctx, c.fallbackAddr)
	if err2 != nil {
		return nil, wrapErr(ErrUnreachable, err2)
	}
	return st2, nil
}

func bucketMembers(st *replSetStatus) *ClusterStatus {
	out := &ClusterStatus{
		SetName:     st.Set,
		Secondaries: []string{},
		MemberCount: len(st.Members),
	}
	for _, m := range st.Members {
		switch m.StateStr {
		case "PRIMARY":
			name := m.Name
			out.Primary = &name
		case "SECONDARY":
			out.Secondaries = append(out.Secondaries, m.Name)
		}
	}
	return out
}
