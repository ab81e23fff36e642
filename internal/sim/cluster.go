package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/protocol"
	"github.com/roach88/recline/internal/topology"
)

// DefaultTTL bounds how many hops a data envelope travels, so feedback loops
// terminate.
const DefaultTTL = 4

// ErrStuck is returned by Drain when envelopes remain but every remaining
// link is blocked.
var ErrStuck = errors.New("simulation stuck: all pending links blocked")

type link struct {
	from, to string
}

// Stats summarizes a run.
type Stats struct {
	Delivered   int `json:"delivered"`
	Checkpoints int `json:"checkpoints"`
	Forced      int `json:"forced"`
	Restores    int `json:"restores"`
}

// Cluster is a deterministic, single-goroutine simulation of a deployment.
//
// It hosts one protocol instance per graph instance, routes envelopes over
// per-connection FIFO links and plays the blockable-source and storage
// collaborators. Every delivery is chosen in sorted link order, so a run is
// reproducible.
type Cluster struct {
	graph    *topology.Graph
	kind     ir.ProtocolKind
	interval time.Duration
	ttl      int
	storage  protocol.Storage
	notifier protocol.Notifier

	now   time.Time
	hosts map[string]*Host
	links map[link][]ir.Envelope
	stats Stats
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithNotifier forwards every checkpoint record, typically to a coordinator.
func WithNotifier(n protocol.Notifier) Option {
	return func(c *Cluster) {
		c.notifier = n
	}
}

// WithStorage replaces the default SequentialStorage.
func WithStorage(s protocol.Storage) Option {
	return func(c *Cluster) {
		c.storage = s
	}
}

// WithTTL sets the hop limit of emitted data envelopes.
func WithTTL(ttl int) Option {
	return func(c *Cluster) {
		c.ttl = ttl
	}
}

// WithStart sets the virtual start time.
func WithStart(t time.Time) Option {
	return func(c *Cluster) {
		c.now = t.UTC()
	}
}

// New builds a cluster for a resolved deployment. The coordinated protocol
// cannot align barriers across a feedback loop, so that combination is rejected.
func New(d *topology.Deployment, opts ...Option) (*Cluster, error) {
	if d.Protocol.Coordinated() && d.Graph.HasFeedbackLoops() {
		loops := d.Graph.FeedbackLoops()
		return nil, fmt.Errorf("coordinated protocol cannot run across feedback loops: %s", loops[0].Message)
	}

	c := &Cluster{
		graph:    d.Graph,
		kind:     d.Protocol,
		interval: d.Interval,
		ttl:      DefaultTTL,
		storage:  protocol.NewSequentialStorage(),
		now:      time.Unix(0, 0).UTC(),
		hosts:    make(map[string]*Host),
		links:    make(map[link][]ir.Envelope),
	}
	for _, opt := range opts {
		opt(c)
	}

	names := d.Graph.Instances()
	for _, name := range names {
		conn, _ := d.Graph.Connection(name)
		h := &Host{
			name:    name,
			conn:    conn,
			blocked: make(map[ir.Connection]bool),
		}
		h.cp = protocol.NewCheckpointer(name, c.kind, d.Graph.Upstream(name), c.storage,
			protocol.WithNow(c.Now),
			protocol.WithNotifier(c),
		)
		switch c.kind {
		case ir.ProtocolCoordinated:
			h.barrier = protocol.NewBarrier(name, d.Graph.UpstreamConnections(name), h, h.cp)
		case ir.ProtocolCIC:
			h.cic = protocol.NewCIC(h.cp)
			if err := h.cic.InitializeClocks(name, names); err != nil {
				return nil, err
			}
		case ir.ProtocolInterval:
			h.interval = protocol.NewInterval(c.interval, c.now)
		}
		c.hosts[name] = h
	}
	return c, nil
}

// Notify implements protocol.Notifier: it counts the record and forwards it.
func (c *Cluster) Notify(rec ir.CheckpointRecord) bool {
	c.stats.Checkpoints++
	if rec.Forced {
		c.stats.Forced++
	}
	if c.notifier == nil {
		return true
	}
	return c.notifier.Notify(rec)
}

// Now returns the virtual time.
func (c *Cluster) Now() time.Time {
	return c.now
}

// Host returns a host by instance name.
func (c *Cluster) Host(name string) (*Host, bool) {
	h, ok := c.hosts[name]
	return h, ok
}

// Stats returns counters for the run so far.
func (c *Cluster) Stats() Stats {
	return c.stats
}

// Pending returns the number of envelopes in flight.
func (c *Cluster) Pending() int {
	n := 0
	for _, q := range c.links {
		n += len(q)
	}
	return n
}

// Start takes every instance's initial, dependency-free checkpoint.
func (c *Cluster) Start(ctx context.Context) error {
	for _, name := range c.graph.Instances() {
		h := c.hosts[name]
		var err error
		if h.cic != nil {
			_, err = h.cic.Checkpoint(ctx)
		} else {
			_, err = h.cp.Take(ctx, false)
		}
		if err != nil {
			return fmt.Errorf("initial checkpoint: %w", err)
		}
		if h.interval != nil {
			h.interval.SetLastCheckpointUTC(c.now)
		}
	}
	slog.Debug("simulation started", "instances", len(c.hosts), "protocol", string(c.kind))
	return nil
}

// Emit has instance from send one data envelope to each of its downstream instances.
func (c *Cluster) Emit(ctx context.Context, from string) error {
	h, ok := c.hosts[from]
	if !ok {
		return fmt.Errorf("emit: unknown instance %q", from)
	}
	return c.sendData(h, c.ttl)
}

// EmitSources emits once from every source instance.
func (c *Cluster) EmitSources(ctx context.Context) error {
	for _, name := range c.graph.Instances() {
		if c.graph.IsSource(name) {
			if err := c.Emit(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// InjectBarrier starts a coordinated round at every source.
func (c *Cluster) InjectBarrier(ctx context.Context) error {
	if c.kind != ir.ProtocolCoordinated {
		return fmt.Errorf("inject barrier: deployment runs the %s protocol", c.kind)
	}
	for _, name := range c.graph.Instances() {
		if !c.graph.IsSource(name) {
			continue
		}
		h := c.hosts[name]
		forward, err := h.barrier.ReceiveBarrier(ctx, ir.Connection{})
		if err != nil {
			return err
		}
		if forward {
			c.sendBarrier(h)
		}
	}
	return nil
}

// Advance moves virtual time forward and lets interval hosts checkpoint.
func (c *Cluster) Advance(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	if c.kind != ir.ProtocolInterval {
		return nil
	}
	for _, name := range c.graph.Instances() {
		if _, _, err := c.hosts[name].interval.Tick(ctx, c.now, c.hosts[name].cp); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint takes an unforced checkpoint at one instance outside any protocol trigger.
func (c *Cluster) Checkpoint(ctx context.Context, name string) error {
	h, ok := c.hosts[name]
	if !ok {
		return fmt.Errorf("checkpoint: unknown instance %q", name)
	}
	var err error
	if h.cic != nil {
		_, err = h.cic.Checkpoint(ctx)
	} else {
		_, err = h.cp.Take(ctx, false)
	}
	if err == nil && h.interval != nil {
		h.interval.SetLastCheckpointUTC(c.now)
	}
	return err
}

// Step delivers the head of the first deliverable link in sorted order.
// It returns false when nothing can be delivered.
func (c *Cluster) Step(ctx context.Context) (bool, error) {
	for _, l := range c.sortedLinks() {
		q := c.links[l]
		env := q[0]
		to := c.hosts[l.to]
		if to.IsBlocked(env.Connection()) {
			continue
		}
		if len(q) == 1 {
			delete(c.links, l)
		} else {
			c.links[l] = q[1:]
		}
		return true, c.deliver(ctx, to, env)
	}
	return false, nil
}

// Drain delivers until no envelope is left.
func (c *Cluster) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	if c.Pending() > 0 {
		return fmt.Errorf("%w (%d envelopes)", ErrStuck, c.Pending())
	}
	return nil
}

// Restore implements the coordinator's Dispatcher: the host rolls back and
// in-flight envelopes to or from it are discarded.
func (c *Cluster) Restore(ctx context.Context, in ir.RestoreInstruction) error {
	h, ok := c.hosts[in.Instance]
	if !ok {
		return fmt.Errorf("restore: unknown instance %q", in.Instance)
	}
	h.restoredTo = in.CheckpointID
	for l := range c.links {
		if l.from == in.Instance || l.to == in.Instance {
			delete(c.links, l)
		}
	}
	c.stats.Restores++
	slog.Debug("instance restored", "instance", in.Instance, "checkpoint_id", in.CheckpointID)
	return nil
}

func (c *Cluster) deliver(ctx context.Context, h *Host, env ir.Envelope) error {
	c.stats.Delivered++

	switch env.Kind {
	case ir.EnvelopeBarrier:
		if err := h.cp.Observe(env.From, env.CheckpointID); err != nil {
			return err
		}
		forward, err := h.barrier.ReceiveBarrier(ctx, env.Connection())
		if err != nil {
			return err
		}
		if forward {
			c.sendBarrier(h)
		}
		return nil

	case ir.EnvelopeData:
		if h.cic != nil {
			if env.CIC == nil {
				return fmt.Errorf("data envelope from %s to %s carries no piggyback", env.From, env.To)
			}
			if _, err := h.cic.Receive(ctx, env.From, *env.CIC); err != nil {
				return err
			}
		}
		if err := h.cp.Observe(env.From, env.CheckpointID); err != nil {
			return err
		}
		if env.TTL > 1 {
			return c.sendData(h, env.TTL-1)
		}
		return nil

	default:
		return fmt.Errorf("unknown envelope kind %s", env.Kind)
	}
}

func (c *Cluster) sendData(h *Host, ttl int) error {
	for _, to := range c.graph.Downstream(h.name) {
		env := ir.Envelope{
			From:         h.name,
			To:           to,
			Vertex:       h.conn.Vertex,
			Shard:        h.conn.Shard,
			Kind:         ir.EnvelopeData,
			CheckpointID: h.cp.Current(),
			TTL:          ttl,
		}
		if h.cic != nil {
			if err := h.cic.BeforeSend(to); err != nil {
				return err
			}
			p := h.cic.GetPiggybackData()
			env.CIC = &p
		}
		c.enqueue(env)
	}
	return nil
}

func (c *Cluster) sendBarrier(h *Host) {
	for _, to := range c.graph.Downstream(h.name) {
		c.enqueue(ir.Envelope{
			From:         h.name,
			To:           to,
			Vertex:       h.conn.Vertex,
			Shard:        h.conn.Shard,
			Kind:         ir.EnvelopeBarrier,
			CheckpointID: h.cp.Current(),
		})
	}
}

func (c *Cluster) enqueue(env ir.Envelope) {
	l := link{from: env.From, to: env.To}
	c.links[l] = append(c.links[l], env)
}

func (c *Cluster) sortedLinks() []link {
	out := make([]link, 0, len(c.links))
	for l := range c.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}
