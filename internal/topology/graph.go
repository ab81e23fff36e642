package topology

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/recline/internal/ir"
)

// Spec is the declarative deployment topology as read from CUE or YAML.
type Spec struct {
	Vertices   map[string]VertexSpec `json:"vertex" yaml:"vertex"`
	Checkpoint CheckpointSpec        `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// VertexSpec declares one operator vertex.
type VertexSpec struct {
	Shards   int      `json:"shards,omitempty" yaml:"shards,omitempty"` // 0 means 1
	Upstream []string `json:"upstream,omitempty" yaml:"upstream,omitempty"`
}

// CheckpointSpec selects the deployment-wide triggering protocol.
type CheckpointSpec struct {
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"` // Go duration, interval protocol only
}

// Graph is the static instance connectivity graph. It is immutable after Build.
//
// Vertices are expanded into instances (one per shard). Every shard of an
// upstream vertex is connected to every shard of its downstream vertex.
// Cycles are allowed.
type Graph struct {
	vertices  []string
	shards    map[string]int
	vertexUp  map[string][]string
	instances []string
	conn      map[string]ir.Connection
	byConn    map[ir.Connection]string
	up        map[string][]string
	down      map[string][]string
}

// Normalize returns the canonical (NFC) form of an instance or vertex name.
// Names that differ only in Unicode composition refer to the same instance.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Build validates a Spec and expands it into an instance graph.
func Build(spec Spec) (*Graph, error) {
	if len(spec.Vertices) == 0 {
		return nil, fmt.Errorf("topology declares no vertices")
	}

	g := &Graph{
		shards:   make(map[string]int, len(spec.Vertices)),
		vertexUp: make(map[string][]string, len(spec.Vertices)),
		conn:     make(map[string]ir.Connection),
		byConn:   make(map[ir.Connection]string),
		up:       make(map[string][]string),
		down:     make(map[string][]string),
	}

	raw := make(map[string]VertexSpec, len(spec.Vertices))
	for name, v := range spec.Vertices {
		n := Normalize(name)
		if n == "" {
			return nil, fmt.Errorf("vertex with empty name")
		}
		if strings.Contains(n, "#") {
			return nil, fmt.Errorf("vertex %q: name must not contain '#'", n)
		}
		if _, dup := raw[n]; dup {
			return nil, fmt.Errorf("duplicate vertex %q after normalization", n)
		}
		if v.Shards < 0 {
			return nil, fmt.Errorf("vertex %q: shards must be positive, got %d", n, v.Shards)
		}
		if v.Shards == 0 {
			v.Shards = 1
		}
		raw[n] = v
		g.vertices = append(g.vertices, n)
		g.shards[n] = v.Shards
	}
	sort.Strings(g.vertices)

	for _, name := range g.vertices {
		v := raw[name]
		seen := make(map[string]bool, len(v.Upstream))
		for _, u := range v.Upstream {
			un := Normalize(u)
			if _, ok := raw[un]; !ok {
				return nil, fmt.Errorf("vertex %q: unknown upstream %q", name, un)
			}
			if seen[un] {
				continue
			}
			seen[un] = true
			g.vertexUp[name] = append(g.vertexUp[name], un)
		}
		sort.Strings(g.vertexUp[name])

		for s := 0; s < v.Shards; s++ {
			inst := ir.InstanceName(name, s, v.Shards)
			c := ir.Connection{Vertex: name, Shard: s}
			g.instances = append(g.instances, inst)
			g.conn[inst] = c
			g.byConn[c] = inst
		}
	}
	sort.Strings(g.instances)

	for _, name := range g.vertices {
		for _, u := range g.vertexUp[name] {
			for ds := 0; ds < g.shards[name]; ds++ {
				to := ir.InstanceName(name, ds, g.shards[name])
				for us := 0; us < g.shards[u]; us++ {
					from := ir.InstanceName(u, us, g.shards[u])
					g.up[to] = append(g.up[to], from)
					g.down[from] = append(g.down[from], to)
				}
			}
		}
	}
	for k := range g.up {
		sort.Strings(g.up[k])
	}
	for k := range g.down {
		sort.Strings(g.down[k])
	}

	return g, nil
}

// ParseEdges builds a single-shard graph from a compact edge list such as
// "A->B, B->C, C->B". A bare name declares an isolated vertex.
func ParseEdges(edges string) (*Graph, error) {
	spec := Spec{Vertices: map[string]VertexSpec{}}
	for _, tok := range strings.Split(edges, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		from, to, isEdge := strings.Cut(tok, "->")
		from = Normalize(from)
		if !isEdge {
			if _, ok := spec.Vertices[from]; !ok {
				spec.Vertices[from] = VertexSpec{}
			}
			continue
		}
		to = Normalize(to)
		if from == "" || to == "" {
			return nil, fmt.Errorf("malformed edge %q", tok)
		}
		if _, ok := spec.Vertices[from]; !ok {
			spec.Vertices[from] = VertexSpec{}
		}
		v := spec.Vertices[to]
		v.Upstream = append(v.Upstream, from)
		spec.Vertices[to] = v
	}
	return Build(spec)
}

// MustParseEdges is ParseEdges that panics on error. Intended for tests.
func MustParseEdges(edges string) *Graph {
	g, err := ParseEdges(edges)
	if err != nil {
		panic(err)
	}
	return g
}

// Instances returns all instance names, sorted.
func (g *Graph) Instances() []string {
	return append([]string(nil), g.instances...)
}

// Vertices returns all vertex names, sorted.
func (g *Graph) Vertices() []string {
	return append([]string(nil), g.vertices...)
}

// Has reports whether the instance exists.
func (g *Graph) Has(instance string) bool {
	_, ok := g.conn[instance]
	return ok
}

// Shards returns the shard count of a vertex, or 0 if unknown.
func (g *Graph) Shards(vertex string) int {
	return g.shards[vertex]
}

// Upstream returns the instances with a direct edge into instance, sorted.
func (g *Graph) Upstream(instance string) []string {
	return append([]string(nil), g.up[instance]...)
}

// Downstream returns the instances instance has a direct edge to, sorted.
func (g *Graph) Downstream(instance string) []string {
	return append([]string(nil), g.down[instance]...)
}

// IsUpstream reports whether from has a direct edge into to.
func (g *Graph) IsUpstream(from, to string) bool {
	for _, u := range g.up[to] {
		if u == from {
			return true
		}
	}
	return false
}

// IsSource reports whether instance has no upstream connections.
func (g *Graph) IsSource(instance string) bool {
	return len(g.up[instance]) == 0
}

// Connection returns the vertex and shard of an instance.
func (g *Graph) Connection(instance string) (ir.Connection, bool) {
	c, ok := g.conn[instance]
	return c, ok
}

// InstanceFor returns the instance behind an upstream connection.
func (g *Graph) InstanceFor(c ir.Connection) (string, bool) {
	inst, ok := g.byConn[c]
	return inst, ok
}

// UpstreamConnections returns every upstream connection of an instance,
// ordered by vertex then shard.
func (g *Graph) UpstreamConnections(instance string) []ir.Connection {
	c, ok := g.conn[instance]
	if !ok {
		return nil
	}
	var out []ir.Connection
	for _, u := range g.vertexUp[c.Vertex] {
		for s := 0; s < g.shards[u]; s++ {
			out = append(out, ir.Connection{Vertex: u, Shard: s})
		}
	}
	return out
}

// Edges returns all instance-level edges as [from, to] pairs, sorted.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, from := range g.instances {
		for _, to := range g.down[from] {
			out = append(out, [2]string{from, to})
		}
	}
	return out
}

// Reachable returns the given instances plus every instance forward-reachable
// from any of them along directed edges. Cycles are followed.
func (g *Graph) Reachable(from []string) map[string]bool {
	seen := make(map[string]bool, len(g.instances))
	queue := make([]string, 0, len(from))
	for _, f := range from {
		if !seen[f] {
			seen[f] = true
			queue = append(queue, f)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.down[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
