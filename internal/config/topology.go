package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidTopology is returned for any structural problem in a topology file.
var ErrInvalidTopology = errors.New("invalid topology")

const (
	DefaultDepth = 8
	MaxDepth     = 64
)

// Topology is the pipeline description loaded from pipeline.toml.
type Topology struct {
	Depth   int            `toml:"depth"`
	Workers int            `toml:"workers"`
	Nodes   []NodeConfig   `toml:"nodes"`
	Devices []DeviceConfig `toml:"devices"`
	Links   []LinkConfig   `toml:"links"`
}

// NodeConfig declares one node instance.
type NodeConfig struct {
	Name   string         `toml:"name"`
	Kind   string         `toml:"kind"`
	Params map[string]any `toml:"params"`
}

// DeviceConfig declares one hardware block backed by a simulated backend.
type DeviceConfig struct {
	Type      string `toml:"type"`
	Name      string `toml:"name"`
	LatencyMS int    `toml:"latency_ms"`
	FailEvery int    `toml:"fail_every"`
}

// LinkConfig connects an output port to an input port. Delta is how many
// requests back the consumer reads the producer's buffer.
type LinkConfig struct {
	From  string `toml:"from"`
	To    string `toml:"to"`
	Delta int    `toml:"delta"`
}

// Endpoint is a parsed "node:port" reference.
type Endpoint struct {
	Node string
	Port string
}

func (e Endpoint) String() string {
	return e.Node + ":" + e.Port
}

// ParseEndpoint splits "node:port".
func ParseEndpoint(s string) (Endpoint, error) {
	node, port, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || node == "" || port == "" || strings.Contains(port, ":") {
		return Endpoint{}, fmt.Errorf("%w: endpoint %q is not node:port", ErrInvalidTopology, s)
	}
	return Endpoint{Node: node, Port: port}, nil
}

// Endpoints returns the parsed producer and consumer.
func (l LinkConfig) Endpoints() (from, to Endpoint, err error) {
	if from, err = ParseEndpoint(l.From); err != nil {
		return
	}
	to, err = ParseEndpoint(l.To)
	return
}

// LoadTopology reads and validates a topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	return ParseTopology(data)
}

// ParseTopology decodes and validates TOML topology data.
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	if t.Depth == 0 {
		t.Depth = DefaultDepth
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks names and link syntax. Port names are resolved later
// against the node kinds.
func (t *Topology) Validate() error {
	if t.Depth < 1 || t.Depth > MaxDepth {
		return fmt.Errorf("%w: depth %d outside 1..%d", ErrInvalidTopology, t.Depth, MaxDepth)
	}
	if t.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidTopology)
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidTopology)
	}

	names := make(map[string]bool, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.Name == "" || n.Kind == "" {
			return fmt.Errorf("%w: node %d needs name and kind", ErrInvalidTopology, i)
		}
		if strings.Contains(n.Name, ":") {
			return fmt.Errorf("%w: node name %q contains ':'", ErrInvalidTopology, n.Name)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidTopology, n.Name)
		}
		names[n.Name] = true
	}

	devices := make(map[string]bool, len(t.Devices))
	for i, d := range t.Devices {
		if d.Type == "" {
			return fmt.Errorf("%w: device %d has no type", ErrInvalidTopology, i)
		}
		if d.Name != "" && devices[d.Name] {
			return fmt.Errorf("%w: duplicate device %q", ErrInvalidTopology, d.Name)
		}
		devices[d.Name] = true
		if d.LatencyMS < 0 || d.FailEvery < 0 {
			return fmt.Errorf("%w: device %q has negative latency or fail_every", ErrInvalidTopology, d.Name)
		}
	}

	consumers := make(map[Endpoint]bool, len(t.Links))
	for _, l := range t.Links {
		from, to, err := l.Endpoints()
		if err != nil {
			return err
		}
		if !names[from.Node] {
			return fmt.Errorf("%w: link %s: unknown node %q", ErrInvalidTopology, l.From, from.Node)
		}
		if !names[to.Node] {
			return fmt.Errorf("%w: link %s: unknown node %q", ErrInvalidTopology, l.To, to.Node)
		}
		if l.Delta < 0 {
			return fmt.Errorf("%w: link %s -> %s has negative delta", ErrInvalidTopology, l.From, l.To)
		}
		if l.Delta >= t.Depth {
			return fmt.Errorf("%w: link %s -> %s delta %d not below depth %d", ErrInvalidTopology, l.From, l.To, l.Delta, t.Depth)
		}
		if consumers[to] {
			return fmt.Errorf("%w: input %s has more than one producer", ErrInvalidTopology, to)
		}
		consumers[to] = true
	}
	return nil
}

// Node returns the named node config.
func (t *Topology) Node(name string) (NodeConfig, bool) {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeConfig{}, false
}
