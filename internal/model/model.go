package model

import (
	"encoding/json"
	"sort"
)

const (
	// LocalServer names the instance the console is connected to.
	LocalServer = "local"
	// AllServers selects every node returned by neighbours discovery.
	AllServers = "All SERVERS"
)

// Node represents one backend instance of the cluster.
type Node struct {
	Name string `json:"name"`
	Host string `json:"host"`
	URL  string `json:"url"` // empty means same origin
}

// NodeStatus is the per-node state of one query batch.
type NodeStatus struct {
	Node
	Checked         bool            `json:"checked"`
	Status          bool            `json:"status"`
	Data            json.RawMessage `json:"data"`
	PercentComplete float64         `json:"percent_complete,omitempty"`
	Err             string          `json:"error,omitempty"`
}

// Neighbour is a single entry of the neighbours endpoint response.
type Neighbour struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}

// NeighbourSet maps node names to their address.
type NeighbourSet map[string]Neighbour

// Nodes returns the set as nodes ordered by name.
func (s NeighbourSet) Nodes() []Node {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]Node, 0, len(names))
	for _, name := range names {
		n := s[name]
		nodes = append(nodes, Node{Name: name, Host: n.Host, URL: n.URL})
	}
	return nodes
}

// Clone returns an independent copy of the set.
func (s NeighbourSet) Clone() NeighbourSet {
	out := make(NeighbourSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// NewStatus returns a fresh unchecked status for the node.
func NewStatus(n Node) NodeStatus {
	return NodeStatus{Node: n, Data: json.RawMessage("{}")}
}

// AnySucceeded reports whether at least one node in the batch succeeded.
func AnySucceeded(statuses []NodeStatus) bool {
	for _, s := range statuses {
		if s.Status {
			return true
		}
	}
	return false
}
