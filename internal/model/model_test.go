package model

import "testing"

func TestNeighbourSet_NodesSortedByName(t *testing.T) {
	t.Parallel()

	set := NeighbourSet{
		"b": {Host: "b:11334", URL: "http://b:11334/"},
		"a": {Host: "a:11334", URL: "http://a:11334/"},
	}
	nodes := set.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("nodes=%d", len(nodes))
	}
	if nodes[0].Name != "a" || nodes[1].Name != "b" {
		t.Fatalf("order=%s,%s", nodes[0].Name, nodes[1].Name)
	}
	if nodes[0].URL != "http://a:11334/" {
		t.Fatalf("url=%q", nodes[0].URL)
	}
}

func TestNewStatus_EmptyObject(t *testing.T) {
	t.Parallel()

	s := NewStatus(Node{Name: LocalServer})
	if string(s.Data) != "{}" || s.Checked || s.Status {
		t.Fatalf("status=%+v", s)
	}
}
