package store

import (
	"context"
	"testing"
)

func TestGetOrCreateNodeCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, created, err := s.GetOrCreateNode(ctx, "threat_actor", "DragonForce")
	if err != nil {
		t.Fatalf("GetOrCreateNode: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	// Different casing and padding resolve to the same node.
	id2, created, err := s.GetOrCreateNode(ctx, "threat_actor", "  dragonforce ")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second upsert should not create")
	}
	if id1 != id2 {
		t.Errorf("ids differ: %s vs %s", id1, id2)
	}

	nodes, _, err := s.GraphData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(nodes))
	}
	if nodes[0].Label != "DragonForce" {
		t.Errorf("label = %q, want first sighting kept", nodes[0].Label)
	}
}

func TestGetOrCreateNodeDistinctTypes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The same value under different node types is two nodes.
	actorID, _, err := s.GetOrCreateNode(ctx, "threat_actor", "Lazarus")
	if err != nil {
		t.Fatal(err)
	}
	sysID, _, err := s.GetOrCreateNode(ctx, "affected_system", "Lazarus")
	if err != nil {
		t.Fatal(err)
	}
	if actorID == sysID {
		t.Error("nodes of different types must not collide")
	}
}

func TestCreateEdgeIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, _, err := s.GetOrCreateNode(ctx, "threat", "LockBit campaign")
	if err != nil {
		t.Fatal(err)
	}
	dst, _, err := s.GetOrCreateNode(ctx, "threat_type", "ransomware")
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.CreateEdge(ctx, src, dst, "has_type", "")
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if !created {
		t.Error("first edge should be created")
	}

	// An existing edge is success, not an error.
	created, err = s.CreateEdge(ctx, src, dst, "has_type", "")
	if err != nil {
		t.Fatalf("CreateEdge again: %v", err)
	}
	if created {
		t.Error("duplicate edge should report created=false")
	}

	_, edges, err := s.GraphData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Errorf("edges = %d, want 1", len(edges))
	}
}

func TestCountGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _, _ := s.GetOrCreateNode(ctx, "threat", "a")
	b, _, _ := s.GetOrCreateNode(ctx, "indicator", "b")
	if _, err := s.CreateEdge(ctx, b, a, "indicates", ""); err != nil {
		t.Fatal(err)
	}

	nodes, edges, err := s.CountGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if nodes != 2 || edges != 1 {
		t.Errorf("counts = %d nodes %d edges, want 2/1", nodes, edges)
	}
}
