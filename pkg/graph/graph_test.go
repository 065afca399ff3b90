package graph

import "testing"

func TestTraverseBreadthFirstExcludesStart(t *testing.T) {
	s := New()
	s.AddEdge(1, 2, "links", 1)
	s.AddEdge(2, 3, "links", 1)
	s.AddEdge(1, 4, "links", 1)

	visited := s.Traverse(1, 2, "")
	want := map[uint64]bool{2: true, 3: true, 4: true}
	if len(visited) != len(want) {
		t.Fatalf("expected %d nodes, got %v", len(want), visited)
	}
	for _, v := range visited {
		if v == 1 {
			t.Fatal("traversal must exclude the start node")
		}
		if !want[v] {
			t.Fatalf("unexpected node %d in %v", v, visited)
		}
	}
}

func TestTraverseRespectsEdgeTypeFilter(t *testing.T) {
	s := New()
	s.AddEdge(1, 2, "cites", 1)
	s.AddEdge(1, 3, "mentions", 1)

	visited := s.Traverse(1, 1, "cites")
	if len(visited) != 1 || visited[0] != 2 {
		t.Fatalf("expected only node 2 via cites, got %v", visited)
	}
}

func TestTraverseHandlesCyclesViaVisitedSet(t *testing.T) {
	s := New()
	s.AddEdge(1, 2, "links", 1)
	s.AddEdge(2, 1, "links", 1)

	visited := s.Traverse(1, 5, "links")
	if len(visited) != 1 || visited[0] != 2 {
		t.Fatalf("expected cycle to terminate with only node 2 visited, got %v", visited)
	}
}

func TestDistinctEdgeTypesBetweenSamePairCoexist(t *testing.T) {
	s := New()
	s.AddEdge(1, 2, "cites", 1)
	s.AddEdge(1, 2, "mentions", 1)

	edges := s.GetOutgoing(1)
	if len(edges) != 2 {
		t.Fatalf("expected 2 distinct edges between the same pair, got %d: %+v", len(edges), edges)
	}
}

func TestRemoveNodeDropsBothEndpoints(t *testing.T) {
	s := New()
	s.AddEdge(1, 2, "links", 1)
	s.AddEdge(2, 3, "links", 1)

	s.RemoveNode(2)

	if edges := s.GetOutgoing(1); len(edges) != 0 {
		t.Fatalf("expected edge from 1 to removed node 2 to be gone, got %+v", edges)
	}
	if edges := s.GetIncoming(3); len(edges) != 0 {
		t.Fatalf("expected edge from removed node 2 to 3 to be gone, got %+v", edges)
	}
}
