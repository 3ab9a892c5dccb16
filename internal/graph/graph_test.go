package graph

import (
	"errors"
	"strings"
	"testing"
)

func indexOf(order []string, id string) int {
	for i, s := range order {
		if s == id {
			return i
		}
	}
	return -1
}

func TestSort_RespectsEdges(t *testing.T) {
	nodes := []Node{
		{ID: "plan", Deps: []string{"api", "model"}},
		{ID: "api", Deps: []string{"model", "arch"}},
		{ID: "model", Deps: []string{"arch"}},
		{ID: "arch", Deps: []string{"prd"}},
		{ID: "prd"},
	}
	order, err := Sort(nodes)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != len(nodes) {
		t.Fatalf("order = %v", order)
	}
	for _, n := range nodes {
		for _, d := range n.Deps {
			if indexOf(order, d) > indexOf(order, n.ID) {
				t.Fatalf("%s sorted before its upstream %s: %v", n.ID, d, order)
			}
		}
	}
}

func TestSort_TiesFollowDeclarationOrder(t *testing.T) {
	nodes := []Node{
		{ID: "root"},
		{ID: "b", Deps: []string{"root"}},
		{ID: "a", Deps: []string{"root"}},
	}
	order, err := Sort(nodes)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "root,b,a" {
		t.Fatalf("order = %v", order)
	}
}

func TestSort_CycleDetected(t *testing.T) {
	nodes := []Node{
		{ID: "x", Deps: []string{"z"}},
		{ID: "y", Deps: []string{"x"}},
		{ID: "z", Deps: []string{"y"}},
		{ID: "free"},
	}
	_, err := Sort(nodes)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	path := CyclePath(err)
	if len(path) != 4 || path[0] != path[3] {
		t.Fatalf("cycle path = %v", path)
	}
	if !strings.Contains(err.Error(), "cycle detected: ") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestSort_SelfLoop(t *testing.T) {
	_, err := Sort([]Node{{ID: "a", Deps: []string{"a"}}})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected cycle, got %v", err)
	}
	if p := CyclePath(err); len(p) != 2 || p[0] != "a" || p[1] != "a" {
		t.Fatalf("path = %v", p)
	}
}

func TestSort_CycleIsDeterministic(t *testing.T) {
	nodes := []Node{
		{ID: "a", Deps: []string{"b"}},
		{ID: "b", Deps: []string{"a"}},
	}
	_, first := Sort(nodes)
	for i := 0; i < 10; i++ {
		_, err := Sort(nodes)
		if err.Error() != first.Error() {
			t.Fatalf("run %d: %v != %v", i, err, first)
		}
	}
}

func TestNew_UnknownDependency(t *testing.T) {
	_, err := New([]Node{{ID: "a", Deps: []string{"ghost"}}})
	if !errors.Is(err, ErrInvalidGraph) || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("got %v", err)
	}
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]Node{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("got %v", err)
	}
}

func TestDownstream(t *testing.T) {
	g, err := New([]Node{
		{ID: "r"},
		{ID: "a", Deps: []string{"r"}},
		{ID: "b", Deps: []string{"r"}},
		{ID: "c", Deps: []string{"b"}},
		{ID: "d", Deps: []string{"c", "a"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(g.Downstream("b"), ","); got != "c,d" {
		t.Fatalf("Downstream(b) = %s", got)
	}
	if got := strings.Join(g.Downstream("r"), ","); got != "a,b,c,d" {
		t.Fatalf("Downstream(r) = %s", got)
	}
	if got := g.Downstream("d"); len(got) != 0 {
		t.Fatalf("Downstream(d) = %v", got)
	}
	if got := strings.Join(g.Dependents("r"), ","); got != "a,b" {
		t.Fatalf("Dependents(r) = %s", got)
	}
	if got := strings.Join(g.Upstream("d"), ","); got != "c,a" {
		t.Fatalf("Upstream(d) = %s", got)
	}
}
