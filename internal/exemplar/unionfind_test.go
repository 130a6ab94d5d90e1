package exemplar

import (
	"reflect"
	"testing"
)

func TestUnionFindSingletons(t *testing.T) {
	uf := newUnionFind(3)
	want := [][]int{{0}, {1}, {2}}
	if got := uf.sets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected singletons, got %v", got)
	}
}

func TestUnionFindTransitiveClustering(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(1, 4)
	uf.union(2, 3)

	want := [][]int{{0, 1, 4}, {2, 3}}
	if got := uf.sets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected transitive clusters, got %v", got)
	}
}

func TestUnionFindRedundantUnions(t *testing.T) {
	uf := newUnionFind(4)
	uf.union(0, 1)
	uf.union(1, 0)
	uf.union(0, 1)

	want := [][]int{{0, 1}, {2}, {3}}
	if got := uf.sets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected stable result under repeated unions, got %v", got)
	}
}

func TestUnionFindOrderIndependent(t *testing.T) {
	a := newUnionFind(6)
	a.union(0, 5)
	a.union(5, 3)

	b := newUnionFind(6)
	b.union(3, 5)
	b.union(5, 0)

	if got, want := a.sets(), b.sets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order-independent sets: %v vs %v", got, want)
	}
}

func TestUnionFindEmpty(t *testing.T) {
	uf := newUnionFind(0)
	if got := uf.sets(); len(got) != 0 {
		t.Fatalf("expected no sets, got %v", got)
	}
}
