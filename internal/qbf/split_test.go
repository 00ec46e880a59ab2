package qbf

import (
	"testing"

	"github.com/jabo17/mallob/internal/job"
)

func TestSplitPureSATYieldsSinglePassThroughChild(t *testing.T) {
	desc := job.Description{Literals: []int32{1, -2, 0}}
	r := Split(desc)
	if r.NodeType != NodeLeaf {
		t.Fatalf("NodeType = %v, want NodeLeaf", r.NodeType)
	}
	if len(r.Children) != 1 || r.Children[0].Application != ChildSAT {
		t.Fatalf("Children = %+v, want one SAT pass-through", r.Children)
	}
}

func TestSplitExistentialBranchesOnFirstQuantifier(t *testing.T) {
	desc := job.Description{
		Literals:         []int32{1, -2, 0},
		QuantifierPrefix: []int32{1, -2},
	}
	r := Split(desc)
	if r.NodeType != NodeOR {
		t.Fatalf("NodeType = %v, want NodeOR for a positive (existential) quantifier", r.NodeType)
	}
	if len(r.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(r.Children))
	}
	if r.Children[0].Application != ChildQBF || r.Children[1].Application != ChildQBF {
		t.Fatalf("children should still be QBF (one quantifier remains): %+v", r.Children)
	}
	if r.Children[0].QuantifierPrefix[0] != -2 || r.Children[1].QuantifierPrefix[0] != -2 {
		t.Fatalf("children should carry the remaining quantifier prefix: %+v", r.Children)
	}
	// True branch fixes x1; false branch fixes -x1.
	lastTrue := r.Children[0].Literals[len(r.Children[0].Literals)-2]
	lastFalse := r.Children[1].Literals[len(r.Children[1].Literals)-2]
	if lastTrue != 1 || lastFalse != -1 {
		t.Fatalf("unit literals = %d, %d, want 1, -1", lastTrue, lastFalse)
	}
}

func TestSplitUniversalLastQuantifierYieldsSATChildren(t *testing.T) {
	desc := job.Description{Literals: []int32{1, 0}, QuantifierPrefix: []int32{-2}}
	r := Split(desc)
	if r.NodeType != NodeAND {
		t.Fatalf("NodeType = %v, want NodeAND for a negative (universal) quantifier", r.NodeType)
	}
	for _, c := range r.Children {
		if c.Application != ChildSAT {
			t.Fatalf("children of the last quantifier should be SAT leaves: %+v", c)
		}
		if len(c.QuantifierPrefix) != 0 {
			t.Fatalf("expected empty remaining prefix, got %v", c.QuantifierPrefix)
		}
	}
}
