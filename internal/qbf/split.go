package qbf

import "github.com/jabo17/mallob/internal/job"

// ChildApplication is the application kind a split produces for its
// children, mirroring QbfJob::ChildJobApp.
type ChildApplication int

const (
	ChildSAT ChildApplication = iota
	ChildQBF
)

func (a ChildApplication) String() string {
	if a == ChildQBF {
		return "QBF"
	}
	return "SAT"
}

// ChildSpec is one child job to spawn as a result of a split: its
// application kind and the description fields it should be submitted
// with (spec §6 "Formula payload": a leading quantifier block followed
// by the CNF body).
type ChildSpec struct {
	Application      ChildApplication
	QuantifierPrefix []int32
	Literals         []int32
}

// SplitResult is the outcome of applying the splitting strategy to one
// job description: the Boolean combination its children's results
// should be reduced under, and the children themselves.
type SplitResult struct {
	NodeType NodeType
	Children []ChildSpec
}

// Split applies the recursive QBF splitting strategy (spec §8 scenario
// 6), grounded on QbfJob::applySplittingStrategy: a description with no
// remaining quantifiers is pure SAT and produces a single pass-through
// child; otherwise the outermost quantifier is branched on — a positive
// entry is existential (OR combination), negative is universal (AND
// combination) — producing two children, each the original body plus a
// unit clause fixing that variable to true or false.
func Split(desc job.Description) SplitResult {
	if len(desc.QuantifierPrefix) == 0 {
		return SplitResult{
			NodeType: NodeLeaf,
			Children: []ChildSpec{{Application: ChildSAT, Literals: desc.Literals}},
		}
	}

	q := desc.QuantifierPrefix[0]
	rest := desc.QuantifierPrefix[1:]
	nodeType := NodeOR
	v := q
	if q < 0 {
		nodeType = NodeAND
		v = -q
	}

	childApp := ChildQBF
	if len(rest) == 0 {
		childApp = ChildSAT
	}

	makeChild := func(unit int32) ChildSpec {
		literals := append(append([]int32(nil), desc.Literals...), unit, 0)
		return ChildSpec{
			Application:      childApp,
			QuantifierPrefix: append([]int32(nil), rest...),
			Literals:         literals,
		}
	}

	return SplitResult{
		NodeType: nodeType,
		Children: []ChildSpec{makeChild(v), makeChild(-v)},
	}
}
