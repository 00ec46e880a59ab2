package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/grailbio/base/errors"
)

// Application distinguishes the two job kinds the platform accepts (spec
// §6 job submission JSON: "application ∈ {SAT, QBF}").
type Application int

const (
	SAT Application = iota
	QBF
)

func (a Application) String() string {
	if a == QBF {
		return "QBF"
	}
	return "SAT"
}

// Description is the immutable-per-revision content of a job: its formula
// payload, optional quantifier prefix, priority, and resource limits
// (spec §3 "Job").
type Description struct {
	ID          int
	Application Application
	Revision    int

	// ExternalID is the job's client-facing identifier. The original
	// threads a bare int job id through every layer; Go idiom favors a
	// real external ID type at the client boundary, so this is what a
	// submission response and job-status query key on, while ID remains
	// the compact int used for job-tree index arithmetic and wire
	// messages.
	ExternalID uuid.UUID

	// Literals is the CNF body: clause literals terminated by zero
	// separators (spec §6 "Formula payload").
	Literals []int32

	// QuantifierPrefix holds QBF quantifier variables in prefix order,
	// outermost first. A positive entry is existential, negative is
	// universal, matching the sign convention used for splitting
	// (internal/qbf).
	QuantifierPrefix []int32

	Priority float64

	WallclockLimit time.Duration
	CPULimit       time.Duration
}

// Validate checks the invariants spec.md assumes of a job description:
// priority in (0,1] and a well-formed (zero-terminated) CNF body.
func (d *Description) Validate() error {
	if d.Priority <= 0 || d.Priority > 1 {
		return errors.E(errors.Invalid, "job: priority must be in (0,1], got", d.Priority)
	}
	if len(d.Literals) == 0 || d.Literals[len(d.Literals)-1] != 0 {
		return errors.E(errors.Invalid, "job: formula payload must be zero-terminated")
	}
	return nil
}

// Clauses splits the zero-terminated literal stream into individual
// clauses (each a slice of signed non-zero literals).
func (d *Description) Clauses() [][]int32 {
	var clauses [][]int32
	var cur []int32
	for _, lit := range d.Literals {
		if lit == 0 {
			clauses = append(clauses, cur)
			cur = nil
			continue
		}
		cur = append(cur, lit)
	}
	return clauses
}
