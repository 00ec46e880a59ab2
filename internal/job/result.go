package job

// Result is the outcome code reported to a client (spec §6: "resultcode:
// 0|10|20").
type Result int

const (
	ResultUnknown Result = 0
	ResultSAT     Result = 10
	ResultUnsat   Result = 20
)

// Outcome pairs a Result with a satisfying model, if any.
type Outcome struct {
	Result Result
	Model  []int32
}
