package rules

import "fmt"

// Result is the result of evaluating a single condition against a snapshot.
type Result uint8

const (
	ResultUndefined Result = iota
	// Satisfied means the condition holds.
	Satisfied
	// Unsatisfied means the condition does not hold.
	Unsatisfied
	// Pending means the condition can not be decided yet, e.g. because a
	// check did not report. It is not a failure.
	Pending
)

var resultString = [...]string{
	ResultUndefined: "undefined",
	Satisfied:       "satisfied",
	Unsatisfied:     "unsatisfied",
	Pending:         "pending",
}

func (r Result) String() string {
	if int(r) > len(resultString)-1 {
		return fmt.Sprintf("unsupported Result value: %d", r)
	}

	return resultString[r]
}

// Verdict is the result of evaluating all conditions of a rule.
type Verdict uint8

const (
	VerdictUndefined Verdict = iota
	// VerdictMatch means all conditions are satisfied.
	VerdictMatch
	// VerdictMismatch means at least one condition is unsatisfied.
	VerdictMismatch
	// VerdictPending means no condition is unsatisfied but at least one is
	// pending. The rule can match on a later snapshot.
	VerdictPending
)

var verdictString = [...]string{
	VerdictUndefined: "undefined",
	VerdictMatch:     "match",
	VerdictMismatch:  "mismatch",
	VerdictPending:   "pending",
}

func (v Verdict) String() string {
	if int(v) > len(verdictString)-1 {
		return fmt.Sprintf("unsupported Verdict value: %d", v)
	}

	return verdictString[v]
}
