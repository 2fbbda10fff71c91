package rules

import (
	"github.com/simplesurance/automerger/internal/snapshot"
)

// Evaluate evaluates a single condition against a snapshot.
//
// A check that did not report yet is Pending, never Unsatisfied. The same
// applies to a check that reported a pending status when a different status
// is expected.
func Evaluate(cond Condition, snap *snapshot.Snapshot) Result {
	switch cond.kind {
	case CondLabelPresent:
		return boolResult(snap.HasLabel(cond.label))

	case CondLabelAbsent:
		return boolResult(!snap.HasLabel(cond.label))

	case CondCheckStatus:
		status, ok := snap.CheckStatus(cond.check)
		if !ok {
			return Pending
		}

		if status == cond.status {
			return Satisfied
		}

		if status == snapshot.CheckStatusPending {
			return Pending
		}

		return Unsatisfied

	case CondReviewCountAtLeast:
		return boolResult(snap.ApprovalCount() >= cond.count)

	case CondBranchUpToDate:
		return boolResult(snap.UpToDate())

	case CondBaseBranch:
		return boolResult(snap.BaseBranch() == cond.branch)

	case CondNoChangesRequested:
		return boolResult(len(snap.ChangesRequestedBy()) == 0)

	default:
		return ResultUndefined
	}
}

func boolResult(b bool) Result {
	if b {
		return Satisfied
	}

	return Unsatisfied
}

// ConditionResult is the evaluation result of one condition.
type ConditionResult struct {
	Condition Condition
	Result    Result
}

// evaluateAll folds the results of conds into a verdict.
// Unsatisfied dominates Pending. An undefined result is treated as Pending,
// missing information is never a mismatch.
func evaluateAll(conds []Condition, snap *snapshot.Snapshot, skip func(Condition) bool) (Verdict, []ConditionResult) {
	results := make([]ConditionResult, 0, len(conds))
	verdict := VerdictMatch

	for _, c := range conds {
		if skip != nil && skip(c) {
			continue
		}

		res := Evaluate(c, snap)
		results = append(results, ConditionResult{Condition: c, Result: res})

		switch res {
		case Satisfied:
		case Unsatisfied:
			verdict = VerdictMismatch
		default:
			if verdict != VerdictMismatch {
				verdict = VerdictPending
			}
		}
	}

	return verdict, results
}

// EvaluateRule evaluates all conditions of the rule.
func EvaluateRule(r *Rule, snap *snapshot.Snapshot) Verdict {
	v, _ := evaluateAll(r.conditions, snap, nil)
	return v
}

// Explain evaluates all conditions of the rule and returns the verdict
// together with the individual results.
func Explain(r *Rule, snap *snapshot.Snapshot) (Verdict, []ConditionResult) {
	return evaluateAll(r.conditions, snap, nil)
}

func isUpToDateCond(c Condition) bool {
	return c.kind == CondBranchUpToDate
}

// Revalidate evaluates the rule before a queued merge is executed.
// branch-up-to-date conditions are ignored, the merge queue brings the
// branch up to date itself.
func Revalidate(r *Rule, snap *snapshot.Snapshot) (Verdict, []ConditionResult) {
	return evaluateAll(r.conditions, snap, isUpToDateCond)
}

// UnsatisfiedConditions returns the conditions of results that are not satisfied.
func UnsatisfiedConditions(results []ConditionResult) []ConditionResult {
	var out []ConditionResult
	for _, r := range results {
		if r.Result != Satisfied {
			out = append(out, r)
		}
	}

	return out
}

// MatchedRule is a rule that matched a snapshot and the actions to run.
type MatchedRule struct {
	Rule    *Rule
	Actions []Action
}

// Match evaluates all rules of the set in declaration order and returns
// every matching rule with its actions, in declaration order.
// Rules with a pending verdict are not returned, they can match on a
// later snapshot. The result only depends on rs and snap.
func (rs *RuleSet) Match(snap *snapshot.Snapshot) []MatchedRule {
	var result []MatchedRule

	for _, r := range rs.rules {
		if EvaluateRule(r, snap) != VerdictMatch {
			continue
		}

		result = append(result, MatchedRule{Rule: r, Actions: r.Actions()})
	}

	return result
}
