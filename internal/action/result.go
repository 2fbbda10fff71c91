package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

type Outcome uint8

const (
	OutcomeUndefined Outcome = iota
	OutcomeSuccess
	OutcomeFailure
	// OutcomePending means the action could not be run yet, or, for
	// merge actions, that it was deferred to the merge queue.
	OutcomePending
	OutcomeCancelled
)

var outcomeString = [...]string{
	OutcomeUndefined: "undefined",
	OutcomeSuccess:   "success",
	OutcomeFailure:   "failure",
	OutcomePending:   "pending",
	OutcomeCancelled: "cancelled",
}

func (o Outcome) String() string {
	if int(o) > len(outcomeString)-1 {
		return fmt.Sprintf("unsupported Outcome value: %d", o)
	}

	return outcomeString[o]
}

// MergeDirective requests merging a pull request via the merge queue of its
// base branch.
type MergeDirective struct {
	ChangeRequest snapshot.ChangeRequestID
	BaseBranch    string
	HeadCommit    string
	Rule          *rules.Rule
	Options       rules.MergeOptions
}

// Result is the outcome of executing one action.
type Result struct {
	Rule    *rules.Rule
	Action  rules.Action
	Outcome Outcome
	// Err is the failure reason, it is set when Outcome is OutcomeFailure
	// or OutcomeCancelled because ctx was cancelled.
	Err error
	// Merge is set for merge actions.
	Merge *MergeDirective
}

// IsPermanentFailure returns true if the action failed with an error that
// needs to be reported to the user.
func (r *Result) IsPermanentFailure() bool {
	return r.Outcome == OutcomeFailure && amerr.IsPermanent(r.Err)
}

func failureOutcome(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return OutcomeCancelled
	}

	return OutcomeFailure
}
