// Package action executes the actions of matched rules.
package action

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

const loggerName = "action_executor"

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks . Client

// Client is the GitHub API used to run side effects.
// All methods return an amerr.RetryableError when the operation can be
// retried and must succeed when the requested state already exists.
type Client interface {
	AddLabel(ctx context.Context, owner, repo string, number int, label string) error
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
	HasIssueComment(ctx context.Context, owner, repo string, number int, body string) (bool, error)
	ClosePullRequest(ctx context.Context, owner, repo string, number int) error
	// Backport creates a pull request that applies the changes of the
	// merged pull request number to targetBranch and returns its number.
	// If the backport pull request already exists its number is returned.
	Backport(ctx context.Context, owner, repo string, number int, targetBranch string) (int, error)
}

// Retryer is an interface used for running Client methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

// Executor runs rule actions against a snapshot.
type Executor struct {
	clt     Client
	retryer Retryer
	logger  *zap.Logger
}

func NewExecutor(clt Client, retryer Retryer) *Executor {
	return &Executor{
		clt:     clt,
		retryer: retryer,
		logger:  zap.L().Named(loggerName),
	}
}

// Execute runs the action for snap.
//
// Merge actions are never run, a merge directive is returned with a
// Pending outcome that must be enqueued into the merge queue.
// The other actions are idempotent, if the snapshot shows that the desired
// state already exists the action is a successful noop.
func (e *Executor) Execute(ctx context.Context, rule *rules.Rule, a rules.Action, snap *snapshot.Snapshot) *Result {
	res := Result{Rule: rule, Action: a}
	logger := e.logger.With(snap.LogFields()...).With(logfields.Rule(rule.Name()), logfields.Action(string(a.Kind())))

	runners, outcome, err := e.runners(rule, a, snap, &res)
	if err != nil {
		res.Outcome = OutcomeFailure
		res.Err = err

		logger.Warn("action failed", logfields.Event("action_failed"), zap.Error(err))

		return &res
	}

	if outcome != OutcomeUndefined {
		res.Outcome = outcome
		logger.Debug(
			"action completed without api calls",
			logfields.Event("action_completed_noop"),
			logfields.ActionOutcome(outcome.String()),
		)

		return &res
	}

	// every runner is executed, a failure does not prevent the others
	var errs []error
	for _, r := range runners {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r, ctx.Err()))
			break
		}

		if err := e.retryer.Run(ctx, r.Run, r.LogFields()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r, err))
		}
	}

	if len(errs) > 0 {
		res.Err = errors.Join(errs...)
		res.Outcome = failureOutcome(ctx, res.Err)

		logger.Warn(
			"action failed",
			logfields.Event("action_failed"),
			logfields.ActionOutcome(res.Outcome.String()),
			zap.Error(res.Err),
		)

		return &res
	}

	res.Outcome = OutcomeSuccess
	logger.Info("action executed", logfields.Event("action_executed"))

	return &res
}

// runners returns the runners for the action.
// If the action is finished without running a side effect, its outcome is
// returned instead.
func (e *Executor) runners(rule *rules.Rule, a rules.Action, snap *snapshot.Snapshot, res *Result) ([]runner, Outcome, error) {
	id := snap.ID()

	switch a.Kind() {
	case rules.ActionMerge:
		res.Merge = &MergeDirective{
			ChangeRequest: id,
			BaseBranch:    snap.BaseBranch(),
			HeadCommit:    snap.HeadCommit(),
			Rule:          rule,
			Options:       a.MergeOptions(),
		}

		return nil, OutcomePending, nil

	case rules.ActionLabel:
		label, err := a.RenderLabel(rule.Name(), snap)
		if err != nil {
			return nil, OutcomeUndefined, fmt.Errorf("rendering label failed: %w", err)
		}

		if label == "" {
			return nil, OutcomeUndefined, fmt.Errorf("rendered label is empty")
		}

		remove := a.LabelOp() == rules.LabelRemove
		if snap.HasLabel(label) != remove {
			return nil, OutcomeSuccess, nil
		}

		return []runner{&labelRunner{clt: e.clt, id: id, label: label, remove: remove}}, OutcomeUndefined, nil

	case rules.ActionComment:
		body, err := a.RenderComment(rule.Name(), snap)
		if err != nil {
			return nil, OutcomeUndefined, fmt.Errorf("rendering comment failed: %w", err)
		}

		return []runner{&commentRunner{clt: e.clt, id: id, body: body}}, OutcomeUndefined, nil

	case rules.ActionClose:
		if !snap.IsOpen() {
			return nil, OutcomeSuccess, nil
		}

		return []runner{&closeRunner{clt: e.clt, id: id}}, OutcomeUndefined, nil

	case rules.ActionBackport:
		switch snap.State() {
		case snapshot.StateMerged:
		case snapshot.StateOpen:
			return nil, OutcomePending, nil
		default:
			return nil, OutcomeCancelled, nil
		}

		branches := a.BackportBranches()
		result := make([]runner, 0, len(branches))
		for _, b := range branches {
			result = append(result, &backportRunner{clt: e.clt, id: id, targetBranch: b, logger: e.logger})
		}

		return result, OutcomeUndefined, nil

	default:
		return nil, OutcomeUndefined, fmt.Errorf("unsupported action: %q", a.Kind())
	}
}

// ExecuteAll runs all actions of the matched rules in order.
// A failing action does not prevent the execution of the following ones.
func (e *Executor) ExecuteAll(ctx context.Context, matches []rules.MatchedRule, snap *snapshot.Snapshot) []*Result {
	var results []*Result

	for _, m := range matches {
		for _, a := range m.Actions {
			results = append(results, e.Execute(ctx, m.Rule, a, snap))
		}
	}

	return results
}
