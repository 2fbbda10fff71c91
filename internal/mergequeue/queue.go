package mergequeue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/routines"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
	"github.com/simplesurance/automerger/internal/stringutils"
)

// maxStatusDescriptionLen is the maximum length of a commit status
// description that GitHub accepts.
const maxStatusDescriptionLen = 140

// queue processes the entries of a single base branch.
// Only the first entry is processed, processing runs are executed
// sequentially in a go-routine pool of size 1.
// A processing run is started via queue.scheduleProcess(), it processes
// entries until the head entry has to wait for an external change.
type queue struct {
	branch BranchID

	store         Store
	ghClient      GithubClient
	retryer       Retryer
	statusContext string

	logger *zap.Logger

	// actionPool runs processing runs asynchronously. The pool only
	// contains 1 Go-Routine, to ensure entries are processed
	// sequentially.
	actionPool *routines.Pool
	// executing contains a pointer to a runningTask struct describing the
	// entry that is currently processed. Its cancelFunc is used to abort
	// processing when the entry is superseded or cancelled.
	executing atomic.Pointer[runningTask]
	// runScheduled is true when a processing run is queued in the
	// actionPool and has not started yet.
	runScheduled atomic.Bool

	// lastRun contains the timestamp of the last processing run, when
	// none happened yet it contains the zero Time.
	lastRun atomic.Value // stored type: time.Time

	processRuns atomic.Uint64
}

type runningTask struct {
	entryID       uuid.UUID
	changeRequest snapshot.ChangeRequestID
	cancelFunc    context.CancelFunc
}

func newQueue(branch BranchID, store Store, ghClient GithubClient, retryer Retryer, statusContext string) *queue {
	q := queue{
		branch:        branch,
		store:         store,
		ghClient:      ghClient,
		retryer:       retryer,
		statusContext: statusContext,
		logger:        zap.L().Named(loggerName).Named("queue").With(branch.LogFields()...),
		actionPool:    routines.NewPool(1),
	}

	q.lastRun.Store(time.Time{})

	return &q
}

func (q *queue) String() string {
	return fmt.Sprintf("queue for base branch: %s", q.branch)
}

func (q *queue) getLastRun() time.Time {
	return q.lastRun.Load().(time.Time)
}

// cancelIfExecuting cancels the processing of the change request if it is
// currently processed.
func (q *queue) cancelIfExecuting(cr snapshot.ChangeRequestID) bool {
	running := q.executing.Load()
	if running == nil || running.changeRequest != cr {
		return false
	}

	running.cancelFunc()

	q.logger.Debug(
		"cancelled processing of queue entry",
		append(cr.LogFields(),
			logfields.Event("queue_entry_processing_cancelled"),
			logfields.QueueEntryID(running.entryID.String()),
		)...,
	)

	return true
}

// scheduleProcess queues a processing run, if a run is already queued and
// has not started yet, it does nothing.
func (q *queue) scheduleProcess(ctx context.Context) {
	if !q.runScheduled.CompareAndSwap(false, true) {
		q.logger.Debug("processing run already scheduled", logfields.Event("queue_process_already_scheduled"))
		return
	}

	q.actionPool.Queue(func() {
		q.runScheduled.Store(false)
		q.process(ctx)
	})

	q.logger.Debug("processing run scheduled", logfields.Event("queue_process_scheduled"))
}

// process processes the head entries until the queue is empty or the head
// entry has to wait.
func (q *queue) process(ctx context.Context) {
	q.lastRun.Store(time.Now())
	q.processRuns.Add(1)

	for ctx.Err() == nil {
		head, err := q.store.Head(ctx, q.branch)
		if err != nil {
			q.logger.Error(
				"retrieving queue head failed",
				logfields.Event("queue_head_retrieval_failed"),
				zap.Error(err),
			)
			return
		}

		if head == nil {
			q.logger.Debug("queue is empty", logfields.Event("queue_empty"))
			metrics.QueueSizeSet(q.branch, 0)
			return
		}

		taskCtx, cancelFunc := context.WithCancel(ctx)
		q.executing.Store(&runningTask{
			entryID:       head.ID,
			changeRequest: head.ChangeRequest,
			cancelFunc:    cancelFunc,
		})

		advanced := q.processHead(taskCtx, head)

		q.executing.Store(nil)
		cancelFunc()

		q.updateQueueSizeMetric(ctx)

		if !advanced {
			return
		}
	}
}

func (q *queue) updateQueueSizeMetric(ctx context.Context) {
	entries, err := q.store.List(ctx, q.branch)
	if err != nil {
		return
	}

	metrics.QueueSizeSet(q.branch, len(entries))
}

// processHead runs the state machine for the head entry e.
// It returns true if the head of the queue changed and the next entry can
// be processed.
func (q *queue) processHead(ctx context.Context, e *Entry) bool {
	logger := q.logger.With(e.LogFields()...)

	logger.Debug("processing queue head", logfields.Event("queue_head_processing"))

	if err := q.store.SetState(ctx, q.branch, e.ChangeRequest, e.ID, StateValidating, e.LastError); err != nil {
		return q.handleStoreErr(logger, err)
	}

	var snap *snapshot.Snapshot
	err := q.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		snap, err = q.ghClient.FetchSnapshot(ctx, e.ChangeRequest)
		return err
	}, e.LogFields())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return q.finish(ctx, logger, e, nil, StateCancelled, &amerr.StaleStateError{Reason: "pull request does not exist anymore"})
		}

		return q.waitOnError(ctx, logger, e, "retrieving pull request state failed", err)
	}

	logger = logger.With(logfields.Commit(snap.HeadCommit()))

	// a previous run merged it but could not remove the entry
	if e.State == StateMerging && snap.State() == snapshot.StateMerged {
		return q.finish(ctx, logger, e, snap, StateMerged, nil)
	}

	if reason := unmergeableReason(e, snap); reason != "" {
		return q.finish(ctx, logger, e, snap, StateCancelled, &amerr.StaleStateError{Reason: reason})
	}

	if e.Rule == nil {
		return q.finish(ctx, logger, e, snap, StateFailed, amerr.NewConfigurationError("queue entry", errors.New("rule of queue entry is missing")))
	}

	verdict, results := rules.Revalidate(e.Rule, snap)
	switch verdict {
	case rules.VerdictMatch:

	case rules.VerdictPending:
		logger.Info(
			"rule conditions are pending, waiting for their results",
			logfields.Event("queue_head_validation_pending"),
		)

		if err := q.store.SetState(ctx, q.branch, e.ChangeRequest, e.ID, StateQueued, e.LastError); err != nil {
			return q.handleStoreErr(logger, err)
		}

		return false

	default:
		reason := fmt.Sprintf("conditions of rule %q are not fulfilled anymore: %s",
			e.Rule.Name(), conditionsString(rules.UnsatisfiedConditions(results)))
		return q.finish(ctx, logger, e, snap, StateCancelled, &amerr.StaleStateError{Reason: reason})
	}

	if !snap.UpToDate() {
		return q.retryAfterUpdate(ctx, logger, e, snap, "branch is not uptodate with base branch")
	}

	if err := q.store.SetState(ctx, q.branch, e.ChangeRequest, e.ID, StateMerging, e.LastError); err != nil {
		return q.handleStoreErr(logger, err)
	}

	var result githubclt.MergeResult
	var reason string
	err = q.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		result, reason, err = q.ghClient.MergePullRequest(
			ctx,
			e.ChangeRequest.RepositoryOwner,
			e.ChangeRequest.Repository,
			e.ChangeRequest.Number,
			snap.HeadCommit(),
			string(e.Method),
		)
		return err
	}, e.LogFields())
	if err != nil {
		if amerr.IsPermanent(err) {
			return q.finish(ctx, logger, e, snap, StateFailed, err)
		}

		return q.waitOnError(ctx, logger, e, "merging pull request failed", err)
	}

	metrics.MergeAttemptsInc(q.branch, result.String())

	logger = logger.With(zap.Stringer("github.merge_result", result), logfields.Reason(reason))

	switch result {
	case githubclt.MergeResultMerged:
		return q.finish(ctx, logger, e, snap, StateMerged, nil)

	case githubclt.MergeResultConflict, githubclt.MergeResultOutOfDate:
		return q.retryAfterUpdate(ctx, logger, e, snap, fmt.Sprintf("merge failed (%s): %s", result, reason))

	case githubclt.MergeResultForbidden:
		return q.finish(ctx, logger, e, snap, StateFailed, amerr.NewPermanentError(fmt.Errorf("merge forbidden: %s", reason)))

	default:
		return q.waitOnError(ctx, logger, e, "merging pull request failed", fmt.Errorf("unexpected merge result: %s", result))
	}
}

func unmergeableReason(e *Entry, snap *snapshot.Snapshot) string {
	switch snap.State() {
	case snapshot.StateMerged:
		return "pull request was merged externally"
	case snapshot.StateClosed:
		return "pull request was closed"
	}

	if snap.BaseBranch() != e.BaseBranch {
		return fmt.Sprintf("base branch changed from %q to %q", e.BaseBranch, snap.BaseBranch())
	}

	return ""
}

// retryAfterUpdate increments the attempts of e, if the ceiling is exceeded
// the entry fails. Otherwise the branch is updated with its base branch and
// the entry is moved to the tail of the queue.
func (q *queue) retryAfterUpdate(ctx context.Context, logger *zap.Logger, e *Entry, snap *snapshot.Snapshot, reason string) bool {
	attempts := e.Attempts + 1
	logger = logger.With(logfields.QueueAttempt(attempts), logfields.Reason(reason))

	if attempts > e.MaxAttempts {
		return q.finish(ctx, logger, e, snap, StateFailed, &amerr.QueueExhaustedError{
			Attempts:    e.Attempts,
			MaxAttempts: e.MaxAttempts,
			LastErr:     errors.New(reason),
		})
	}

	var updateRes *githubclt.UpdateBranchResult
	err := q.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		updateRes, err = q.ghClient.UpdateBranch(ctx, e.ChangeRequest.RepositoryOwner, e.ChangeRequest.Repository, e.ChangeRequest.Number)
		return err
	}, e.LogFields())
	switch {
	case err == nil:
		logger.Info(
			"updated branch with base branch",
			logfields.Event("queue_head_branch_updated"),
			zap.Bool("github.branch_changed", updateRes.Changed),
			zap.Bool("github.branch_update_scheduled", updateRes.Scheduled),
		)

	case amerr.IsPermanent(err):
		return q.finish(ctx, logger, e, snap, StateFailed, fmt.Errorf("updating branch with base branch failed: %w", err))

	case ctx.Err() != nil:
		return q.waitOnError(ctx, logger, e, "updating branch with base branch failed", err)

	default:
		logger.Warn(
			"updating branch with base branch failed, requeuing entry",
			logfields.Event("queue_head_branch_update_failed"),
			zap.Error(err),
		)
	}

	if err := q.store.Requeue(ctx, q.branch, e.ChangeRequest, e.ID, attempts, reason); err != nil {
		return q.handleStoreErr(logger, err)
	}

	metrics.QueueOperationsInc(q.branch, operationLabelRequeueVal)

	logger.Info("entry moved to the tail of the queue", logfields.Event("queue_entry_requeued"))

	head, err := q.store.Head(ctx, q.branch)
	if err != nil {
		return q.handleStoreErr(logger, err)
	}

	// when the entry is the only one, it has to wait for the branch update
	// or another trigger
	return head == nil || head.ID != e.ID
}

// waitOnError sets the entry back to StateQueued, it is processed again on
// the next trigger.
func (q *queue) waitOnError(ctx context.Context, logger *zap.Logger, e *Entry, msg string, err error) bool {
	if ctx.Err() != nil {
		logger.Debug(
			"processing queue head was cancelled",
			logfields.Event("queue_head_processing_cancelled"),
			zap.Error(err),
		)

		// the entry might have been superseded, the conditional update
		// fails in this case
		_ = q.store.SetState(context.Background(), q.branch, e.ChangeRequest, e.ID, StateQueued, e.LastError)

		return false
	}

	logger.Warn(
		msg+", entry stays at the head of the queue",
		logfields.Event("queue_head_processing_failed"),
		zap.Error(err),
	)

	if err := q.store.SetState(ctx, q.branch, e.ChangeRequest, e.ID, StateQueued, err.Error()); err != nil {
		return q.handleStoreErr(logger, err)
	}

	return false
}

func (q *queue) handleStoreErr(logger *zap.Logger, err error) bool {
	if errors.Is(err, ErrSuperseded) || errors.Is(err, ErrNotFound) {
		logger.Debug(
			"queue entry was superseded or removed while it was processed",
			logfields.Event("queue_entry_superseded"),
			zap.Error(err),
		)

		return true
	}

	logger.Error(
		"updating queue entry in store failed",
		logfields.Event("queue_store_operation_failed"),
		zap.Error(err),
	)

	return false
}

// finish removes the entry from the queue and reports the terminal state
// to GitHub.
// snap can be nil.
func (q *queue) finish(ctx context.Context, logger *zap.Logger, e *Entry, snap *snapshot.Snapshot, state State, reason error) bool {
	// a merged pull request must be removed, even if processing was
	// cancelled in the meantime
	storeCtx := context.WithoutCancel(ctx)

	headCommit := e.HeadCommit
	if snap != nil {
		headCommit = snap.HeadCommit()
	}

	if _, err := q.store.Remove(storeCtx, q.branch, e.ChangeRequest, e.ID); err != nil {
		if state != StateMerged {
			return q.handleStoreErr(logger, err)
		}

		if !errors.Is(err, ErrSuperseded) {
			// the entry stays in StateMerging, the next run
			// finishes it
			q.report(ctx, logger, e, headCommit, state, reason)
			return q.handleStoreErr(logger, err)
		}

		// the pull request was merged, a newer entry for it is obsolete
		if _, err := q.store.Remove(storeCtx, q.branch, e.ChangeRequest, AnyID); err != nil {
			q.report(ctx, logger, e, headCommit, state, reason)
			return q.handleStoreErr(logger, err)
		}
	}

	metrics.QueueOperationsInc(q.branch, operationLabelRemoveVal)
	metrics.OutcomesInc(q.branch, state)

	logger = logger.With(logfields.QueueState(string(state)))
	if reason != nil {
		logger = logger.With(zap.NamedError("reason", reason))
	}

	switch state {
	case StateMerged:
		logger.Info("pull request merged", logfields.Event("queue_entry_merged"))
	case StateFailed:
		logger.Warn("merging pull request failed", logfields.Event("queue_entry_failed"))
	default:
		logger.Info("queue entry cancelled", logfields.Event("queue_entry_cancelled"))
	}

	q.report(ctx, logger, e, headCommit, state, reason)

	return true
}

func (q *queue) report(ctx context.Context, logger *zap.Logger, e *Entry, headCommit string, state State, reason error) {
	if q.statusContext != "" && headCommit != "" {
		status := githubclt.CommitStatus{
			Context:     q.statusContext,
			State:       commitStatusState(state),
			Description: statusDescription(state, reason),
		}

		err := q.retryer.Run(ctx, func(ctx context.Context) error {
			return q.ghClient.CreateCommitStatus(ctx, e.ChangeRequest.RepositoryOwner, e.ChangeRequest.Repository, headCommit, &status)
		}, e.LogFields())
		if err != nil {
			logger.Warn("setting commit status failed",
				logfields.Event("queue_commit_status_creation_failed"),
				zap.Error(err),
			)
		}
	}

	if state != StateFailed {
		return
	}

	comment := fmt.Sprintf("The merge queue removed the pull request from the `%s` queue, merging failed:\n```\n%s\n```",
		e.BaseBranch, reason)
	err := q.retryer.Run(ctx, func(ctx context.Context) error {
		return q.ghClient.CreateIssueComment(ctx, e.ChangeRequest.RepositoryOwner, e.ChangeRequest.Repository, e.ChangeRequest.Number, comment)
	}, e.LogFields())
	if err != nil {
		logger.Warn("posting failure comment failed",
			logfields.Event("queue_failure_comment_creation_failed"),
			zap.Error(err),
		)
	}
}

func commitStatusState(state State) string {
	switch state {
	case StateMerged:
		return "success"
	case StateFailed:
		return "failure"
	case StateCancelled:
		return "error"
	default:
		return "pending"
	}
}

func statusDescription(state State, reason error) string {
	var desc string
	switch state {
	case StateMerged:
		desc = "Merged"
	case StateFailed:
		desc = "Failed"
	case StateCancelled:
		desc = "Removed from merge queue"
	default:
		desc = "Queued for merge"
	}

	if reason != nil {
		desc += ": " + reason.Error()
	}

	return stringutils.Truncate(desc, maxStatusDescriptionLen)
}

func conditionsString(results []rules.ConditionResult) string {
	strs := make([]string, 0, len(results))
	for _, r := range results {
		strs = append(strs, r.Condition.String())
	}

	return strings.Join(strs, ", ")
}

// stop cancels the running processing run and waits until the go-routine
// pool terminated.
func (q *queue) stop() {
	q.logger.Debug("terminating", logfields.Event("queue_terminating"))

	if running := q.executing.Load(); running != nil {
		running.cancelFunc()
	}

	q.actionPool.Wait()

	q.logger.Debug("terminated", logfields.Event("queue_terminated"))
}
