// Package mergequeue serializes merges of pull requests per base branch.
//
// Per base branch a queue of entries is kept. Only the first entry of a
// queue is processed: its pull request state is fetched again, the
// conditions of the rule that enqueued it are re-validated and if they are
// still fulfilled it is merged. When GitHub reports that the branch is
// out of date or can not be merged, the branch is updated with its base
// branch and the entry is moved to the tail of the queue.
package mergequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/snapshot"
)

const loggerName = "merge_queue"

// DefPeriodicTriggerInterval is the default interval in that the heads of
// all queues are processed, independent of received events.
const DefPeriodicTriggerInterval = 10 * time.Minute

// DefStatusContext is the default context of the commit status that
// reports the result of queue entries.
const DefStatusContext = "automerger/merge-queue"

//go:generate mockgen -destination=mocks/mock_githubclient.go -package=mocks . GithubClient

// GithubClient is the GitHub API client used by the queues.
type GithubClient interface {
	FetchSnapshot(ctx context.Context, id snapshot.ChangeRequestID) (*snapshot.Snapshot, error)
	MergePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, headSHA, method string) (githubclt.MergeResult, string, error)
	UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) (*githubclt.UpdateBranchResult, error)
	CreateCommitStatus(ctx context.Context, owner, repo, commit string, status *githubclt.CommitStatus) error
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

// Retryer is an interface used for running GithubClient methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

// Coordinator owns one queue per base branch.
// It is the only way to change queue membership from outside of the queue
// workers.
type Coordinator struct {
	store         Store
	ghClient      GithubClient
	retryer       Retryer
	statusContext string
	logger        *zap.Logger

	periodicTriggerIntv time.Duration

	queues  map[BranchID]*queue
	lock    sync.Mutex
	stopped bool

	// ctx is passed to all queue processing runs, it is cancelled on
	// Stop.
	ctx       context.Context
	cancelCtx context.CancelFunc

	wg sync.WaitGroup
}

// Opt is an option for NewCoordinator.
type Opt func(*Coordinator)

// WithPeriodicTriggerInterval sets the interval in that all queues are
// processed. Values <=0 disable periodic processing.
func WithPeriodicTriggerInterval(d time.Duration) Opt {
	return func(c *Coordinator) {
		c.periodicTriggerIntv = d
	}
}

// WithStatusContext sets the context of the commit status that is created
// when an entry was enqueued or reached a terminal state.
// An empty value disables setting commit statuses.
func WithStatusContext(statusContext string) Opt {
	return func(c *Coordinator) {
		c.statusContext = statusContext
	}
}

func NewCoordinator(store Store, ghClient GithubClient, retryer Retryer, opts ...Opt) *Coordinator {
	ctx, cancelFunc := context.WithCancel(context.Background())

	c := Coordinator{
		store:               store,
		ghClient:            ghClient,
		retryer:             retryer,
		statusContext:       DefStatusContext,
		logger:              zap.L().Named(loggerName),
		periodicTriggerIntv: DefPeriodicTriggerInterval,
		queues:              map[BranchID]*queue{},
		ctx:                 ctx,
		cancelCtx:           cancelFunc,
	}

	for _, o := range opts {
		o(&c)
	}

	return &c
}

// _getOrCreateQueue must be called with c.lock held.
func (c *Coordinator) _getOrCreateQueue(branch BranchID) *queue {
	q, exists := c.queues[branch]
	if exists {
		return q
	}

	q = newQueue(branch, c.store, c.ghClient, c.retryer, c.statusContext)
	c.queues[branch] = q

	c.logger.Debug("queue created", append(branch.LogFields(), logfields.Event("queue_created"))...)

	return q
}

// Enqueue appends e to the queue of its base branch.
// If an entry for the same change request exists, it is replaced, it keeps
// its position in the queue. If the replaced entry is currently processed,
// processing it is cancelled.
// Entries of the change request in queues for other base branches of the
// repository are removed.
func (c *Coordinator) Enqueue(ctx context.Context, e *Entry) error {
	logger := c.logger.With(e.LogFields()...)

	// the status is set before the entry is stored, to prevent that it
	// overwrites the terminal status reported by the queue worker
	c.setQueuedStatus(ctx, logger, e)

	_, err := c.enqueue(ctx, logger, e)
	return err
}

func (c *Coordinator) enqueue(ctx context.Context, logger *zap.Logger, e *Entry) (*Entry, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.stopped {
		return nil, errors.New("merge queue coordinator is stopped")
	}

	branch := e.Branch()

	if err := c._removeFromOtherBranches(ctx, logger, e); err != nil {
		return nil, err
	}

	replaced, err := c.store.Enqueue(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("storing queue entry failed: %w", err)
	}

	q := c._getOrCreateQueue(branch)

	if replaced != nil {
		metrics.QueueOperationsInc(branch, operationLabelReplaceVal)
		logger.Info(
			"queue entry replaced",
			logfields.Event("queue_entry_replaced"),
			zap.String("queue.replaced_entry_id", replaced.ID.String()),
		)
		q.cancelIfExecuting(e.ChangeRequest)
	} else {
		metrics.QueueOperationsInc(branch, operationLabelEnqueueVal)
		logger.Info("pull request enqueued", logfields.Event("queue_entry_enqueued"))
	}

	q.scheduleProcess(c.ctx)

	return replaced, nil
}

func (c *Coordinator) setQueuedStatus(ctx context.Context, logger *zap.Logger, e *Entry) {
	if c.statusContext == "" || e.HeadCommit == "" {
		return
	}

	err := c.retryer.Run(ctx, func(ctx context.Context) error {
		return c.ghClient.CreateCommitStatus(ctx, e.ChangeRequest.RepositoryOwner, e.ChangeRequest.Repository, e.HeadCommit, &githubclt.CommitStatus{
			Context:     c.statusContext,
			State:       commitStatusState(StateQueued),
			Description: statusDescription(StateQueued, nil),
		})
	}, e.LogFields())
	if err != nil {
		logger.Warn(
			"setting queued commit status failed",
			logfields.Event("queue_commit_status_creation_failed"),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) _removeFromOtherBranches(ctx context.Context, logger *zap.Logger, e *Entry) error {
	branches, err := c.store.Branches(ctx)
	if err != nil {
		return fmt.Errorf("listing queues failed: %w", err)
	}

	for _, b := range branches {
		if b == e.Branch() || b.RepositoryOwner != e.ChangeRequest.RepositoryOwner || b.Repository != e.ChangeRequest.Repository {
			continue
		}

		removed, err := c._remove(ctx, b, e.ChangeRequest)
		if err != nil {
			return err
		}

		if removed != nil {
			logger.Info(
				"removed entry from queue of previous base branch",
				logfields.Event("queue_entry_base_branch_changed"),
				zap.String("git.previous_base_branch", b.Branch),
			)
		}
	}

	return nil
}

// _remove removes the entry for cr from the queue of branch and cancels
// its processing. If no entry exists nil is returned.
func (c *Coordinator) _remove(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID) (*Entry, error) {
	removed, err := c.store.Remove(ctx, branch, cr, AnyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("removing queue entry failed: %w", err)
	}

	metrics.QueueOperationsInc(branch, operationLabelRemoveVal)
	metrics.OutcomesInc(branch, StateCancelled)

	if q, exists := c.queues[branch]; exists {
		q.cancelIfExecuting(cr)
		q.scheduleProcess(c.ctx)
	}

	return removed, nil
}

// Cancel removes the entries of the change request from all queues of its
// repository. The removed entries are returned.
func (c *Coordinator) Cancel(ctx context.Context, cr snapshot.ChangeRequestID, reason string) ([]*Entry, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.stopped {
		return nil, errors.New("merge queue coordinator is stopped")
	}

	branches, err := c.store.Branches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing queues failed: %w", err)
	}

	var result []*Entry
	for _, b := range branches {
		if b.RepositoryOwner != cr.RepositoryOwner || b.Repository != cr.Repository {
			continue
		}

		removed, err := c._remove(ctx, b, cr)
		if err != nil {
			return result, err
		}

		if removed == nil {
			continue
		}

		removed.State = StateCancelled
		result = append(result, removed)

		c.logger.Info(
			"queue entry cancelled",
			append(removed.LogFields(),
				logfields.Event("queue_entry_cancelled"),
				logfields.Reason(reason),
			)...,
		)
	}

	return result, nil
}

// Get returns the entry of the change request in the queue of the base
// branch.
func (c *Coordinator) Get(ctx context.Context, branch BranchID, cr snapshot.ChangeRequestID) (*Entry, error) {
	return c.store.Get(ctx, branch, cr)
}

// Kick schedules processing the head of the queue of the branch.
// If no entries for the branch are queued, nothing happens.
func (c *Coordinator) Kick(branch BranchID) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.stopped {
		return
	}

	q, exists := c.queues[branch]
	if !exists {
		c.logger.Debug("kick for unknown queue ignored",
			append(branch.LogFields(), logfields.Event("queue_kick_ignored"))...)
		return
	}

	q.scheduleProcess(c.ctx)
}

// KickRepository schedules processing the heads of all queues of the
// repository.
func (c *Coordinator) KickRepository(owner, repo string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.stopped {
		return
	}

	for b, q := range c.queues {
		if b.RepositoryOwner == owner && b.Repository == repo {
			q.scheduleProcess(c.ctx)
		}
	}
}

func (c *Coordinator) kickAll() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.stopped {
		return
	}

	for _, q := range c.queues {
		q.scheduleProcess(c.ctx)
	}
}

// Start creates queues for all entries in the store, schedules processing
// them and starts the periodic trigger.
func (c *Coordinator) Start(ctx context.Context) error {
	branches, err := c.store.Branches(ctx)
	if err != nil {
		return fmt.Errorf("listing queues failed: %w", err)
	}

	c.lock.Lock()
	for _, b := range branches {
		q := c._getOrCreateQueue(b)
		q.scheduleProcess(c.ctx)
	}
	c.lock.Unlock()

	c.logger.Info(
		"merge queue started",
		logfields.Event("queue_coordinator_started"),
		zap.Int("queue.count", len(branches)),
		zap.Duration("queue.periodic_trigger_interval", c.periodicTriggerIntv),
	)

	if c.periodicTriggerIntv <= 0 {
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.periodicTrigger()
	}()

	return nil
}

func (c *Coordinator) periodicTrigger() {
	ticker := time.NewTicker(c.periodicTriggerIntv)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-ticker.C:
			c.logger.Debug("periodic trigger fired", logfields.Event("queue_periodic_trigger"))
			c.kickAll()
		}
	}
}

// Stop stops the periodic trigger and all queues.
// Running processing runs are cancelled, entries stay in the store.
func (c *Coordinator) Stop() {
	c.lock.Lock()
	c.stopped = true
	c.cancelCtx()
	queues := make([]*queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.lock.Unlock()

	c.wg.Wait()

	for _, q := range queues {
		q.stop()
	}

	c.logger.Info("merge queue stopped", logfields.Event("queue_coordinator_stopped"))
}

// BranchQueue is a snapshot of the entries of a queue.
type BranchQueue struct {
	Branch  BranchID
	Entries []*Entry
	// LastRun is the time when the queue was processed the last time.
	LastRun time.Time
}

// List returns the entries of all queues, ordered by branch.
func (c *Coordinator) List(ctx context.Context) ([]*BranchQueue, error) {
	branches, err := c.store.Branches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing queues failed: %w", err)
	}

	result := make([]*BranchQueue, 0, len(branches))
	for _, b := range branches {
		entries, err := c.store.List(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("listing entries of %s queue failed: %w", b, err)
		}

		bq := BranchQueue{Branch: b, Entries: entries}

		c.lock.Lock()
		if q, exists := c.queues[b]; exists {
			bq.LastRun = q.getLastRun()
		}
		c.lock.Unlock()

		result = append(result, &bq)
	}

	return result, nil
}
