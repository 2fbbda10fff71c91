// Package dispatcher receives events about change requests, evaluates the
// rules of their repositories and runs the actions of the matching rules.
//
// Merge actions are not run directly, they enqueue the change request into
// the merge queue of its base branch.
// Events for the same change request are processed sequentially, events for
// different change requests concurrently.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/action"
	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/mergequeue"
	"github.com/simplesurance/automerger/internal/provider"
	"github.com/simplesurance/automerger/internal/routines"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
	"github.com/simplesurance/automerger/internal/stringutils"
)

const loggerName = "dispatcher"

// DefEventChannelBufferSize is the default size of the channel returned by C.
const DefEventChannelBufferSize = 1024

// DefWorkers is the default number of change requests that are processed
// concurrently.
const DefWorkers = 8

// DefRulesCheckStatusContext is the default context of the commit status
// that reports if a modified rule file is valid.
const DefRulesCheckStatusContext = "automerger/rules-check"

const maxStatusDescriptionLen = 140

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . GithubClient,RuleSource,Executor,MergeQueue

// GithubClient is the GitHub API client used by the dispatcher.
type GithubClient interface {
	FetchSnapshot(ctx context.Context, id snapshot.ChangeRequestID) (*snapshot.Snapshot, error)
	PullRequestsWithCommit(ctx context.Context, owner, repo, sha string) ([]int, error)
	PullRequestModifiesFile(ctx context.Context, owner, repo string, pullRequestNumber int, path string) (bool, error)
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	CreateCommitStatus(ctx context.Context, owner, repo, commit string, status *githubclt.CommitStatus) error
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
	HasIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, body string) (bool, error)
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
	ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) githubclt.PRIterator
}

// RuleSource provides the rules of a repository.
type RuleSource interface {
	RuleSet(ctx context.Context, owner, repo string) (*rules.RuleSet, error)
	// Path returns the path of the rule file in the repository, it is
	// empty if rules are not read from repositories.
	Path() string
	Validate(ctx context.Context, owner, repo, ref string) error
}

// Executor runs the actions of matched rules.
type Executor interface {
	ExecuteAll(ctx context.Context, matches []rules.MatchedRule, snap *snapshot.Snapshot) []*action.Result
}

// MergeQueue accepts merge requests of change requests.
type MergeQueue interface {
	Enqueue(ctx context.Context, e *mergequeue.Entry) error
	Cancel(ctx context.Context, cr snapshot.ChangeRequestID, reason string) ([]*mergequeue.Entry, error)
	Get(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID) (*mergequeue.Entry, error)
	Kick(branch mergequeue.BranchID)
}

// Retryer is an interface used for running GithubClient methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Dispatcher processes events of change requests.
type Dispatcher struct {
	ch chan *provider.Event

	ghClient   GithubClient
	ruleSource RuleSource
	executor   Executor
	queue      MergeQueue
	retryer    Retryer
	logger     *zap.Logger

	repositories            map[Repository]struct{}
	statusContext           string
	rulesCheckStatusContext string
	maxAttempts             int
	workerCnt               int

	lock    sync.Mutex
	workers []*routines.Pool
	stopped bool
}

type Opt func(*Dispatcher)

// WithRepositories restricts processing to events of the given
// repositories. By default events of all repositories are processed.
// InitialSync only syncs the configured repositories.
func WithRepositories(repos ...Repository) Opt {
	return func(d *Dispatcher) {
		for _, r := range repos {
			d.repositories[r] = struct{}{}
		}
	}
}

// WithStatusContext sets the context of the merge queue commit status, that
// is set when a queued change request is closed.
// Status events for the context are ignored.
func WithStatusContext(statusContext string) Opt {
	return func(d *Dispatcher) {
		d.statusContext = statusContext
	}
}

// WithRulesCheckStatusContext sets the context of the commit status that
// reports the validity of a modified rule file.
func WithRulesCheckStatusContext(statusContext string) Opt {
	return func(d *Dispatcher) {
		d.rulesCheckStatusContext = statusContext
	}
}

// WithMaxAttempts sets the number of requeues after failed merges of queue
// entries whose rule does not specify it.
func WithMaxAttempts(n int) Opt {
	return func(d *Dispatcher) {
		d.maxAttempts = n
	}
}

// WithWorkers sets the number of change requests that are processed
// concurrently.
func WithWorkers(n int) Opt {
	return func(d *Dispatcher) {
		d.workerCnt = n
	}
}

func New(
	ghClient GithubClient,
	ruleSource RuleSource,
	executor Executor,
	queue MergeQueue,
	retryer Retryer,
	opts ...Opt,
) *Dispatcher {
	d := Dispatcher{
		ch:                      make(chan *provider.Event, DefEventChannelBufferSize),
		ghClient:                ghClient,
		ruleSource:              ruleSource,
		executor:                executor,
		queue:                   queue,
		retryer:                 retryer,
		logger:                  zap.L().Named(loggerName),
		repositories:            map[Repository]struct{}{},
		statusContext:           mergequeue.DefStatusContext,
		rulesCheckStatusContext: DefRulesCheckStatusContext,
		maxAttempts:             mergequeue.DefMaxAttempts,
		workerCnt:               DefWorkers,
	}

	for _, opt := range opts {
		opt(&d)
	}

	if d.workerCnt < 1 {
		d.workerCnt = 1
	}

	return &d
}

// C returns the channel to that events must be sent.
func (d *Dispatcher) C() chan<- *provider.Event {
	return d.ch
}

// Run processes events received via C until ctx is cancelled or the channel
// is closed. Before returning it waits until all scheduled events were
// processed.
// Run must only be called once.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", logfields.Event("dispatcher_started"))

	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info(
				"dispatcher terminating, context cancelled",
				logfields.Event("dispatcher_terminating"),
			)
			return

		case pev, ok := <-d.ch:
			if !ok {
				d.logger.Info(
					"dispatcher terminating, event channel closed",
					logfields.Event("dispatcher_terminating"),
				)
				return
			}

			ev := FromProviderEvent(pev)
			if ev == nil {
				d.logger.Debug(
					"ignoring irrelevant event",
					append(pev.LogFields(), logfields.Event("event_ignored"))...,
				)
				continue
			}

			d.schedule(ctx, ev)
		}
	}
}

func (d *Dispatcher) stop() {
	d.lock.Lock()
	d.stopped = true
	workers := d.workers
	d.lock.Unlock()

	for _, w := range workers {
		w.Wait()
	}

	d.logger.Info("dispatcher terminated", logfields.Event("dispatcher_terminated"))
}

// schedule queues the processing of ev in the worker that is responsible for
// its change request.
func (d *Dispatcher) schedule(ctx context.Context, ev *Event) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.stopped {
		d.logger.Debug(
			"dispatcher is stopped, event is dropped",
			append(ev.LogFields(), logfields.Event("event_dropped"))...,
		)
		return
	}

	if d.workers == nil {
		d.workers = make([]*routines.Pool, d.workerCnt)
		for i := range d.workers {
			d.workers[i] = routines.NewPool(1)
		}
	}

	w := d.workers[workerIndex(ev, len(d.workers))]
	w.Queue(func() {
		d.process(ctx, ev)
	})
}

func workerIndex(ev *Event, cnt int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.ChangeRequest.RepositoryOwner))
	_, _ = h.Write([]byte{'/'})
	_, _ = h.Write([]byte(ev.ChangeRequest.Repository))

	if ev.ChangeRequest.Number != 0 {
		_, _ = fmt.Fprintf(h, "#%d", ev.ChangeRequest.Number)
	} else {
		_, _ = h.Write([]byte(ev.CommitID))
	}

	return int(h.Sum32() % uint32(cnt))
}

// process is run by the workers.
// Check events of commits are resolved to events of their change requests,
// that are scheduled to the workers responsible for them.
func (d *Dispatcher) process(ctx context.Context, ev *Event) {
	logger := d.logger.With(ev.LogFields()...)

	if ev.Kind == EventKindCheck && ev.ChangeRequest.Number == 0 {
		evs, err := d.resolveCommitEvent(ctx, logger, ev)
		if err != nil {
			logger.Warn(
				"resolving change requests of commit failed, event is dropped",
				logfields.Event("event_processing_failed"),
				zap.Error(err),
			)
			return
		}

		for _, e := range evs {
			d.schedule(ctx, e)
		}

		return
	}

	if err := d.dispatch(ctx, logger, ev); err != nil {
		logger.Warn(
			"processing event failed",
			logfields.Event("event_processing_failed"),
			zap.Error(err),
		)
	}
}

// Dispatch processes ev synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	logger := d.logger.With(ev.LogFields()...)

	if ev.Kind == EventKindCheck && ev.ChangeRequest.Number == 0 {
		evs, err := d.resolveCommitEvent(ctx, logger, ev)
		if err != nil {
			return err
		}

		var errs []error
		for _, e := range evs {
			errs = append(errs, d.dispatch(ctx, d.logger.With(e.LogFields()...), e))
		}

		return errors.Join(errs...)
	}

	return d.dispatch(ctx, logger, ev)
}

func (d *Dispatcher) isMonitored(owner, repo string) bool {
	if len(d.repositories) == 0 {
		return true
	}

	_, exist := d.repositories[Repository{Owner: owner, Name: repo}]
	return exist
}

func (d *Dispatcher) isOwnStatus(checkName string) bool {
	return checkName != "" &&
		(checkName == d.statusContext || checkName == d.rulesCheckStatusContext)
}

func (d *Dispatcher) dispatch(ctx context.Context, logger *zap.Logger, ev *Event) error {
	if !d.isMonitored(ev.ChangeRequest.RepositoryOwner, ev.ChangeRequest.Repository) {
		logger.Debug(
			"ignoring event of unmonitored repository",
			logfields.Event("event_ignored"),
		)
		return nil
	}

	switch ev.Kind {
	case EventKindPush:
		d.queue.Kick(mergequeue.BranchID{
			RepositoryOwner: ev.ChangeRequest.RepositoryOwner,
			Repository:      ev.ChangeRequest.Repository,
			Branch:          ev.BaseBranch,
		})
		return nil

	case EventKindClosed:
		return d.processClosed(ctx, logger, ev)

	case EventKindCheck:
		if d.isOwnStatus(ev.CheckName) {
			logger.Debug(
				"ignoring event of own commit status",
				logfields.Event("event_ignored"),
			)
			return nil
		}

		return d.processChangeRequest(ctx, logger, ev)

	case EventKindRefresh:
		return d.processChangeRequest(ctx, logger, ev)

	default:
		return fmt.Errorf("unsupported event kind: %q", ev.Kind)
	}
}

func (d *Dispatcher) resolveCommitEvent(ctx context.Context, logger *zap.Logger, ev *Event) ([]*Event, error) {
	var prs []int

	if !d.isMonitored(ev.ChangeRequest.RepositoryOwner, ev.ChangeRequest.Repository) {
		return nil, nil
	}

	if d.isOwnStatus(ev.CheckName) {
		return nil, nil
	}

	err := d.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		prs, err = d.ghClient.PullRequestsWithCommit(
			ctx,
			ev.ChangeRequest.RepositoryOwner,
			ev.ChangeRequest.Repository,
			ev.CommitID,
		)
		return err
	}, append(ev.LogFields(), logfields.Event("github_pull_requests_with_commit")))
	if err != nil {
		return nil, fmt.Errorf("retrieving pull requests with commit %s failed: %w", ev.CommitID, err)
	}

	if len(prs) == 0 {
		logger.Debug(
			"no open pull request has the commit as head, ignoring event",
			logfields.Event("event_ignored"),
		)
		return nil, nil
	}

	result := make([]*Event, 0, len(prs))
	for _, nr := range prs {
		e := *ev
		e.ChangeRequest.Number = nr
		result = append(result, &e)
	}

	return result, nil
}

func (d *Dispatcher) processClosed(ctx context.Context, logger *zap.Logger, ev *Event) error {
	var errs []error

	reason := "pull request was closed"
	if ev.Merged {
		reason = "pull request was merged"
	}

	removed, err := d.queue.Cancel(ctx, ev.ChangeRequest, reason)
	if err != nil {
		errs = append(errs, fmt.Errorf("removing change request from merge queues failed: %w", err))
	}

	if len(removed) > 0 && ev.CommitID != "" {
		status := githubclt.CommitStatus{
			State:       "error",
			Context:     d.statusContext,
			Description: "Closed unmerged",
		}
		if ev.Merged {
			status.State = "success"
			status.Description = "Merged"
		}

		err := d.createCommitStatus(ctx, ev.ChangeRequest, ev.CommitID, &status)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.HasPrefix(ev.HeadBranch, githubclt.BackportBranchPrefix) {
		err := d.retryer.Run(ctx, func(ctx context.Context) error {
			return d.ghClient.DeleteBranch(
				ctx,
				ev.ChangeRequest.RepositoryOwner,
				ev.ChangeRequest.Repository,
				ev.HeadBranch,
			)
		}, append(ev.LogFields(), logfields.Event("github_delete_branch")))
		if err != nil {
			errs = append(errs, fmt.Errorf("deleting backport branch %q failed: %w", ev.HeadBranch, err))
		} else {
			logger.Info(
				"deleted branch of closed backport pull request",
				logfields.Event("backport_branch_deleted"),
				logfields.Branch(ev.HeadBranch),
			)
		}
	}

	if ev.Merged {
		// rules with actions that apply to merged change requests
		// (backports) are evaluated
		if err := d.processChangeRequest(ctx, logger, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) fetchSnapshot(ctx context.Context, cr snapshot.ChangeRequestID) (*snapshot.Snapshot, error) {
	var snap *snapshot.Snapshot

	err := d.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		snap, err = d.ghClient.FetchSnapshot(ctx, cr)
		return err
	}, append(cr.LogFields(), logfields.Event("github_fetch_snapshot")))

	return snap, err
}

func (d *Dispatcher) processChangeRequest(ctx context.Context, logger *zap.Logger, ev *Event) error {
	snap, err := d.fetchSnapshot(ctx, ev.ChangeRequest)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			logger.Info(
				"change request does not exist anymore, removing it from merge queues",
				logfields.Event("change_request_not_found"),
			)

			_, err := d.queue.Cancel(ctx, ev.ChangeRequest, "pull request does not exist anymore")
			return err
		}

		return fmt.Errorf("fetching state of %s failed: %w", ev.ChangeRequest, err)
	}

	logger = logger.With(logfields.Commit(snap.HeadCommit()))

	if ev.Kind == EventKindCheck && ev.CommitID != "" && ev.CommitID != snap.HeadCommit() {
		logger.Debug(
			"ignoring event for commit that is not the head of the change request",
			logfields.Event("event_stale"),
		)
		return nil
	}

	if ev.Kind == EventKindRefresh && snap.IsOpen() {
		d.checkRuleFile(ctx, logger, snap)
	}

	rs, err := d.ruleSource.RuleSet(ctx, ev.ChangeRequest.RepositoryOwner, ev.ChangeRequest.Repository)
	if err != nil {
		if amerr.IsConfiguration(err) {
			logger.Error(
				"rules of repository are invalid, change request is not processed",
				logfields.Event("rule_set_invalid"),
				zap.Error(err),
			)
		}

		return fmt.Errorf("loading rules failed: %w", err)
	}

	logger = logger.With(logfields.RuleSetVersion(rs.Version()))

	matches := rs.Match(snap)
	if len(matches) == 0 {
		logger.Debug("no rule matches", logfields.Event("rules_not_matched"))
		return nil
	}

	var errs []error

	for _, res := range d.executor.ExecuteAll(ctx, matches, snap) {
		if res.Merge != nil {
			if err := d.enqueue(ctx, logger, rs, snap, res.Merge); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if res.Outcome != action.OutcomeFailure {
			continue
		}

		errs = append(errs, fmt.Errorf("action %s of rule %q failed: %w", res.Action.Kind(), res.Rule.Name(), res.Err))

		if res.IsPermanentFailure() {
			d.reportActionFailure(ctx, logger, snap, res)
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(
	ctx context.Context,
	logger *zap.Logger,
	rs *rules.RuleSet,
	snap *snapshot.Snapshot,
	directive *action.MergeDirective,
) error {
	if !snap.IsOpen() {
		return nil
	}

	maxAttempts := d.maxAttempts
	if directive.Options.MaxAttempts > 0 {
		maxAttempts = directive.Options.MaxAttempts
	}

	entry := mergequeue.NewEntry(
		directive.ChangeRequest,
		directive.BaseBranch,
		directive.HeadCommit,
		directive.Rule,
		rs.Version(),
		directive.Options.Method,
		maxAttempts,
	)

	existing, err := d.queue.Get(ctx, entry.Branch(), entry.ChangeRequest)
	if err != nil && !errors.Is(err, mergequeue.ErrNotFound) {
		return fmt.Errorf("looking up merge queue entry failed: %w", err)
	}

	if existing != nil && isSameEnqueueRequest(existing, entry) {
		logger.Debug(
			"change request is already queued for the same commit and rule, triggering queue processing",
			logfields.Event("merge_queue_entry_exists"),
		)
		// the entry might wait at the head for a pending check that
		// completed now
		d.queue.Kick(existing.Branch())
		return nil
	}

	if err := d.queue.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueuing into merge queue failed: %w", err)
	}

	return nil
}

func isSameEnqueueRequest(a, b *mergequeue.Entry) bool {
	return !a.State.IsTerminal() &&
		a.HeadCommit == b.HeadCommit &&
		a.RuleSetVersion == b.RuleSetVersion &&
		a.Rule.Name() == b.Rule.Name() &&
		a.Method == b.Method &&
		a.MaxAttempts == b.MaxAttempts
}

func (d *Dispatcher) reportActionFailure(ctx context.Context, logger *zap.Logger, snap *snapshot.Snapshot, res *action.Result) {
	cr := snap.ID()
	comment := fmt.Sprintf(
		"automerger: running action %s of rule %q failed: %s",
		res.Action.Kind(), res.Rule.Name(), res.Err,
	)

	err := d.retryer.Run(ctx, func(ctx context.Context) error {
		exists, err := d.ghClient.HasIssueComment(ctx, cr.RepositoryOwner, cr.Repository, cr.Number, comment)
		if err != nil {
			return err
		}

		if exists {
			return nil
		}

		return d.ghClient.CreateIssueComment(ctx, cr.RepositoryOwner, cr.Repository, cr.Number, comment)
	}, append(cr.LogFields(), logfields.Event("github_create_issue_comment")))
	if err != nil {
		logger.Warn(
			"reporting failed action as comment failed",
			logfields.Event("action_failure_report_failed"),
			logfields.Rule(res.Rule.Name()),
			zap.Error(err),
		)
	}
}

// checkRuleFile validates the rule file of the change request if it
// modifies it and targets the default branch. The result is reported as
// commit status.
func (d *Dispatcher) checkRuleFile(ctx context.Context, logger *zap.Logger, snap *snapshot.Snapshot) {
	path := d.ruleSource.Path()
	if path == "" {
		return
	}

	cr := snap.ID()
	logFields := append(cr.LogFields(), logfields.Event("rule_file_check"))

	var defBranch string
	err := d.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		defBranch, err = d.ghClient.DefaultBranch(ctx, cr.RepositoryOwner, cr.Repository)
		return err
	}, logFields)
	if err != nil {
		logger.Warn(
			"retrieving default branch failed, skipping rule file check",
			logfields.Event("rule_file_check_failed"),
			zap.Error(err),
		)
		return
	}

	if snap.BaseBranch() != defBranch {
		return
	}

	var modified bool
	err = d.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		modified, err = d.ghClient.PullRequestModifiesFile(ctx, cr.RepositoryOwner, cr.Repository, cr.Number, path)
		return err
	}, logFields)
	if err != nil {
		logger.Warn(
			"checking if pull request modifies rule file failed, skipping rule file check",
			logfields.Event("rule_file_check_failed"),
			zap.Error(err),
		)
		return
	}

	if !modified {
		return
	}

	status := githubclt.CommitStatus{
		State:       "success",
		Context:     d.rulesCheckStatusContext,
		Description: "rule file is valid",
	}

	err = d.ruleSource.Validate(ctx, cr.RepositoryOwner, cr.Repository, snap.HeadCommit())
	if err != nil {
		if !amerr.IsConfiguration(err) {
			logger.Warn(
				"validating rule file failed",
				logfields.Event("rule_file_check_failed"),
				zap.Error(err),
			)
			return
		}

		status.State = "failure"
		status.Description = stringutils.Truncate(err.Error(), maxStatusDescriptionLen)
	}

	logger.Info(
		"validated modified rule file",
		logfields.Event("rule_file_checked"),
		zap.String("status", status.State),
	)

	if err := d.createCommitStatus(ctx, cr, snap.HeadCommit(), &status); err != nil {
		logger.Warn(
			"reporting rule file check result failed",
			logfields.Event("rule_file_check_failed"),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) createCommitStatus(ctx context.Context, cr snapshot.ChangeRequestID, commit string, status *githubclt.CommitStatus) error {
	err := d.retryer.Run(ctx, func(ctx context.Context) error {
		return d.ghClient.CreateCommitStatus(ctx, cr.RepositoryOwner, cr.Repository, commit, status)
	}, append(cr.LogFields(), logfields.Commit(commit), logfields.Event("github_create_commit_status")))
	if err != nil {
		return fmt.Errorf("creating commit status %q failed: %w", status.Context, err)
	}

	return nil
}

// InitialSync schedules refresh events for all open change requests of the
// repositories passed via WithRepositories.
// It must be called after Run was started.
func (d *Dispatcher) InitialSync(ctx context.Context) error {
	var errs []error

	for repo := range d.repositories {
		cnt, err := d.syncRepository(ctx, repo)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", repo, err))
		}

		d.logger.Info(
			"scheduled processing of open pull requests",
			logfields.Event("initial_sync_scheduled"),
			logfields.RepositoryOwner(repo.Owner),
			logfields.Repository(repo.Name),
			zap.Int("pull_requests", cnt),
		)
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) syncRepository(ctx context.Context, repo Repository) (int, error) {
	var cnt int

	it := d.ghClient.ListPullRequests(ctx, repo.Owner, repo.Name, "open", "created", "asc")
	logFields := []zap.Field{
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Name),
		logfields.Event("github_list_pull_requests"),
	}

	for {
		var pr *github.PullRequest
		err := d.retryer.Run(ctx, func(context.Context) error {
			var err error
			pr, err = it.Next()
			return err
		}, logFields)
		if err != nil {
			return cnt, fmt.Errorf("listing open pull requests failed: %w", err)
		}

		if pr == nil {
			return cnt, nil
		}

		d.schedule(ctx, &Event{
			Kind: EventKindRefresh,
			ChangeRequest: snapshot.ChangeRequestID{
				RepositoryOwner: repo.Owner,
				Repository:      repo.Name,
				Number:          pr.GetNumber(),
			},
			BaseBranch: pr.GetBase().GetRef(),
			CommitID:   pr.GetHead().GetSHA(),
		})
		cnt++
	}
}
