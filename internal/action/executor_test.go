package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/automerger/internal/action/mocks"
	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/retry"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

const (
	repoOwner = "octo"
	repo      = "repo"
	prNumber  = 7
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSnapshot(state snapshot.State, labels ...string) *snapshot.Snapshot {
	return snapshot.New(&snapshot.Params{
		ID:         snapshot.ChangeRequestID{RepositoryOwner: repoOwner, Repository: repo, Number: prNumber},
		BaseBranch: "main",
		HeadBranch: "feature",
		HeadCommit: "1234",
		Labels:     labels,
		State:      state,
		Title:      "fix everything",
	})
}

func mustRule(t *testing.T, actions ...map[string]any) *rules.Rule {
	t.Helper()

	r, err := rules.NewRule(&rules.RuleDef{
		Name:       "testrule",
		Conditions: []map[string]any{{"condition": "label-present", "label": "go"}},
		Actions:    actions,
	})
	require.NoError(t, err)

	return r
}

func newExecutor(t *testing.T) (*Executor, *mocks.MockClient) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	clt := mocks.NewMockClient(mockctrl)

	retryer := retry.NewRetryer(retry.WithMaxTries(3), retry.WithInitialInterval(time.Millisecond))
	t.Cleanup(retryer.Stop)

	return NewExecutor(clt, retryer), clt
}

func TestMergeActionReturnsDirective(t *testing.T) {
	exec, _ := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "merge", "method": "squash", "max_attempts": 2})
	snap := newSnapshot(snapshot.StateOpen)

	res := exec.Execute(context.Background(), r, r.Actions()[0], snap)

	assert.Equal(t, OutcomePending, res.Outcome)
	assert.NoError(t, res.Err)
	require.NotNil(t, res.Merge)
	assert.Equal(t, snap.ID(), res.Merge.ChangeRequest)
	assert.Equal(t, "main", res.Merge.BaseBranch)
	assert.Equal(t, "1234", res.Merge.HeadCommit)
	assert.Same(t, r, res.Merge.Rule)
	assert.Equal(t, rules.MergeMethodSquash, res.Merge.Options.Method)
	assert.Equal(t, 2, res.Merge.Options.MaxAttempts)
}

func TestAddLabel(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "label", "label": "{{ .Rule }}-passed"})

	clt.EXPECT().
		AddLabel(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("testrule-passed")).
		Return(nil).
		Times(1)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Nil(t, res.Merge)
}

func TestExistingLabelIsNotAddedAgain(t *testing.T) {
	exec, _ := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "label", "label": "done"})

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen, "done"))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestRemoveLabel(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "label", "label": "wip", "operation": "remove"})

	clt.EXPECT().
		RemoveLabel(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("wip")).
		Return(nil).
		Times(1)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen, "wip"))
	assert.Equal(t, OutcomeSuccess, res.Outcome)

	// label is not set, no api call is expected
	res = exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestCommentIsNotDuplicated(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "comment", "message": "PR #{{ .Snapshot.Number }} {{ .Snapshot.Title }}"})

	clt.EXPECT().
		HasIssueComment(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("PR #7 fix everything")).
		Return(true, nil).
		Times(1)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestCommentIsCreated(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "comment", "message": "hello"})

	gomock.InOrder(
		clt.EXPECT().
			HasIssueComment(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("hello")).
			Return(false, nil),
		clt.EXPECT().
			CreateIssueComment(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("hello")).
			Return(nil),
	)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestCloseClosedPRIsNoop(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "close"})

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateClosed))
	assert.Equal(t, OutcomeSuccess, res.Outcome)

	clt.EXPECT().
		ClosePullRequest(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber)).
		Return(nil).
		Times(1)

	res = exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestBackport(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "backport", "branches": []any{"release-1", "release-2"}})

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomePending, res.Outcome, "backport of an unmerged pr must wait")

	res = exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateClosed))
	assert.Equal(t, OutcomeCancelled, res.Outcome)

	gomock.InOrder(
		clt.EXPECT().
			Backport(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("release-1")).
			Return(100, nil),
		clt.EXPECT().
			Backport(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("release-2")).
			Return(101, nil),
	)

	res = exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateMerged))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestFailedBackportDoesNotPreventOtherBranches(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "backport", "branches": []any{"release-1", "release-2"}})

	gomock.InOrder(
		clt.EXPECT().
			Backport(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("release-1")).
			Return(0, amerr.NewPermanentError(errors.New("merge conflict"))),
		clt.EXPECT().
			Backport(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("release-2")).
			Return(101, nil),
	)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateMerged))
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.True(t, res.IsPermanentFailure())
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "release-1")
	assert.NotContains(t, res.Err.Error(), "release-2")
}

func TestTemporaryErrorIsRetried(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "close"})

	gomock.InOrder(
		clt.EXPECT().
			ClosePullRequest(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber)).
			Return(amerr.NewRetryableAnytimeError(errors.New("bad gateway"))),
		clt.EXPECT().
			ClosePullRequest(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber)).
			Return(nil),
	)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestPermanentFailure(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "close"})

	clt.EXPECT().
		ClosePullRequest(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber)).
		Return(amerr.NewPermanentError(errors.New("forbidden"))).
		Times(1)

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.True(t, res.IsPermanentFailure())
}

func TestLabelTemplateError(t *testing.T) {
	exec, _ := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "label", "label": "{{ .Unknown }}"})

	res := exec.Execute(context.Background(), r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Error(t, res.Err)
}

func TestExecuteAllContinuesAfterFailure(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t,
		map[string]any{"action": "label", "label": "first"},
		map[string]any{"action": "comment", "message": "second"},
		map[string]any{"action": "merge"},
	)

	gomock.InOrder(
		clt.EXPECT().
			AddLabel(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("first")).
			Return(errors.New("failed")),
		clt.EXPECT().
			HasIssueComment(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("second")).
			Return(false, nil),
		clt.EXPECT().
			CreateIssueComment(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber), gomock.Eq("second")).
			Return(nil),
	)

	results := exec.ExecuteAll(
		context.Background(),
		[]rules.MatchedRule{{Rule: r, Actions: r.Actions()}},
		newSnapshot(snapshot.StateOpen),
	)

	require.Len(t, results, 3)
	assert.Equal(t, OutcomeFailure, results[0].Outcome)
	assert.Equal(t, OutcomeSuccess, results[1].Outcome)
	assert.Equal(t, OutcomePending, results[2].Outcome)
	assert.NotNil(t, results[2].Merge)
}

func TestCancelledContext(t *testing.T) {
	exec, clt := newExecutor(t)
	r := mustRule(t, map[string]any{"action": "close"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clt.EXPECT().
		ClosePullRequest(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(prNumber)).
		Return(context.Canceled).
		AnyTimes()

	res := exec.Execute(ctx, r, r.Actions()[0], newSnapshot(snapshot.StateOpen))
	assert.Equal(t, OutcomeCancelled, res.Outcome)
}
