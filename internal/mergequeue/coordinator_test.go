package mergequeue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

func (env *testEnv) newCoordinator(t *testing.T) *Coordinator {
	c := NewCoordinator(env.store, env.clt, env.retryer, WithPeriodicTriggerInterval(0))
	t.Cleanup(c.Stop)

	return c
}

func (env *testEnv) waitForEmptyQueue(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		branches, err := env.store.Branches(context.Background())
		require.NoError(t, err)
		return len(branches) == 0
	}, condWaitTimeout, condCheckInterval)
}

func TestCoordinatorMergesEntriesInFIFOOrder(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.clt.EXPECT().CreateCommitStatus(gomock.Any(), repoOwner, repo, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	for nr := 1; nr <= 3; nr++ {
		env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(nr)).Return(newSnapshot(nr), nil)
	}

	gomock.InOrder(
		env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 1, headCommit(1), "squash").Return(githubclt.MergeResultMerged, "", nil),
		env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 2, headCommit(2), "squash").Return(githubclt.MergeResultMerged, "", nil),
		env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 3, headCommit(3), "squash").Return(githubclt.MergeResultMerged, "", nil),
	)

	for nr := 1; nr <= 3; nr++ {
		require.NoError(t, c.Enqueue(context.Background(), newTestEntry(t, nr)))
	}

	env.waitForEmptyQueue(t)
}

func TestCoordinatorProcessesBranchesIndependently(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.clt.EXPECT().CreateCommitStatus(gomock.Any(), repoOwner, repo, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	mainMergeStarted := make(chan struct{})
	releaseMainMerge := make(chan struct{})
	releaseMerged := make(chan struct{})

	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).Return(newSnapshot(1), nil)
	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 1, headCommit(1), "squash").
		DoAndReturn(func(context.Context, string, string, int, string, string) (githubclt.MergeResult, string, error) {
			close(mainMergeStarted)
			<-releaseMainMerge
			return githubclt.MergeResultMerged, "", nil
		})

	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(2)).
		Return(newSnapshot(2, func(p *snapshot.Params) { p.BaseBranch = "release" }), nil)
	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 2, headCommit(2), "squash").
		DoAndReturn(func(context.Context, string, string, int, string, string) (githubclt.MergeResult, string, error) {
			close(releaseMerged)
			return githubclt.MergeResultMerged, "", nil
		})

	require.NoError(t, c.Enqueue(context.Background(), newTestEntry(t, 1)))
	<-mainMergeStarted

	release := newTestEntry(t, 2)
	release.BaseBranch = "release"
	require.NoError(t, c.Enqueue(context.Background(), release))

	select {
	case <-releaseMerged:
	case <-time.After(condWaitTimeout):
		close(releaseMainMerge)
		t.Fatal("entry of the release branch was not merged while the main branch merge was in progress")
	}

	assert.Equal(t, []int{1}, env.queuedNumbers(t))

	close(releaseMainMerge)

	env.waitForEmptyQueue(t)
}

func TestCoordinatorProcessesOnlyTheLatestEntryOfAPullRequest(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.clt.EXPECT().CreateCommitStatus(gomock.Any(), repoOwner, repo, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	headStarted := make(chan struct{})
	releaseHead := make(chan struct{})

	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).
		DoAndReturn(func(context.Context, snapshot.ChangeRequestID) (*snapshot.Snapshot, error) {
			close(headStarted)
			<-releaseHead
			return newSnapshot(1), nil
		})
	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 1, headCommit(1), "squash").
		Return(githubclt.MergeResultMerged, "", nil)

	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(2)).
		Return(newSnapshot(2, func(p *snapshot.Params) { p.HeadCommit = "commit-2b" }), nil).
		Times(1)
	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 2, "commit-2b", "squash").
		Return(githubclt.MergeResultMerged, "", nil).
		Times(1)

	require.NoError(t, c.Enqueue(context.Background(), newTestEntry(t, 1)))
	<-headStarted

	first := newTestEntry(t, 2)
	require.NoError(t, c.Enqueue(context.Background(), first))

	second := NewEntry(crID(2), baseBranch, "commit-2b", mustRule(t), "v2", rules.MergeMethodSquash, 3)
	require.NoError(t, c.Enqueue(context.Background(), second))

	queued, err := c.Get(context.Background(), testBranch, crID(2))
	require.NoError(t, err)
	assert.Equal(t, second.ID, queued.ID)
	assert.Equal(t, "v2", queued.RuleSetVersion)
	assert.Equal(t, []int{1, 2}, env.queuedNumbers(t))

	close(releaseHead)

	env.waitForEmptyQueue(t)
}

func TestCoordinatorReplacingProcessedEntryRestartsProcessing(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.clt.EXPECT().CreateCommitStatus(gomock.Any(), repoOwner, repo, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	processingStarted := make(chan struct{})

	gomock.InOrder(
		env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).
			DoAndReturn(func(ctx context.Context, _ snapshot.ChangeRequestID) (*snapshot.Snapshot, error) {
				close(processingStarted)
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).
			Return(newSnapshot(1, func(p *snapshot.Params) { p.HeadCommit = "commit-1b" }), nil),
	)

	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 1, "commit-1b", "squash").
		Return(githubclt.MergeResultMerged, "", nil)

	require.NoError(t, c.Enqueue(context.Background(), newTestEntry(t, 1)))
	<-processingStarted

	replacement := NewEntry(crID(1), baseBranch, "commit-1b", mustRule(t), "v1", rules.MergeMethodSquash, 3)
	require.NoError(t, c.Enqueue(context.Background(), replacement))

	env.waitForEmptyQueue(t)
}

func TestCoordinatorCancelRemovesEntriesOfAllBranches(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	release := newTestEntry(t, 1)
	release.BaseBranch = "release"

	env.enqueue(t, newTestEntry(t, 1))
	env.enqueue(t, release)
	env.enqueue(t, newTestEntry(t, 2))

	removed, err := c.Cancel(context.Background(), crID(1), "pull request closed")
	require.NoError(t, err)
	require.Len(t, removed, 2)

	for _, e := range removed {
		assert.Equal(t, crID(1), e.ChangeRequest)
		assert.Equal(t, StateCancelled, e.State)
	}

	assert.Equal(t, []int{2}, env.queuedNumbers(t))

	branches, err := env.store.Branches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BranchID{testBranch}, branches)

	removed, err = c.Cancel(context.Background(), crID(1), "pull request closed")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestCoordinatorEnqueueRemovesEntryOfPreviousBaseBranch(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.clt.EXPECT().CreateCommitStatus(gomock.Any(), repoOwner, repo, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).Return(
		newSnapshot(1, func(p *snapshot.Params) {
			p.Checks = map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusPending}
		}),
		nil,
	).AnyTimes()

	old := newTestEntry(t, 1)
	old.BaseBranch = "release"
	env.enqueue(t, old)

	require.NoError(t, c.Enqueue(context.Background(), newTestEntry(t, 1)))

	branches, err := env.store.Branches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BranchID{testBranch}, branches)
}

func TestCoordinatorStartProcessesStoredEntries(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.enqueue(t, newTestEntry(t, 1))

	env.clt.EXPECT().FetchSnapshot(gomock.Any(), crID(1)).Return(newSnapshot(1), nil)
	env.clt.EXPECT().MergePullRequest(gomock.Any(), repoOwner, repo, 1, headCommit(1), "squash").
		Return(githubclt.MergeResultMerged, "", nil)
	env.expectStatus(headCommit(1), "success")

	require.NoError(t, c.Start(context.Background()))

	env.waitForEmptyQueue(t)
}

func TestCoordinatorRejectsEnqueueAfterStop(t *testing.T) {
	env := newTestEnv(t)
	c := NewCoordinator(env.store, env.clt, env.retryer, WithPeriodicTriggerInterval(0), WithStatusContext(""))
	c.Stop()

	assert.Error(t, c.Enqueue(context.Background(), newTestEntry(t, 1)))
	assert.Empty(t, env.queuedNumbers(t))
}

func TestHTTPHandlerListJSON(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	env.enqueue(t, newTestEntry(t, 1))
	env.enqueue(t, newTestEntry(t, 2))

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	c.HTTPHandlerList(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var queues []*jsonQueue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queues))
	require.Len(t, queues, 1)
	assert.Equal(t, baseBranch, queues[0].BaseBranch)
	assert.Nil(t, queues[0].LastRun)
	require.Len(t, queues[0].Entries, 2)
	assert.Equal(t, 1, queues[0].Entries[0].PullRequest)
	assert.Equal(t, "merge-approved", queues[0].Entries[0].Rule)
	assert.Equal(t, string(StateQueued), queues[0].Entries[0].State)
	assert.Equal(t, 2, queues[0].Entries[1].PullRequest)
}

func TestHTTPHandlerListText(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t)

	rec := httptest.NewRecorder()
	c.HTTPHandlerList(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))
	assert.Contains(t, rec.Body.String(), "no pull requests queued")

	env.enqueue(t, newTestEntry(t, 7))

	rec = httptest.NewRecorder()
	c.HTTPHandlerList(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), testBranch.String())
	assert.Contains(t, rec.Body.String(), "PR:    7")
}
