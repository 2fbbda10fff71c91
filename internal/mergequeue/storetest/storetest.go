// Package storetest provides tests that every mergequeue.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/automerger/internal/mergequeue"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

// NewStoreFn must return an empty store.
type NewStoreFn func(t *testing.T) mergequeue.Store

var testRule = func() *rules.Rule {
	r, err := rules.NewRule(&rules.RuleDef{
		Name: "merge-approved",
		Conditions: []map[string]any{
			{"condition": "review-count-at-least", "count": 1},
		},
		Actions: []map[string]any{
			{"action": "merge", "method": "squash"},
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}()

// CR returns a change request ID in the owner/repo test repository.
func CR(nr int) snapshot.ChangeRequestID {
	return snapshot.ChangeRequestID{RepositoryOwner: "owner", Repository: "repo", Number: nr}
}

// NewEntry returns a queue entry for pull request nr targeting branch.
func NewEntry(nr int, branch string) *mergequeue.Entry {
	return mergequeue.NewEntry(CR(nr), branch, fmt.Sprintf("commit-%d", nr), testRule, "v1", rules.MergeMethodSquash, 3)
}

func branchID(branch string) mergequeue.BranchID {
	return mergequeue.BranchID{RepositoryOwner: "owner", Repository: "repo", Branch: branch}
}

func entryNumbers(entries []*mergequeue.Entry) []int {
	result := make([]int, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.ChangeRequest.Number)
	}
	return result
}

// Run runs all store tests.
func Run(t *testing.T, newStore NewStoreFn) {
	t.Run("EnqueueIsFIFO", func(t *testing.T) { testEnqueueIsFIFO(t, newStore(t)) })
	t.Run("EnqueueReplaces", func(t *testing.T) { testEnqueueReplaces(t, newStore(t)) })
	t.Run("BranchesAreIndependent", func(t *testing.T) { testBranchesAreIndependent(t, newStore(t)) })
	t.Run("ConditionalOperations", func(t *testing.T) { testConditionalOperations(t, newStore(t)) })
	t.Run("RequeueMovesToTail", func(t *testing.T) { testRequeueMovesToTail(t, newStore(t)) })
	t.Run("ConcurrentEnqueue", func(t *testing.T) { testConcurrentEnqueue(t, newStore(t)) })
	t.Run("RuleIsStored", func(t *testing.T) { testRuleIsStored(t, newStore(t)) })
}

func testEnqueueIsFIFO(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	head, err := s.Head(ctx, branchID("main"))
	require.NoError(t, err)
	assert.Nil(t, head)

	for _, nr := range []int{3, 1, 2} {
		replaced, err := s.Enqueue(ctx, NewEntry(nr, "main"))
		require.NoError(t, err)
		assert.Nil(t, replaced)
	}

	entries, err := s.List(ctx, branchID("main"))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, entryNumbers(entries))

	head, err = s.Head(ctx, branchID("main"))
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, 3, head.ChangeRequest.Number)
	assert.Equal(t, mergequeue.StateQueued, head.State)
}

func testEnqueueReplaces(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	first := NewEntry(1, "main")
	first.Attempts = 2
	_, err := s.Enqueue(ctx, first)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, NewEntry(2, "main"))
	require.NoError(t, err)

	second := NewEntry(1, "main")
	second.HeadCommit = "newcommit"

	replaced, err := s.Enqueue(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, first.ID, replaced.ID)

	entries, err := s.List(ctx, branchID("main"))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, entryNumbers(entries))

	e := entries[0]
	assert.Equal(t, second.ID, e.ID)
	assert.Equal(t, "newcommit", e.HeadCommit)
	assert.Equal(t, 2, e.Attempts)
	assert.WithinDuration(t, first.EnqueuedAt, e.EnqueuedAt, time.Millisecond)
}

func testBranchesAreIndependent(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	_, err := s.Enqueue(ctx, NewEntry(1, "main"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, NewEntry(2, "release"))
	require.NoError(t, err)

	branches, err := s.Branches(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []mergequeue.BranchID{branchID("main"), branchID("release")}, branches)

	_, err = s.Remove(ctx, branchID("main"), CR(1), mergequeue.AnyID)
	require.NoError(t, err)

	branches, err = s.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mergequeue.BranchID{branchID("release")}, branches)

	_, err = s.Get(ctx, branchID("main"), CR(1))
	assert.ErrorIs(t, err, mergequeue.ErrNotFound)
}

func testConditionalOperations(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	old := NewEntry(1, "main")
	_, err := s.Enqueue(ctx, old)
	require.NoError(t, err)

	newer := NewEntry(1, "main")
	_, err = s.Enqueue(ctx, newer)
	require.NoError(t, err)

	err = s.SetState(ctx, branchID("main"), CR(1), old.ID, mergequeue.StateMerging, "")
	assert.ErrorIs(t, err, mergequeue.ErrSuperseded)

	err = s.Requeue(ctx, branchID("main"), CR(1), old.ID, 1, "")
	assert.ErrorIs(t, err, mergequeue.ErrSuperseded)

	_, err = s.Remove(ctx, branchID("main"), CR(1), old.ID)
	assert.ErrorIs(t, err, mergequeue.ErrSuperseded)

	err = s.SetState(ctx, branchID("main"), CR(1), newer.ID, mergequeue.StateValidating, "")
	require.NoError(t, err)

	e, err := s.Get(ctx, branchID("main"), CR(1))
	require.NoError(t, err)
	assert.Equal(t, mergequeue.StateValidating, e.State)

	removed, err := s.Remove(ctx, branchID("main"), CR(1), newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, removed.ID)

	_, err = s.Remove(ctx, branchID("main"), CR(1), mergequeue.AnyID)
	assert.ErrorIs(t, err, mergequeue.ErrNotFound)
}

func testRequeueMovesToTail(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	first := NewEntry(1, "main")
	for _, e := range []*mergequeue.Entry{first, NewEntry(2, "main"), NewEntry(3, "main")} {
		_, err := s.Enqueue(ctx, e)
		require.NoError(t, err)
	}

	require.NoError(t, s.SetState(ctx, branchID("main"), CR(1), first.ID, mergequeue.StateMerging, ""))
	require.NoError(t, s.Requeue(ctx, branchID("main"), CR(1), first.ID, 1, "out of date"))

	entries, err := s.List(ctx, branchID("main"))
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 1}, entryNumbers(entries))

	last := entries[2]
	assert.Equal(t, 1, last.Attempts)
	assert.Equal(t, "out of date", last.LastError)
	assert.Equal(t, mergequeue.StateQueued, last.State)
}

func testConcurrentEnqueue(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Enqueue(ctx, NewEntry(1, "main"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.List(ctx, branchID("main"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testRuleIsStored(t *testing.T, s mergequeue.Store) {
	ctx := context.Background()

	e := NewEntry(1, "main")
	_, err := s.Enqueue(ctx, e)
	require.NoError(t, err)

	stored, err := s.Get(ctx, branchID("main"), CR(1))
	require.NoError(t, err)
	require.NotNil(t, stored.Rule)
	assert.Equal(t, testRule.Name(), stored.Rule.Name())
	assert.Len(t, stored.Rule.Conditions(), 1)
	assert.Equal(t, rules.MergeMethodSquash, stored.Method)
	assert.Equal(t, 3, stored.MaxAttempts)
	assert.Equal(t, "v1", stored.RuleSetVersion)
	assert.Equal(t, "commit-1", stored.HeadCommit)
}
