package githubclt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/snapshot"
)

// FetchSnapshot retrieves the current state of a pull request.
//
// Required status checks that did not report a result yet are contained with
// [snapshot.CheckStatusPending]. Neutral and skipped check runs are reported
// as [snapshot.CheckStatusNeutral].
// If the pull request does not exist, an error wrapping [snapshot.ErrNotFound]
// is returned.
func (clt *Client) FetchSnapshot(ctx context.Context, id snapshot.ChangeRequestID) (*snapshot.Snapshot, error) {
	q, err := clt.pullRequestState(ctx, id.RepositoryOwner, id.Repository, id.Number)
	if err != nil {
		if isGraphQLNotFoundErr(err) {
			return nil, fmt.Errorf("%s: %w", id, snapshot.ErrNotFound)
		}

		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	checks, err := toCheckStatuses(q.RequiredStatusCheckContexts, q.CheckRuns, q.StatusContext)
	if err != nil {
		return nil, err
	}

	if q.HeadCommit != q.CheckedCommit {
		return nil, amerr.NewRetryableAnytimeError(fmt.Errorf(
			"head commit changed while retrieving the pull request state, head commit: %q, checked commit: %q",
			q.HeadCommit, q.CheckedCommit,
		))
	}

	state := toSnapshotState(q.State)

	var uptodate bool
	if state == snapshot.StateOpen {
		if q.MergeStateStatus != mergeStateStatusBehind {
			behind, err := clt.BranchIsBehindBase(ctx, id.RepositoryOwner, id.Repository, q.BaseBranch, q.HeadCommit)
			if err != nil {
				return nil, fmt.Errorf("evaluating if branch is behind base failed: %w", err)
			}
			uptodate = !behind
		}
	}

	return snapshot.New(&snapshot.Params{
		ID:                 id,
		BaseBranch:         q.BaseBranch,
		HeadBranch:         q.HeadBranch,
		HeadCommit:         q.HeadCommit,
		Labels:             q.Labels,
		Checks:             checks,
		Approvers:          q.Approvers,
		ChangesRequestedBy: q.ChangesRequestedBy,
		Mergeable:          q.Mergeable == githubv4.MergeableStateMergeable,
		UpToDate:           uptodate,
		State:              state,
		Author:             q.Author,
		Title:              q.Title,
		FetchedAt:          time.Now(),
	}), nil
}

func isGraphQLNotFoundErr(err error) bool {
	return strings.Contains(err.Error(), "Could not resolve to a PullRequest") ||
		strings.Contains(err.Error(), "Could not resolve to a Repository")
}

func toSnapshotState(state githubv4.PullRequestState) snapshot.State {
	switch state {
	case githubv4.PullRequestStateMerged:
		return snapshot.StateMerged
	case githubv4.PullRequestStateClosed:
		return snapshot.StateClosed
	default:
		return snapshot.StateOpen
	}
}

func toCheckStatuses(
	requiredChecks []string,
	checkRuns []*queryCheckStatus,
	commitStatuses []*queryStatusContext,
) (map[string]snapshot.CheckStatus, error) {
	result := make(map[string]snapshot.CheckStatus, len(checkRuns)+len(commitStatuses)+len(requiredChecks))
	for _, context := range requiredChecks {
		if _, exists := result[context]; exists {
			return nil, fmt.Errorf("found 2 required status with the same context values: %q, context values must be unique", context)
		}

		result[context] = snapshot.CheckStatusPending
	}

	for _, run := range checkRuns {
		status, err := checkRunResultToCheckStatus(run.Status, run.Conclusion)
		if err != nil {
			return nil, fmt.Errorf("converting checkRun %q status failed: %w", run.Name, err)
		}

		result[run.Name] = status
	}

	for _, commitStatus := range commitStatuses {
		status, err := contextStatusStateToCheckStatus(commitStatus.State)
		if err != nil {
			return nil, fmt.Errorf("converting %q status context failed: %w",
				commitStatus.Context, err)
		}

		result[commitStatus.Context] = status
	}

	return result, nil
}

func checkRunResultToCheckStatus(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) (snapshot.CheckStatus, error) {
	switch status {
	case githubv4.CheckStatusStateInProgress,
		githubv4.CheckStatusStatePending,
		githubv4.CheckStatusStateQueued,
		githubv4.CheckStatusStateRequested,
		githubv4.CheckStatusStateWaiting:
		return snapshot.CheckStatusPending, nil

	case githubv4.CheckStatusStateCompleted:
		return checkConclusionToCheckStatus(conclusion)

	default:
		return "", fmt.Errorf("unsupported status value: %q", status)
	}
}

func checkConclusionToCheckStatus(conclusion githubv4.CheckConclusionState) (snapshot.CheckStatus, error) {
	switch conclusion {
	case githubv4.CheckConclusionStateCancelled,
		githubv4.CheckConclusionStateFailure,
		githubv4.CheckConclusionStateStale,
		githubv4.CheckConclusionStateStartupFailure,
		githubv4.CheckConclusionStateTimedOut:
		return snapshot.CheckStatusFailure, nil

	case githubv4.CheckConclusionStateActionRequired:
		return snapshot.CheckStatusPending, nil

	case githubv4.CheckConclusionStateNeutral,
		githubv4.CheckConclusionStateSkipped:
		return snapshot.CheckStatusNeutral, nil

	case githubv4.CheckConclusionStateSuccess:
		return snapshot.CheckStatusSuccess, nil

	default:
		return "", fmt.Errorf("unsupported conclusion value: %q", conclusion)
	}
}

func contextStatusStateToCheckStatus(state githubv4.StatusState) (snapshot.CheckStatus, error) {
	switch state {
	case githubv4.StatusStateError,
		githubv4.StatusStateFailure:
		return snapshot.CheckStatusFailure, nil

	case githubv4.StatusStateExpected,
		githubv4.StatusStatePending:
		return snapshot.CheckStatusPending, nil

	case githubv4.StatusStateSuccess:
		return snapshot.CheckStatusSuccess, nil

	default:
		return "", fmt.Errorf("unsupported status state value: %q", state)
	}
}

type queryCheckStatus struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type queryStatusContext struct {
	State   githubv4.StatusState
	Context string
}

type queryReview struct {
	Author struct {
		Login string
	}
	State githubv4.PullRequestReviewState
}

// mergeStateStatus is the GraphQL MergeStateStatus enum of a pull request.
type mergeStateStatus string

const mergeStateStatusBehind mergeStateStatus = "BEHIND"

type queryPRStateResult struct {
	State            githubv4.PullRequestState
	Title            string
	Author           string
	BaseBranch       string
	HeadBranch       string
	HeadCommit       string
	Mergeable        githubv4.MergeableState
	MergeStateStatus mergeStateStatus
	Labels           []string

	Approvers          []string
	ChangesRequestedBy []string

	RequiredStatusCheckContexts []string
	CheckRuns                   []*queryCheckStatus
	StatusContext               []*queryStatusContext
	// CheckedCommit is the commit for that the checks were retrieved.
	CheckedCommit string
}

func (r *queryPRStateResult) addReviews(reviews []queryReview) {
	for _, review := range reviews {
		switch review.State {
		case githubv4.PullRequestReviewStateApproved:
			r.Approvers = append(r.Approvers, review.Author.Login)
		case githubv4.PullRequestReviewStateChangesRequested:
			r.ChangesRequestedBy = append(r.ChangesRequestedBy, review.Author.Login)
		}
	}

	sort.Strings(r.Approvers)
	sort.Strings(r.ChangesRequestedBy)
}

func (clt *Client) pullRequestState(ctx context.Context, owner, repo string, prNumber int) (*queryPRStateResult, error) {
	type graphQLQueryPRState struct {
		Repository struct {
			PullRequest struct {
				State            githubv4.PullRequestState
				Title            string
				BaseRefName      string
				HeadRefName      string
				HeadRefOid       string
				Mergeable        githubv4.MergeableState
				MergeStateStatus mergeStateStatus
				Author           struct {
					Login string
				}

				Labels struct {
					Nodes []struct {
						Name string
					}
				} `graphql:"labels(first: 100)"`

				LatestOpinionatedReviews struct {
					Nodes []queryReview
				} `graphql:"latestOpinionatedReviews(first: 100)"`

				BaseRef struct {
					BranchProtectionRule struct {
						// RequiredStatusCheckContexts
						// contains required commit
						// statuses and checkRuns.
						RequiredStatusCheckContexts []string
					}
				}

				Commits struct {
					Nodes []struct {
						Commit struct {
							Oid               string
							StatusCheckRollup struct {
								Contexts struct {
									PageInfo struct {
										EndCursor   string
										HasNextPage bool
									}
									Edges []struct {
										Node struct {
											CheckRun      queryCheckStatus   `graphql:"... on CheckRun"`
											StatusContext queryStatusContext `graphql:"... on StatusContext"`
										}
									}
								} `graphql:"contexts(first: $contextsFirst, after: $contextsAfter)"`
							}
						}
					}
				} `graphql:"commits(last: $commitsLast)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	var prHEADCommitID string
	var result queryPRStateResult

	vars := map[string]any{
		"owner":         githubv4.String(owner),
		"name":          githubv4.String(repo),
		"number":        githubv4.Int(prNumber),
		"commitsLast":   githubv4.Int(1),
		"contextsFirst": githubv4.Int(100),
		"contextsAfter": (*githubv4.String)(nil),
	}

	for {
		var q graphQLQueryPRState

		err := clt.graphQLClt.Query(ctx, &q, vars)
		if err != nil {
			return nil, err
		}

		pr := &q.Repository.PullRequest

		if len(pr.Commits.Nodes) == 0 {
			return nil, fmt.Errorf("pull request %s/%s#%d has no commits", owner, repo, prNumber)
		}

		commitsNode := pr.Commits.Nodes[0].Commit

		if prHEADCommitID == "" {
			prHEADCommitID = commitsNode.Oid
		} else if prHEADCommitID != commitsNode.Oid {
			// head changed while paginating, start from scratch
			vars["contextsAfter"] = (*githubv4.String)(nil)
			prHEADCommitID = ""
			result = queryPRStateResult{}

			continue
		}

		for _, edge := range commitsNode.StatusCheckRollup.Contexts.Edges {
			node := edge.Node
			if node.CheckRun.Name != "" && node.StatusContext.Context != "" {
				return nil, fmt.Errorf("internal error: node contains checkRun and context, expecting only one")
			}

			if node.CheckRun.Name != "" {
				result.CheckRuns = append(result.CheckRuns, &node.CheckRun)
				continue
			}

			result.StatusContext = append(result.StatusContext, &node.StatusContext)
		}

		pageInfo := commitsNode.StatusCheckRollup.Contexts.PageInfo
		if !pageInfo.HasNextPage {
			result.State = pr.State
			result.Title = pr.Title
			result.Author = pr.Author.Login
			result.BaseBranch = pr.BaseRefName
			result.HeadBranch = pr.HeadRefName
			result.HeadCommit = pr.HeadRefOid
			result.Mergeable = pr.Mergeable
			result.MergeStateStatus = pr.MergeStateStatus
			for _, l := range pr.Labels.Nodes {
				result.Labels = append(result.Labels, l.Name)
			}
			result.addReviews(pr.LatestOpinionatedReviews.Nodes)
			result.RequiredStatusCheckContexts = pr.BaseRef.BranchProtectionRule.RequiredStatusCheckContexts
			result.CheckedCommit = prHEADCommitID

			return &result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, fmt.Errorf("retrieving all contexts failed, HasNextPage is %t, expected non-empty EndCursor", pageInfo.HasNextPage)
		}

		vars["contextsAfter"] = githubv4.String(pageInfo.EndCursor)
	}
}
