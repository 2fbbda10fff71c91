package githubclt

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/snapshot"
)

// DryClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to the wrapped Client.
type DryClient struct {
	clt    *Client
	logger *zap.Logger
}

func NewDryClient(clt *Client, logger *zap.Logger) *DryClient {
	return &DryClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryClient) FetchSnapshot(ctx context.Context, id snapshot.ChangeRequestID) (*snapshot.Snapshot, error) {
	return c.clt.FetchSnapshot(ctx, id)
}

func (c *DryClient) UpdateBranch(_ context.Context, owner, repo string, pullRequestNumber int) (*UpdateBranchResult, error) {
	c.logger.Info("simulated updating of github branch, returning is uptodate",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_update_branch"))...)
	return &UpdateBranchResult{}, nil
}

func (c *DryClient) MergePullRequest(_ context.Context, owner, repo string, pullRequestNumber int, headSHA, method string) (MergeResult, string, error) {
	c.logger.Info("simulated merging of pull request, returning merged",
		append(logFields(owner, repo, pullRequestNumber),
			logfields.Event("github_dry_merge"),
			logfields.Commit(headSHA),
			zap.String("merge_method", method),
		)...)
	return MergeResultMerged, "simulated merge", nil
}

func (c *DryClient) CreateIssueComment(_ context.Context, owner, repo string, pullRequestNumber int, _ string) error {
	c.logger.Info("simulated creating of github issue comment, no comment created on github",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_create_comment"))...)
	return nil
}

func (c *DryClient) HasIssueComment(ctx context.Context, owner, repo string, pullRequestNumber int, body string) (bool, error) {
	return c.clt.HasIssueComment(ctx, owner, repo, pullRequestNumber, body)
}

func (c *DryClient) AddLabel(_ context.Context, owner, repo string, pullRequestNumber int, label string) error {
	c.logger.Info("simulated adding label",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_add_label"), logfields.Label(label))...)
	return nil
}

func (c *DryClient) RemoveLabel(_ context.Context, owner, repo string, pullRequestNumber int, label string) error {
	c.logger.Info("simulated removing label",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_remove_label"), logfields.Label(label))...)
	return nil
}

func (c *DryClient) ClosePullRequest(_ context.Context, owner, repo string, pullRequestNumber int) error {
	c.logger.Info("simulated closing pull request",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_close_pr"))...)
	return nil
}

func (c *DryClient) Backport(_ context.Context, owner, repo string, pullRequestNumber int, targetBranch string) (int, error) {
	c.logger.Info("simulated backporting pull request",
		append(logFields(owner, repo, pullRequestNumber), logfields.Event("github_dry_backport"), logfields.BaseBranch(targetBranch))...)
	return 0, nil
}

func (c *DryClient) CreateCommitStatus(_ context.Context, owner, repo, commit string, status *CommitStatus) error {
	c.logger.Info("simulated creating commit status",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Commit(commit),
		logfields.Event("github_dry_create_commit_status"),
		zap.String("github.status_context", status.Context),
		zap.String("github.status_state", status.State),
	)
	return nil
}

func (c *DryClient) DeleteBranch(_ context.Context, owner, repo, branch string) error {
	c.logger.Info("simulated deleting branch",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Branch(branch),
		logfields.Event("github_dry_delete_branch"),
	)
	return nil
}

func (c *DryClient) ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) PRIterator {
	return c.clt.ListPullRequests(ctx, owner, repo, state, sort, sortDirection)
}

func (c *DryClient) PullRequestsWithCommit(ctx context.Context, owner, repo, sha string) ([]int, error) {
	return c.clt.PullRequestsWithCommit(ctx, owner, repo, sha)
}

func (c *DryClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return c.clt.DefaultBranch(ctx, owner, repo)
}

func (c *DryClient) FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, string, error) {
	return c.clt.FileContent(ctx, owner, repo, path, ref)
}

func (c *DryClient) PullRequestModifiesFile(ctx context.Context, owner, repo string, pullRequestNumber int, path string) (bool, error) {
	return c.clt.PullRequestModifiesFile(ctx, owner, repo, pullRequestNumber, path)
}

func logFields(owner, repo string, pullRequestNumber int) []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
	}
}
