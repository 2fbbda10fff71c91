package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
)

// BackportBranchPrefix is the prefix of branches created for backport pull
// requests.
const BackportBranchPrefix = "automerger/bp/"

// BackportBranchName returns the name of the branch that is created to
// backport the pull request to targetBranch.
func BackportBranchName(targetBranch string, pullRequestNumber int) string {
	return fmt.Sprintf("%s%s/pr-%d", BackportBranchPrefix, targetBranch, pullRequestNumber)
}

// Backport applies the changes of a merged pull request onto targetBranch
// and opens a pull request for them.
// The changes are cherry-picked via the git data API, no local clone is
// needed.
// If a backport pull request already exists, its number is returned and no
// new one is created.
// If the changes can not be applied because of a conflict an
// amerr.PermanentError is returned.
func (clt *Client) Backport(ctx context.Context, owner, repo string, pullRequestNumber int, targetBranch string) (int, error) {
	branch := BackportBranchName(targetBranch, pullRequestNumber)

	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
		logfields.BaseBranch(targetBranch),
		logfields.Branch(branch),
	)

	existingPR, err := clt.openPullRequestForBranch(ctx, owner, repo, branch, targetBranch)
	if err != nil {
		return 0, err
	}
	if existingPR != 0 {
		logger.Debug("backport pull request already exists",
			logfields.Event("github_backport_pr_exists"),
			zap.Int("github.backport_pull_request", existingPR),
		)
		return existingPR, nil
	}

	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, pullRequestNumber)
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if !pr.GetMerged() {
		return 0, amerr.NewPermanentError(fmt.Errorf("pull request #%d is not merged", pullRequestNumber))
	}

	cherrySHA := pr.GetMergeCommitSHA()
	if cherrySHA == "" {
		return 0, errors.New("merged pull request has an empty merge commit sha")
	}

	cherry, _, err := clt.restClt.Git.GetCommit(ctx, owner, repo, cherrySHA)
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if len(cherry.Parents) == 0 {
		return 0, fmt.Errorf("merge commit %s has no parents", cherrySHA)
	}

	target, _, err := clt.restClt.Repositories.GetBranch(ctx, owner, repo, targetBranch, 1)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusNotFound {
			return 0, amerr.NewPermanentError(fmt.Errorf("backport target branch %q does not exist", targetBranch))
		}
		return 0, clt.wrapRetryableErrors(err)
	}

	targetHead := target.GetCommit()
	targetTree := targetHead.GetCommit().GetTree()
	if targetHead.GetSHA() == "" || targetTree.GetSHA() == "" {
		return 0, fmt.Errorf("branch %q has an empty head commit or tree", targetBranch)
	}

	// the sibling commit has the tree of the target branch and the parent
	// of the cherry-picked commit, merging the cherry commit into it
	// results in a tree with only the changes of the cherry commit
	// applied to the target tree
	sibling, _, err := clt.restClt.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.String("automerger backport temporary commit"),
		Tree:    &github.Tree{SHA: targetTree.SHA},
		Parents: []*github.Commit{{SHA: cherry.Parents[0].SHA}},
	}, nil)
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if err := clt.forceSetRef(ctx, owner, repo, branch, sibling.GetSHA()); err != nil {
		return 0, err
	}

	merge, _, err := clt.restClt.Repositories.Merge(ctx, owner, repo, &github.RepositoryMergeRequest{
		Base:          github.String(branch),
		Head:          github.String(cherrySHA),
		CommitMessage: github.String("automerger backport temporary merge"),
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusConflict {
			if delErr := clt.DeleteBranch(ctx, owner, repo, branch); delErr != nil {
				logger.Warn("deleting backport branch failed",
					logfields.Event("github_backport_branch_deletion_failed"),
					zap.Error(delErr),
				)
			}

			return 0, amerr.NewPermanentError(fmt.Errorf("changes of #%d do not apply cleanly to %s: %w", pullRequestNumber, targetBranch, err))
		}

		return 0, clt.wrapRetryableErrors(err)
	}

	final, _, err := clt.restClt.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.String(fmt.Sprintf("%s (backport of #%d)\n\n%s", pr.GetTitle(), pullRequestNumber, cherry.GetMessage())),
		Tree:    &github.Tree{SHA: merge.GetCommit().GetTree().SHA},
		Parents: []*github.Commit{{SHA: targetHead.SHA}},
	}, nil)
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if err := clt.forceSetRef(ctx, owner, repo, branch, final.GetSHA()); err != nil {
		return 0, err
	}

	newPR, _, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(fmt.Sprintf("[%s] %s", targetBranch, pr.GetTitle())),
		Head:  github.String(branch),
		Base:  github.String(targetBranch),
		Body:  github.String(fmt.Sprintf("Backport of #%d to %s.", pullRequestNumber, targetBranch)),
	})
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	logger.Info("backport pull request created",
		logfields.Event("github_backport_pr_created"),
		zap.Int("github.backport_pull_request", newPR.GetNumber()),
	)

	return newPR.GetNumber(), nil
}

func (clt *Client) openPullRequestForBranch(ctx context.Context, owner, repo, branch, base string) (int, error) {
	prs, _, err := clt.restClt.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + branch,
		Base:  base,
	})
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if len(prs) == 0 {
		return 0, nil
	}

	return prs[0].GetNumber(), nil
}

func (clt *Client) forceSetRef(ctx context.Context, owner, repo, branch, sha string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	_, _, err := clt.restClt.Git.UpdateRef(ctx, owner, repo, ref, true)
	if err == nil {
		return nil
	}

	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return clt.wrapRetryableErrors(err)
	}

	// "Reference does not exist"
	_, _, err = clt.restClt.Git.CreateRef(ctx, owner, repo, ref)
	return clt.wrapRetryableErrors(err)
}
