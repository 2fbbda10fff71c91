// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

var ErrPullRequestIsClosed = errors.New("pull request is closed")

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return an amerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
// Errors that will not go away by retrying, like missing permissions, are
// returned as amerr.PermanentError.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// BranchIsBehindBase returns true if branch is based on an old commit of baseBranch.
// If it is based on older commit, false is returned.
func (clt *Client) BranchIsBehindBase(ctx context.Context, owner, repo, baseBranch, branch string) (behind bool, err error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, baseBranch, branch, &github.ListOptions{PerPage: 1})
	if err != nil {
		return false, clt.wrapRetryableErrors(err)
	}

	if cmp.BehindBy == nil {
		return false, amerr.NewRetryableAnytimeError(errors.New("github returned a nil BehindBy field"))
	}

	return *cmp.BehindBy > 0, nil
}

// PRIsUptodate returns true if the pull request is open and contains all
// changes from it's base branch.
// Additionally it returns the SHA of the head commit for which the status was
// checked.
// If the PR is closed ErrPullRequestIsClosed is returned.
func (clt *Client) PRIsUptodate(ctx context.Context, owner, repo string, pullRequestNumber int) (isUptodate bool, headSHA string, err error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, pullRequestNumber)
	if err != nil {
		return false, "", clt.wrapRetryableErrors(err)
	}

	if pr.GetState() == "closed" {
		return false, "", ErrPullRequestIsClosed
	}

	return clt.prIsUptodate(ctx, owner, repo, pr)
}

func (clt *Client) prIsUptodate(ctx context.Context, owner, repo string, pr *github.PullRequest) (isUptodate bool, headSHA string, err error) {
	prHead := pr.GetHead()
	if prHead == nil {
		return false, "", errors.New("got pull request object with empty head")
	}

	prHeadSHA := prHead.GetSHA()
	if prHeadSHA == "" {
		return false, "", errors.New("got pull request object with empty head sha")
	}

	if pr.GetMergeableState() == "behind" {
		return false, prHeadSHA, nil
	}

	prBranch := prHead.GetRef()
	if prBranch == "" {
		return false, "", errors.New("got pull request object with empty ref field")
	}

	baseBranch := pr.GetBase().GetRef()
	if baseBranch == "" {
		return false, "", errors.New("got pull request object with empty base ref field")
	}

	// the head branch can be in a fork, compare against the head commit
	// instead of the branch name
	isBehind, err := clt.BranchIsBehindBase(ctx, owner, repo, baseBranch, prHeadSHA)
	if err != nil {
		return false, "", fmt.Errorf("evaluating if branch is behind base failed: %w", err)
	}

	return !isBehind, prHeadSHA, nil
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// HasIssueComment returns true if the issue or pull request has a comment
// with exactly the given body.
func (clt *Client) HasIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, body string) (bool, error) {
	opts := github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		comments, resp, err := clt.restClt.Issues.ListComments(ctx, owner, repo, issueOrPRNr, &opts)
		if err != nil {
			return false, clt.wrapRetryableErrors(err)
		}

		for _, c := range comments {
			if c.GetBody() == body {
				return true, nil
			}
		}

		if resp.NextPage == 0 {
			return false, nil
		}

		opts.Page = resp.NextPage
	}
}

// UpdateBranchResult is the result of an UpdateBranch operation.
type UpdateBranchResult struct {
	// Changed is true if the branch was updated or an update was
	// scheduled.
	Changed bool
	// Scheduled is true if GitHub accepted the update but did not apply
	// it yet.
	Scheduled bool
	// HeadCommitID is the head commit of the pull request branch before
	// the update.
	HeadCommitID string
}

// UpdateBranch schedules merging the base-branch into a pull request branch.
// If the PR contains all changes of it's base branch, Changed is false.
// If it's not uptodate and updating the PR was scheduled at github, Changed
// and Scheduled are true.
// If the PR was updated while the method was executed, a
// amerr.RetryableError is returned and the operation can be retried.
// If the branch can not be updated automatically because of a merge conflict,
// an amerr.PermanentError is returned.
func (clt *Client) UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) (*UpdateBranchResult, error) {
	// If UpdateBranch is called and the branch is already
	// uptodate, github creates an empty merge commit and changes
	// the branch. Therefore we have to check first if an update is
	// needed.
	isUptodate, prHEADSHA, err := clt.PRIsUptodate(ctx, owner, repo, pullRequestNumber)
	if err != nil {
		return nil, fmt.Errorf("evaluating if PR is uptodate with base branch failed: %w", err)
	}

	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
		logfields.Commit(prHEADSHA),
	)

	if isUptodate {
		logger.Debug("branch is uptodate with base branch, skipping running update branch operation",
			logfields.Event("github_branch_uptodate_with_base"))
		return &UpdateBranchResult{HeadCommitID: prHEADSHA}, nil
	}

	_, _, err = clt.restClt.PullRequests.UpdateBranch(ctx, owner, repo, pullRequestNumber, &github.PullRequestBranchUpdateOptions{ExpectedHeadSHA: &prHEADSHA})
	if err != nil {
		if _, ok := err.(*github.AcceptedError); ok {
			logger.Debug("updating branch with base branch scheduled",
				logfields.Event("github_branch_update_with_base_scheduled"))
			return &UpdateBranchResult{Changed: true, Scheduled: true, HeadCommitID: prHEADSHA}, nil
		}

		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusUnprocessableEntity {
			if strings.Contains(respErr.Message, "merge conflict") {
				return nil, amerr.NewPermanentError(fmt.Errorf("merge conflict: %w", respErr))
			}

			if strings.Contains(respErr.Message, "expected head sha didn’t match current head ref") {
				logger.Debug("branch changed while trying to sync with base branch",
					logfields.Event("github_branch_update_failed_ref_outdated"),
				)

				return nil, amerr.NewRetryableAnytimeError(err)
			}
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	logger.Debug("branch was updated with base branch",
		logfields.Event("github_branch_update_with_base_triggered"))

	return &UpdateBranchResult{Changed: true, HeadCommitID: prHEADSHA}, nil
}

// MergeResult is the result of a merge request.
type MergeResult uint8

const (
	MergeResultUndefined MergeResult = iota
	// MergeResultMerged means the pull request was merged.
	MergeResultMerged
	// MergeResultConflict means the changes can not be merged
	// currently, e.g. because of a merge conflict or because GitHub did
	// not compute the mergeability yet.
	MergeResultConflict
	// MergeResultOutOfDate means the head or the base branch changed.
	MergeResultOutOfDate
	// MergeResultForbidden means the merge is not allowed, e.g. because
	// of missing permissions or unfulfilled branch protection rules.
	MergeResultForbidden
)

var mergeResultString = [...]string{
	MergeResultUndefined: "undefined",
	MergeResultMerged:    "merged",
	MergeResultConflict:  "conflict",
	MergeResultOutOfDate: "out_of_date",
	MergeResultForbidden: "forbidden",
}

func (r MergeResult) String() string {
	if int(r) > len(mergeResultString)-1 {
		return fmt.Sprintf("unsupported MergeResult value: %d", r)
	}

	return mergeResultString[r]
}

// MergePullRequest merges the pull request if its head commit is headSHA.
// method must be one of "merge", "squash", "rebase".
// The returned error is only set when the result could not be determined,
// in this case MergeResultUndefined is returned. The error message of GitHub
// is returned as reason.
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, headSHA, method string) (result MergeResult, reason string, err error) {
	res, _, err := clt.restClt.PullRequests.Merge(ctx, owner, repo, pullRequestNumber, "", &github.PullRequestOptions{
		SHA:         headSHA,
		MergeMethod: method,
	})
	if err == nil {
		if !res.GetMerged() {
			return MergeResultConflict, res.GetMessage(), nil
		}

		return MergeResultMerged, res.GetMessage(), nil
	}

	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return MergeResultUndefined, "", clt.wrapRetryableErrors(err)
	}

	switch respErr.Response.StatusCode {
	case http.StatusConflict:
		// "Head branch was modified. Review and try the merge again."
		return MergeResultOutOfDate, respErr.Message, nil

	case http.StatusMethodNotAllowed:
		msg := strings.ToLower(respErr.Message)
		if strings.Contains(msg, "modified") || strings.Contains(msg, "out of date") || strings.Contains(msg, "behind") {
			return MergeResultOutOfDate, respErr.Message, nil
		}

		return MergeResultConflict, respErr.Message, nil

	case http.StatusForbidden, http.StatusUnauthorized, http.StatusNotFound:
		return MergeResultForbidden, respErr.Message, nil

	default:
		return MergeResultUndefined, "", clt.wrapRetryableErrors(err)
	}
}

// ClosePullRequest closes a pull request.
// Closing an already closed pull request succeeds.
func (clt *Client) ClosePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int) error {
	state := "closed"
	_, _, err := clt.restClt.PullRequests.Edit(ctx, owner, repo, pullRequestNumber, &github.PullRequest{State: &state})
	return clt.wrapRetryableErrors(err)
}

// CommitStatus is a GitHub commit status.
type CommitStatus struct {
	// State is one of: error, failure, pending, success
	State       string
	Context     string
	Description string
	TargetURL   string
}

// CreateCommitStatus creates a status for a commit.
func (clt *Client) CreateCommitStatus(ctx context.Context, owner, repo, commit string, status *CommitStatus) error {
	st := github.RepoStatus{
		State:       &status.State,
		Context:     &status.Context,
		Description: &status.Description,
	}
	if status.TargetURL != "" {
		st.TargetURL = &status.TargetURL
	}

	_, _, err := clt.restClt.Repositories.CreateStatus(ctx, owner, repo, commit, &st)
	return clt.wrapRetryableErrors(err)
}

// AddLabel adds a label to Pull-Request or Issue.
func (clt *Client) AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	if label == "" {
		// by default github removes all labels when none is provided,
		// we do not need this functionality, as safe guard fail if
		// because of a bug an empty label value is passed:
		return errors.New("provided label is empty")
	}
	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, []string{label})
	return clt.wrapRetryableErrors(err)
}

// RemoveLabel removes a label from a Pull-Request or issue.
// If the issue or PR does not have the label, the operation succeeds.
func (clt *Client) RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	_, err := clt.restClt.Issues.RemoveLabelForIssue(
		ctx,
		owner,
		repo,
		pullRequestOrIssueNumber,
		label,
	)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusNotFound {
			clt.logger.Debug("removing label returned a not found response, interpreting it as success",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				logfields.PullRequest(pullRequestOrIssueNumber),
				logfields.Label(label),
				logfields.Event("github_remove_label_returned_not_found"),
				zap.Error(err),
			)

			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// DeleteBranch deletes a branch.
// If the branch does not exist, the operation succeeds.
func (clt *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	_, err := clt.restClt.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusUnprocessableEntity {
			// "Reference does not exist"
			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// DefaultBranch returns the name of the default branch of the repository.
func (clt *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := clt.restClt.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", clt.wrapRetryableErrors(err)
	}

	return r.GetDefaultBranch(), nil
}

// FileContent returns the content and the blob SHA of a file at the given
// git reference.
// If the file does not exist, an error wrapping amerr.ErrNotFound is returned.
func (clt *Client) FileContent(ctx context.Context, owner, repo, path, ref string) (content []byte, blobSHA string, err error) {
	file, _, _, err := clt.restClt.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusNotFound {
			return nil, "", fmt.Errorf("%s@%s: %w", path, ref, amerr.ErrNotFound)
		}

		return nil, "", clt.wrapRetryableErrors(err)
	}

	if file == nil {
		return nil, "", fmt.Errorf("%s@%s is a directory", path, ref)
	}

	str, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("decoding content of %s@%s failed: %w", path, ref, err)
	}

	return []byte(str), file.GetSHA(), nil
}

// PullRequestModifiesFile returns true if the pull request adds, changes or
// removes the file with the given path.
func (clt *Client) PullRequestModifiesFile(ctx context.Context, owner, repo string, pullRequestNumber int, path string) (bool, error) {
	opts := github.ListOptions{PerPage: 100}

	for {
		files, resp, err := clt.restClt.PullRequests.ListFiles(ctx, owner, repo, pullRequestNumber, &opts)
		if err != nil {
			return false, clt.wrapRetryableErrors(err)
		}

		for _, f := range files {
			if f.GetFilename() == path || f.GetPreviousFilename() == path {
				return true, nil
			}
		}

		if resp.NextPage == 0 {
			return false, nil
		}

		opts.Page = resp.NextPage
	}
}

// PullRequestsWithCommit returns the numbers of open pull requests whose
// head commit is sha.
func (clt *Client) PullRequestsWithCommit(ctx context.Context, owner, repo, sha string) ([]int, error) {
	prs, _, err := clt.restClt.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	var result []int
	for _, pr := range prs {
		if pr.GetState() != "open" || pr.GetHead().GetSHA() != sha {
			continue
		}

		result = append(result, pr.GetNumber())
	}

	return result, nil
}

type PRIterator interface {
	Next() (*github.PullRequest, error)
}

type PRIter struct {
	clt *Client

	ctx   context.Context
	owner string
	repo  string

	filterState   string
	sortBy        string
	sortDirection string

	unseen []*github.PullRequest

	nextPage int
	finished bool
}

// Next returns the next pullRequest.
// When the last result was returned a nil PullRequest is returned.
func (it *PRIter) Next() (*github.PullRequest, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return result, nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State:     it.filterState,
		Sort:      it.sortBy,
		Direction: it.sortDirection,
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: 100,
		},
	})
	if err != nil {
		return nil, it.clt.wrapRetryableErrors(err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = prs

	return it.Next()
}

// ListPullRequests returns an iterator for receiving all pull requests.
// The parameters state, sort, sortDirection expect the same values then
// their pendants in the struct github.PullRequestListOptions.
func (clt *Client) ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:           clt,
		ctx:           ctx,
		owner:         owner,
		repo:          repo,
		sortBy:        sort,
		sortDirection: sortDirection,
		filterState:   state,
		nextPage:      1,
	}
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return amerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		var after time.Time
		if d := v.GetRetryAfter(); d > 0 {
			after = time.Now().Add(d)
		}

		return amerr.NewRetryableError(err, after)

	case *github.ErrorResponse:
		if v.Response == nil {
			return err
		}

		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return amerr.NewRetryableAnytimeError(err)
		}

		if v.Response.StatusCode == http.StatusForbidden || v.Response.StatusCode == http.StatusUnauthorized {
			return amerr.NewPermanentError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return amerr.NewRetryableAnytimeError(err)
	}

	return err
}
