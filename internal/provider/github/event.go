package github

import (
	"strings"

	"github.com/google/go-github/v60/github"

	"github.com/simplesurance/automerger/internal/provider"
)

type pushEventRepoGetter interface {
	GetRepo() *github.PushEventRepository
}

type repoGetter interface {
	GetRepo() *github.Repository
}

type refGetter interface {
	GetRef() string
}

type actionGetter interface {
	GetAction() string
}

type pullRequestGetter interface {
	GetPullRequest() *github.PullRequest
}

// extractEventInfo sets the fields of ev that are available in the parsed
// webhook event.
func extractEventInfo(ghEvent any, ev *provider.Event) {
	if v, ok := ghEvent.(pushEventRepoGetter); ok {
		if repo := v.GetRepo(); repo != nil {
			ev.Repository = repo.GetName()
			ev.RepositoryOwner = repo.GetOwner().GetLogin()
			if ev.RepositoryOwner == "" {
				ev.RepositoryOwner = repo.GetOwner().GetName()
			}
		}
	} else if v, ok := ghEvent.(repoGetter); ok {
		if repo := v.GetRepo(); repo != nil {
			ev.Repository = repo.GetName()
			ev.RepositoryOwner = repo.GetOwner().GetLogin()
		}
	}

	if v, ok := ghEvent.(actionGetter); ok {
		ev.Action = v.GetAction()
	}

	if v, ok := ghEvent.(refGetter); ok {
		ref := v.GetRef()
		if strings.HasPrefix(ref, "refs/heads/") {
			ev.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}

	if v, ok := ghEvent.(pullRequestGetter); ok {
		setPullRequestInfo(v.GetPullRequest(), ev)
	}

	switch v := ghEvent.(type) {
	case *github.PushEvent:
		ev.CommitID = v.GetAfter()
		// the branch of the push is the base branch of the queues
		// that have to be processed
		ev.BaseBranch = ev.Branch

	case *github.StatusEvent:
		ev.CommitID = v.GetSHA()
		ev.CheckName = v.GetContext()

	case *github.CheckRunEvent:
		ev.CommitID = v.GetCheckRun().GetHeadSHA()
		ev.CheckName = v.GetCheckRun().GetName()
		if prs := v.GetCheckRun().PullRequests; len(prs) == 1 {
			ev.PullRequestNr = prs[0].GetNumber()
		}

	case *github.CheckSuiteEvent:
		ev.CommitID = v.GetCheckSuite().GetHeadSHA()
		if prs := v.GetCheckSuite().PullRequests; len(prs) == 1 {
			ev.PullRequestNr = prs[0].GetNumber()
		}
	}
}

func setPullRequestInfo(pr *github.PullRequest, ev *provider.Event) {
	if pr == nil {
		return
	}

	ev.PullRequestNr = pr.GetNumber()
	ev.PullRequestMerged = pr.GetMerged()
	ev.BaseBranch = pr.GetBase().GetRef()

	if head := pr.GetHead(); head != nil {
		ev.CommitID = head.GetSHA()
		// ref in PullRequestEvent contains **only**
		// the branch name without 'refs/heads/ prefix
		ev.Branch = head.GetRef()
	}
}
