package action

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/snapshot"
)

type labelRunner struct {
	clt    Client
	id     snapshot.ChangeRequestID
	label  string
	remove bool
}

func (r *labelRunner) Run(ctx context.Context) error {
	if r.remove {
		return r.clt.RemoveLabel(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number, r.label)
	}

	return r.clt.AddLabel(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number, r.label)
}

func (r *labelRunner) LogFields() []zap.Field {
	op := "github.add_label"
	if r.remove {
		op = "github.remove_label"
	}

	return append(r.id.LogFields(), logfields.Action(op), logfields.Label(r.label))
}

func (r *labelRunner) String() string {
	if r.remove {
		return fmt.Sprintf("github remove label: %s, label: %s", r.id, r.label)
	}

	return fmt.Sprintf("github add label: %s, label: %s", r.id, r.label)
}

type commentRunner struct {
	clt  Client
	id   snapshot.ChangeRequestID
	body string
}

// Run creates the comment if the pull request does not have a comment with
// the same body yet.
func (r *commentRunner) Run(ctx context.Context) error {
	exists, err := r.clt.HasIssueComment(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number, r.body)
	if err != nil {
		return fmt.Errorf("checking for existing comment failed: %w", err)
	}

	if exists {
		return nil
	}

	return r.clt.CreateIssueComment(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number, r.body)
}

func (r *commentRunner) LogFields() []zap.Field {
	return append(r.id.LogFields(), logfields.Action("github.comment"))
}

func (r *commentRunner) String() string {
	return fmt.Sprintf("github comment: %s", r.id)
}

type closeRunner struct {
	clt Client
	id  snapshot.ChangeRequestID
}

func (r *closeRunner) Run(ctx context.Context) error {
	return r.clt.ClosePullRequest(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number)
}

func (r *closeRunner) LogFields() []zap.Field {
	return append(r.id.LogFields(), logfields.Action("github.close"))
}

func (r *closeRunner) String() string {
	return fmt.Sprintf("github close pull request: %s", r.id)
}

type backportRunner struct {
	clt          Client
	id           snapshot.ChangeRequestID
	targetBranch string
	logger       *zap.Logger
}

func (r *backportRunner) Run(ctx context.Context) error {
	prNr, err := r.clt.Backport(ctx, r.id.RepositoryOwner, r.id.Repository, r.id.Number, r.targetBranch)
	if err != nil {
		return err
	}

	r.logger.Info(
		"backport pull request exists",
		append(r.LogFields(),
			logfields.Event("backport_pull_request_ready"),
			zap.Int("github.backport_pull_request", prNr),
		)...,
	)

	return nil
}

func (r *backportRunner) LogFields() []zap.Field {
	return append(r.id.LogFields(), logfields.Action("github.backport"), logfields.BaseBranch(r.targetBranch))
}

func (r *backportRunner) String() string {
	return fmt.Sprintf("github backport: %s to %s", r.id, r.targetBranch)
}
