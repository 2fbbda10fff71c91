package dispatcher

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/provider"
	"github.com/simplesurance/automerger/internal/snapshot"
)

// EventKind describes why a change request is dispatched.
type EventKind string

const (
	// EventKindRefresh is sent when a change request might have changed.
	EventKindRefresh EventKind = "refresh"
	// EventKindCheck is sent when a check or status of a commit reported.
	// If ChangeRequest.Number is 0, the change requests of the commit are
	// looked up.
	EventKindCheck EventKind = "check"
	// EventKindClosed is sent when a change request was closed or merged.
	EventKindClosed EventKind = "closed"
	// EventKindPush is sent when a branch changed, the queue of the
	// branch is processed.
	EventKindPush EventKind = "push"
)

// Event is a trigger to process a change request.
// It only identifies what has to be processed, the state of the change
// request is always fetched again.
type Event struct {
	Kind          EventKind
	ChangeRequest snapshot.ChangeRequestID
	BaseBranch    string
	// HeadBranch is set for EventKindClosed events.
	HeadBranch string
	// CommitID is the commit the event refers to, it is empty if it is
	// unknown.
	CommitID string
	// Merged is true for EventKindClosed events of merged change
	// requests.
	Merged bool
	// CheckName is the name of the check or status that reported, it is
	// only set for EventKindCheck events.
	CheckName string

	DeliveryID string
}

func (e *Event) String() string {
	return fmt.Sprintf("%s event for %s", e.Kind, e.ChangeRequest)
}

func (e *Event) LogFields() []zap.Field {
	fields := []zap.Field{
		logfields.EventKind(string(e.Kind)),
		logfields.RepositoryOwner(e.ChangeRequest.RepositoryOwner),
		logfields.Repository(e.ChangeRequest.Repository),
	}

	if e.ChangeRequest.Number != 0 {
		fields = append(fields, logfields.PullRequest(e.ChangeRequest.Number))
	}

	if e.BaseBranch != "" {
		fields = append(fields, logfields.BaseBranch(e.BaseBranch))
	}

	if e.CommitID != "" {
		fields = append(fields, logfields.Commit(e.CommitID))
	}

	if e.DeliveryID != "" {
		fields = append(fields, logfields.DeliveryID(e.DeliveryID))
	}

	return fields
}

// FromProviderEvent converts a webhook event to an Event.
// If the webhook event is not relevant, nil is returned.
func FromProviderEvent(ev *provider.Event) *Event {
	if ev.RepositoryOwner == "" || ev.Repository == "" {
		return nil
	}

	result := Event{
		ChangeRequest: snapshot.ChangeRequestID{
			RepositoryOwner: ev.RepositoryOwner,
			Repository:      ev.Repository,
			Number:          ev.PullRequestNr,
		},
		BaseBranch: ev.BaseBranch,
		CommitID:   ev.CommitID,
		DeliveryID: ev.DeliveryID,
	}

	switch ev.EventType {
	case "pull_request":
		if ev.PullRequestNr == 0 {
			return nil
		}

		switch ev.Action {
		case "closed":
			result.Kind = EventKindClosed
			result.Merged = ev.PullRequestMerged
			result.HeadBranch = ev.Branch

		case "opened", "reopened", "synchronize", "edited", "labeled", "unlabeled",
			"ready_for_review", "converted_to_draft", "auto_merge_enabled":
			result.Kind = EventKindRefresh

		default:
			return nil
		}

	case "pull_request_review":
		if ev.PullRequestNr == 0 {
			return nil
		}

		result.Kind = EventKindRefresh

	case "status", "check_run", "check_suite":
		if ev.CommitID == "" {
			return nil
		}

		if ev.Action != "" && ev.Action != "completed" {
			return nil
		}

		result.Kind = EventKindCheck
		result.CheckName = ev.CheckName

	case "push":
		if ev.BaseBranch == "" {
			return nil
		}

		result.Kind = EventKindPush

	default:
		return nil
	}

	return &result
}
