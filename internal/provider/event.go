// Package provider contains the event type that event providers forward to
// the dispatcher.
package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

// Event is a preprocessed webhook event.
type Event struct {
	// JSON is the raw event payload.
	JSON     []byte
	Provider string

	// Webhook fields, if the value is not available they are empty
	// strings.
	DeliveryID      string
	EventType       string
	Action          string
	RepositoryOwner string
	Repository      string
	BaseBranch      string
	// Branch is the head branch of a pull request or the branch of a
	// push event.
	Branch   string
	CommitID string
	// PullRequestNr is 0 if it's not available.
	PullRequestNr int
	// PullRequestMerged is true for closed events of merged pull requests.
	PullRequestMerged bool
	// CheckName is the context of a status event or the name of a check
	// run.
	CheckName string
}

func (e *Event) String() string {
	return fmt.Sprintf("%s/%s (deliveryID: %s)", e.Provider, e.EventType, e.DeliveryID)
}

func (e *Event) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 10) // cap == max. number of fields we append

	fields = append(fields, logfields.EventProvider(e.Provider))

	if e.DeliveryID != "" {
		fields = append(fields, logfields.DeliveryID(e.DeliveryID))
	}

	if e.EventType != "" {
		fields = append(fields, zap.String("github.webhook_type", e.EventType))
	}

	if e.Action != "" {
		fields = append(fields, zap.String("github.webhook_action", e.Action))
	}

	if e.RepositoryOwner != "" {
		fields = append(fields, logfields.RepositoryOwner(e.RepositoryOwner))
	}

	if e.Repository != "" {
		fields = append(fields, logfields.Repository(e.Repository))
	}

	if e.BaseBranch != "" {
		fields = append(fields, logfields.BaseBranch(e.BaseBranch))
	}

	if e.Branch != "" {
		fields = append(fields, logfields.Branch(e.Branch))
	}

	if e.CommitID != "" {
		fields = append(fields, logfields.Commit(e.CommitID))
	}

	if e.PullRequestNr != 0 {
		fields = append(fields, logfields.PullRequest(e.PullRequestNr))
	}

	return fields
}
