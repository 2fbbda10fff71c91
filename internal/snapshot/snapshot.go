// Package snapshot provides an immutable point-in-time view of a pull
// request.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/set"
)

// ErrNotFound is returned by snapshot providers when the change request does
// not exist.
var ErrNotFound = errors.New("change request not found")

// ChangeRequestID identifies a pull request uniquely.
type ChangeRequestID struct {
	RepositoryOwner string
	Repository      string
	Number          int
}

func (id ChangeRequestID) String() string {
	return fmt.Sprintf("%s/%s#%d", id.RepositoryOwner, id.Repository, id.Number)
}

func (id ChangeRequestID) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(id.RepositoryOwner),
		logfields.Repository(id.Repository),
		logfields.PullRequest(id.Number),
	}
}

type CheckStatus string

const (
	CheckStatusPending CheckStatus = "pending"
	CheckStatusSuccess CheckStatus = "success"
	CheckStatusFailure CheckStatus = "failure"
	CheckStatusNeutral CheckStatus = "neutral"
)

// ParseCheckStatus converts str to a CheckStatus.
func ParseCheckStatus(str string) (CheckStatus, error) {
	switch s := CheckStatus(str); s {
	case CheckStatusPending, CheckStatusSuccess, CheckStatusFailure, CheckStatusNeutral:
		return s, nil
	default:
		return "", fmt.Errorf("unsupported check status: %q", str)
	}
}

type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// Params contains the values for creating a Snapshot.
type Params struct {
	ID         ChangeRequestID
	BaseBranch string
	HeadBranch string
	HeadCommit string
	Labels     []string
	Checks     map[string]CheckStatus
	Approvers  []string
	// ChangesRequestedBy contains the reviewers whose latest review
	// requested changes.
	ChangesRequestedBy []string
	Mergeable          bool
	UpToDate           bool
	State              State
	Author             string
	Title              string
	FetchedAt          time.Time
}

// Snapshot is an immutable view of a pull request, it is never modified, a
// newer state is represented by a new Snapshot.
type Snapshot struct {
	id                 ChangeRequestID
	baseBranch         string
	headBranch         string
	headCommit         string
	labels             set.Set[string]
	checks             map[string]CheckStatus
	approvers          set.Set[string]
	changesRequestedBy set.Set[string]
	mergeable          bool
	upToDate           bool
	state              State
	author             string
	title              string
	fetchedAt          time.Time
}

// New creates a Snapshot, all passed collections are copied.
// If p.State is empty StateOpen is used, if p.FetchedAt is zero the current
// time is used.
func New(p *Params) *Snapshot {
	checks := make(map[string]CheckStatus, len(p.Checks))
	for k, v := range p.Checks {
		checks[k] = v
	}

	state := p.State
	if state == "" {
		state = StateOpen
	}

	fetchedAt := p.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	return &Snapshot{
		id:                 p.ID,
		baseBranch:         p.BaseBranch,
		headBranch:         p.HeadBranch,
		headCommit:         p.HeadCommit,
		labels:             set.From(p.Labels),
		checks:             checks,
		approvers:          set.From(p.Approvers),
		changesRequestedBy: set.From(p.ChangesRequestedBy),
		mergeable:          p.Mergeable,
		upToDate:           p.UpToDate,
		state:              state,
		author:             p.Author,
		title:              p.Title,
		fetchedAt:          fetchedAt,
	}
}

func (s *Snapshot) ID() ChangeRequestID  { return s.id }
func (s *Snapshot) BaseBranch() string   { return s.baseBranch }
func (s *Snapshot) HeadBranch() string   { return s.headBranch }
func (s *Snapshot) HeadCommit() string   { return s.headCommit }
func (s *Snapshot) Mergeable() bool      { return s.mergeable }
func (s *Snapshot) UpToDate() bool       { return s.upToDate }
func (s *Snapshot) State() State         { return s.state }
func (s *Snapshot) Author() string       { return s.author }
func (s *Snapshot) Title() string        { return s.title }
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }
func (s *Snapshot) IsOpen() bool         { return s.state == StateOpen }

// Number returns the pull request number, it is used in templates.
func (s *Snapshot) Number() int { return s.id.Number }

func (s *Snapshot) HasLabel(label string) bool {
	return s.labels.Contains(label)
}

// Labels returns the sorted labels.
func (s *Snapshot) Labels() []string {
	return set.Sorted(s.labels)
}

// CheckStatus returns the status of the check with the given name.
// If the check has not reported, ok is false.
func (s *Snapshot) CheckStatus(name string) (status CheckStatus, ok bool) {
	status, ok = s.checks[name]
	return status, ok
}

// Checks returns a copy of the check statuses.
func (s *Snapshot) Checks() map[string]CheckStatus {
	result := make(map[string]CheckStatus, len(s.checks))
	for k, v := range s.checks {
		result[k] = v
	}

	return result
}

func (s *Snapshot) ApprovalCount() int {
	return len(s.approvers)
}

// Approvers returns the sorted logins of approving reviewers.
func (s *Snapshot) Approvers() []string {
	return set.Sorted(s.approvers)
}

// ChangesRequestedBy returns the sorted logins of reviewers that requested
// changes.
func (s *Snapshot) ChangesRequestedBy() []string {
	return set.Sorted(s.changesRequestedBy)
}

func (s *Snapshot) LogFields() []zap.Field {
	return append(
		s.id.LogFields(),
		logfields.BaseBranch(s.baseBranch),
		logfields.Commit(s.headCommit),
	)
}
