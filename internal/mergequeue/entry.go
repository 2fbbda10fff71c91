package mergequeue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

// DefMaxAttempts is the default number of times an entry is moved to the
// tail of its queue after a failed merge. The next failure fails the entry.
const DefMaxAttempts = 3

// State is the processing state of a queue entry.
type State string

const (
	StateQueued     State = "queued"
	StateValidating State = "validating"
	StateMerging    State = "merging"
	StateMerged     State = "merged"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal returns true if an entry in the state is removed from the
// queue.
func (s State) IsTerminal() bool {
	switch s {
	case StateMerged, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// BranchID identifies the base branch of a queue.
type BranchID struct {
	RepositoryOwner string
	Repository      string
	Branch          string
}

func (b BranchID) String() string {
	return fmt.Sprintf("%s/%s:%s", b.RepositoryOwner, b.Repository, b.Branch)
}

func (b BranchID) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(b.RepositoryOwner),
		logfields.Repository(b.Repository),
		logfields.BaseBranch(b.Branch),
	}
}

// Entry is a request to merge a change request into BaseBranch.
type Entry struct {
	// ID changes whenever the entry is replaced by a newer one for the
	// same change request.
	ID            uuid.UUID
	ChangeRequest snapshot.ChangeRequestID
	BaseBranch    string
	// HeadCommit is the head commit of the change request when it was
	// enqueued.
	HeadCommit     string
	Rule           *rules.Rule
	RuleSetVersion string
	Method         rules.MergeMethod
	// MaxAttempts is the number of requeues after failed merges, when
	// it is exceeded the entry fails.
	MaxAttempts int
	EnqueuedAt  time.Time
	// Attempts is the number of times the entry was requeued.
	Attempts  int
	State     State
	LastError string
}

// NewEntry creates an Entry in StateQueued with a new ID.
// If maxAttempts is <1 DefMaxAttempts is used.
func NewEntry(
	cr snapshot.ChangeRequestID,
	baseBranch, headCommit string,
	rule *rules.Rule,
	ruleSetVersion string,
	method rules.MergeMethod,
	maxAttempts int,
) *Entry {
	if maxAttempts < 1 {
		maxAttempts = DefMaxAttempts
	}

	if method == "" {
		method = rules.MergeMethodMerge
	}

	return &Entry{
		ID:             uuid.New(),
		ChangeRequest:  cr,
		BaseBranch:     baseBranch,
		HeadCommit:     headCommit,
		Rule:           rule,
		RuleSetVersion: ruleSetVersion,
		Method:         method,
		MaxAttempts:    maxAttempts,
		EnqueuedAt:     time.Now(),
		State:          StateQueued,
	}
}

// Branch returns the identifier of the queue the entry belongs to.
func (e *Entry) Branch() BranchID {
	return BranchID{
		RepositoryOwner: e.ChangeRequest.RepositoryOwner,
		Repository:      e.ChangeRequest.Repository,
		Branch:          e.BaseBranch,
	}
}

// Clone returns a shallow copy of the entry. The Rule is shared, it is
// immutable.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.ChangeRequest, e.ID)
}

func (e *Entry) LogFields() []zap.Field {
	fields := append(e.ChangeRequest.LogFields(),
		logfields.BaseBranch(e.BaseBranch),
		logfields.QueueEntryID(e.ID.String()),
		logfields.QueueAttempt(e.Attempts),
		logfields.Commit(e.HeadCommit),
		logfields.RuleSetVersion(e.RuleSetVersion),
	)

	if e.Rule != nil {
		fields = append(fields, logfields.Rule(e.Rule.Name()))
	}

	return fields
}
