package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/simplesurance/automerger/internal/maputils"
	"github.com/simplesurance/automerger/internal/snapshot"
)

type ConditionKind string

const (
	CondLabelPresent       ConditionKind = "label-present"
	CondLabelAbsent        ConditionKind = "label-absent"
	CondCheckStatus        ConditionKind = "check-status"
	CondReviewCountAtLeast ConditionKind = "review-count-at-least"
	CondBranchUpToDate     ConditionKind = "branch-up-to-date"
	CondBaseBranch         ConditionKind = "base-branch"
	CondNoChangesRequested ConditionKind = "no-changes-requested"
)

// Condition is an atomic predicate on a snapshot.
// The zero value is invalid, conditions are created via the constructor
// functions or ConditionFromMap.
type Condition struct {
	kind   ConditionKind
	label  string
	check  string
	status snapshot.CheckStatus
	count  int
	branch string
}

func LabelPresent(label string) Condition {
	return Condition{kind: CondLabelPresent, label: label}
}

func LabelAbsent(label string) Condition {
	return Condition{kind: CondLabelAbsent, label: label}
}

func CheckStatusEquals(check string, status snapshot.CheckStatus) Condition {
	return Condition{kind: CondCheckStatus, check: check, status: status}
}

func ReviewCountAtLeast(n int) Condition {
	return Condition{kind: CondReviewCountAtLeast, count: n}
}

func BranchUpToDate() Condition {
	return Condition{kind: CondBranchUpToDate}
}

func BaseBranchEquals(branch string) Condition {
	return Condition{kind: CondBaseBranch, branch: branch}
}

func NoChangesRequested() Condition {
	return Condition{kind: CondNoChangesRequested}
}

func (c Condition) Kind() ConditionKind {
	return c.kind
}

func (c Condition) String() string {
	switch c.kind {
	case CondLabelPresent, CondLabelAbsent:
		return fmt.Sprintf("%s(%s)", c.kind, c.label)
	case CondCheckStatus:
		return fmt.Sprintf("%s(%s=%s)", c.kind, c.check, c.status)
	case CondReviewCountAtLeast:
		return fmt.Sprintf("%s(%d)", c.kind, c.count)
	case CondBaseBranch:
		return fmt.Sprintf("%s(%s)", c.kind, c.branch)
	default:
		return string(c.kind)
	}
}

func (c Condition) validate() error {
	switch c.kind {
	case CondLabelPresent, CondLabelAbsent:
		if c.label == "" {
			return errors.New("label is empty")
		}

	case CondCheckStatus:
		if c.check == "" {
			return errors.New("check name is empty")
		}
		if _, err := snapshot.ParseCheckStatus(string(c.status)); err != nil {
			return err
		}

	case CondReviewCountAtLeast:
		if c.count < 0 {
			return fmt.Errorf("review count is negative: %d", c.count)
		}

	case CondBaseBranch:
		if c.branch == "" {
			return errors.New("branch is empty")
		}

	case CondBranchUpToDate, CondNoChangesRequested:

	default:
		return fmt.Errorf("unsupported condition: %q", c.kind)
	}

	return nil
}

// asMap returns the definition of the condition in the same format that
// ConditionFromMap accepts.
func (c Condition) asMap() map[string]any {
	m := map[string]any{"condition": string(c.kind)}

	switch c.kind {
	case CondLabelPresent, CondLabelAbsent:
		m["label"] = c.label
	case CondCheckStatus:
		m["check"] = c.check
		m["status"] = string(c.status)
	case CondReviewCountAtLeast:
		m["count"] = c.count
	case CondBaseBranch:
		m["branch"] = c.branch
	}

	return m
}

// ConditionFromMap creates a condition from its configuration
// representation. The "condition" key holds the kind, the remaining keys
// its parameters. Unknown kinds and unknown parameters are an error.
func ConditionFromMap(m map[string]any) (Condition, error) {
	kindStr, err := maputils.MustStrVal(m, "condition")
	if err != nil {
		return Condition{}, err
	}

	var c Condition
	var known []string

	switch kind := ConditionKind(strings.ToLower(kindStr)); kind {
	case CondLabelPresent, CondLabelAbsent:
		known = []string{"label"}
		label, err := maputils.MustStrVal(m, "label")
		if err != nil {
			return Condition{}, err
		}
		c = Condition{kind: kind, label: label}

	case CondCheckStatus:
		known = []string{"check", "status"}
		check, err := maputils.MustStrVal(m, "check")
		if err != nil {
			return Condition{}, err
		}

		status, err := maputils.MustStrVal(m, "status")
		if err != nil {
			return Condition{}, err
		}

		c = CheckStatusEquals(check, snapshot.CheckStatus(strings.ToLower(status)))

	case CondReviewCountAtLeast:
		known = []string{"count"}
		count, exists, err := maputils.IntVal(m, "count")
		if err != nil {
			return Condition{}, err
		}
		if !exists {
			return Condition{}, errors.New("missing integer field \"count\"")
		}
		c = ReviewCountAtLeast(count)

	case CondBaseBranch:
		known = []string{"branch"}
		branch, err := maputils.MustStrVal(m, "branch")
		if err != nil {
			return Condition{}, err
		}
		c = BaseBranchEquals(branch)

	case CondBranchUpToDate, CondNoChangesRequested:
		c = Condition{kind: kind}

	default:
		return Condition{}, fmt.Errorf("unsupported condition: %q", kindStr)
	}

	if unknown := maputils.UnknownKeys(m, append(known, "condition")...); len(unknown) > 0 {
		return Condition{}, fmt.Errorf("condition %s: unsupported fields: %s", c.kind, strings.Join(unknown, ", "))
	}

	if err := c.validate(); err != nil {
		return Condition{}, fmt.Errorf("condition %s: %w", c.kind, err)
	}

	return c, nil
}
