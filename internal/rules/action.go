package rules

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/simplesurance/automerger/internal/maputils"
	"github.com/simplesurance/automerger/internal/snapshot"
)

type ActionKind string

const (
	ActionMerge    ActionKind = "merge"
	ActionLabel    ActionKind = "label"
	ActionComment  ActionKind = "comment"
	ActionClose    ActionKind = "close"
	ActionBackport ActionKind = "backport"
)

type LabelOp string

const (
	LabelAdd    LabelOp = "add"
	LabelRemove LabelOp = "remove"
)

type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// MergeOptions are the parameters of a merge action.
type MergeOptions struct {
	Method MergeMethod `json:"method"`
	// MaxAttempts overwrites the attempt ceiling of the merge queue, 0
	// means the queue default applies.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// Action is an operation that is run when a rule matches.
// The zero value is invalid, actions are created via ActionFromMap.
type Action struct {
	kind ActionKind

	labelOp       LabelOp
	labelTmpl     *template.Template
	commentTmpl   *template.Template
	merge         MergeOptions
	backportBases []string

	def map[string]any
}

func (a Action) Kind() ActionKind {
	return a.kind
}

func (a Action) LabelOp() LabelOp {
	return a.labelOp
}

func (a Action) MergeOptions() MergeOptions {
	return a.merge
}

// BackportBranches returns the branches the pull request is backported to.
func (a Action) BackportBranches() []string {
	return append([]string(nil), a.backportBases...)
}

func (a Action) String() string {
	switch a.kind {
	case ActionLabel:
		return fmt.Sprintf("label(%s %s)", a.labelOp, a.labelTmpl.Root.String())
	case ActionMerge:
		return fmt.Sprintf("merge(%s)", a.merge.Method)
	case ActionBackport:
		return fmt.Sprintf("backport(%s)", strings.Join(a.backportBases, ","))
	default:
		return string(a.kind)
	}
}

var templateFuncs = template.FuncMap{
	"queryescape": url.QueryEscape,
	"join":        strings.Join,
}

type templateContext struct {
	Snapshot *snapshot.Snapshot
	Rule     string
}

func parseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
}

func render(tmpl *template.Template, ruleName string, snap *snapshot.Snapshot) (string, error) {
	var out bytes.Buffer

	if err := tmpl.Execute(&out, &templateContext{Snapshot: snap, Rule: ruleName}); err != nil {
		return "", err
	}

	return out.String(), nil
}

// RenderLabel returns the label of a label action for the snapshot.
func (a Action) RenderLabel(ruleName string, snap *snapshot.Snapshot) (string, error) {
	if a.labelTmpl == nil {
		return "", fmt.Errorf("%s action has no label", a.kind)
	}

	return render(a.labelTmpl, ruleName, snap)
}

// RenderComment returns the comment body of a comment action for the
// snapshot.
func (a Action) RenderComment(ruleName string, snap *snapshot.Snapshot) (string, error) {
	if a.commentTmpl == nil {
		return "", fmt.Errorf("%s action has no message", a.kind)
	}

	return render(a.commentTmpl, ruleName, snap)
}

// ActionFromMap creates an action from its configuration representation.
// The "action" key holds the kind, the remaining keys its parameters.
func ActionFromMap(m map[string]any) (Action, error) {
	kindStr, err := maputils.MustStrVal(m, "action")
	if err != nil {
		return Action{}, err
	}

	a := Action{def: copyMap(m)}
	var known []string

	switch kind := ActionKind(strings.ToLower(kindStr)); kind {
	case ActionMerge:
		known = []string{"method", "max_attempts"}
		a.kind = kind

		method, err := maputils.StrVal(m, "method")
		if err != nil {
			return Action{}, err
		}

		switch MergeMethod(method) {
		case "":
			a.merge.Method = MergeMethodMerge
		case MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
			a.merge.Method = MergeMethod(method)
		default:
			return Action{}, fmt.Errorf("merge: unsupported method: %q", method)
		}

		maxAttempts, exists, err := maputils.IntVal(m, "max_attempts")
		if err != nil {
			return Action{}, fmt.Errorf("merge: %w", err)
		}
		if exists && maxAttempts < 1 {
			return Action{}, fmt.Errorf("merge: max_attempts must be >=1, is %d", maxAttempts)
		}
		a.merge.MaxAttempts = maxAttempts

	case ActionLabel:
		known = []string{"label", "operation"}
		a.kind = kind

		label, err := maputils.MustStrVal(m, "label")
		if err != nil {
			return Action{}, fmt.Errorf("label: %w", err)
		}

		a.labelTmpl, err = parseTemplate("label", label)
		if err != nil {
			return Action{}, fmt.Errorf("label: parsing template failed: %w", err)
		}

		op, err := maputils.StrVal(m, "operation")
		if err != nil {
			return Action{}, fmt.Errorf("label: %w", err)
		}

		switch LabelOp(op) {
		case "", LabelAdd:
			a.labelOp = LabelAdd
		case LabelRemove:
			a.labelOp = LabelRemove
		default:
			return Action{}, fmt.Errorf("label: unsupported operation: %q", op)
		}

	case ActionComment:
		known = []string{"message"}
		a.kind = kind

		msg, err := maputils.MustStrVal(m, "message")
		if err != nil {
			return Action{}, fmt.Errorf("comment: %w", err)
		}

		a.commentTmpl, err = parseTemplate("comment", msg)
		if err != nil {
			return Action{}, fmt.Errorf("comment: parsing template failed: %w", err)
		}

	case ActionClose:
		a.kind = kind

	case ActionBackport:
		known = []string{"branches"}
		a.kind = kind

		branches, err := maputils.StrSliceVal(m, "branches")
		if err != nil {
			return Action{}, fmt.Errorf("backport: %w", err)
		}

		if len(branches) == 0 {
			return Action{}, errors.New("backport: missing array field \"branches\"")
		}

		for _, b := range branches {
			if b == "" {
				return Action{}, errors.New("backport: branch name is empty")
			}
		}

		a.backportBases = branches

	default:
		return Action{}, fmt.Errorf("unsupported action: %q", kindStr)
	}

	if unknown := maputils.UnknownKeys(m, append(known, "action")...); len(unknown) > 0 {
		return Action{}, fmt.Errorf("%s: unsupported fields: %s", a.kind, strings.Join(unknown, ", "))
	}

	return a, nil
}

func copyMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.([]any); ok {
			v = append([]any(nil), s...)
		}
		result[k] = v
	}

	return result
}
