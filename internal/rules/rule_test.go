package rules

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/snapshot"
)

func newSnapshot(checks map[string]snapshot.CheckStatus, approvers ...string) *snapshot.Snapshot {
	return snapshot.New(&snapshot.Params{
		ID:         snapshot.ChangeRequestID{RepositoryOwner: "octo", Repository: "repo", Number: 42},
		BaseBranch: "main",
		HeadBranch: "feature",
		HeadCommit: "abc",
		Labels:     []string{"automerge"},
		Checks:     checks,
		Approvers:  approvers,
		Mergeable:  true,
		UpToDate:   true,
	})
}

func mustRuleSet(t *testing.T, defs ...*RuleDef) *RuleSet {
	t.Helper()

	rs, err := NewRuleSet("v1", "test", defs)
	require.NoError(t, err)

	return rs
}

func mergeRuleDef() *RuleDef {
	return &RuleDef{
		Name: "automerge",
		Conditions: []map[string]any{
			{"condition": "check-status", "check": "ci", "status": "success"},
			{"condition": "review-count-at-least", "count": 1},
		},
		Actions: []map[string]any{{"action": "merge"}},
	}
}

func TestAbsentCheckIsPending(t *testing.T) {
	snap := newSnapshot(nil, "alice")

	assert.Equal(t, Pending, Evaluate(CheckStatusEquals("ci", snapshot.CheckStatusSuccess), snap))
}

func TestCheckStatusEvaluation(t *testing.T) {
	cond := CheckStatusEquals("ci", snapshot.CheckStatusSuccess)

	assert.Equal(t, Satisfied, Evaluate(cond, newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusSuccess})))
	assert.Equal(t, Unsatisfied, Evaluate(cond, newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusFailure})))
	assert.Equal(t, Pending, Evaluate(cond, newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusPending})))

	pendingCond := CheckStatusEquals("ci", snapshot.CheckStatusPending)
	assert.Equal(t, Satisfied, Evaluate(pendingCond, newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusPending})))
}

func TestEvaluateSimpleConditions(t *testing.T) {
	snap := newSnapshot(nil, "alice", "bob")

	assert.Equal(t, Satisfied, Evaluate(LabelPresent("automerge"), snap))
	assert.Equal(t, Unsatisfied, Evaluate(LabelPresent("other"), snap))
	assert.Equal(t, Unsatisfied, Evaluate(LabelAbsent("automerge"), snap))
	assert.Equal(t, Satisfied, Evaluate(ReviewCountAtLeast(2), snap))
	assert.Equal(t, Unsatisfied, Evaluate(ReviewCountAtLeast(3), snap))
	assert.Equal(t, Satisfied, Evaluate(BranchUpToDate(), snap))
	assert.Equal(t, Satisfied, Evaluate(BaseBranchEquals("main"), snap))
	assert.Equal(t, Unsatisfied, Evaluate(BaseBranchEquals("release"), snap))
	assert.Equal(t, Satisfied, Evaluate(NoChangesRequested(), snap))
	assert.Equal(t, ResultUndefined, Evaluate(Condition{}, snap))
}

func TestUnsatisfiedDominatesPending(t *testing.T) {
	rs := mustRuleSet(t, mergeRuleDef())
	r := rs.Get("automerge")
	require.NotNil(t, r)

	// ci absent -> pending, reviews missing -> unsatisfied
	assert.Equal(t, VerdictMismatch, EvaluateRule(r, newSnapshot(nil)))
	assert.Equal(t, VerdictPending, EvaluateRule(r, newSnapshot(nil, "alice")))
}

func TestPendingRuleMatchesLater(t *testing.T) {
	rs := mustRuleSet(t, mergeRuleDef())

	assert.Empty(t, rs.Match(newSnapshot(nil, "alice")))

	matches := rs.Match(newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusSuccess}, "alice"))
	require.Len(t, matches, 1)
	assert.Equal(t, "automerge", matches[0].Rule.Name())
	require.Len(t, matches[0].Actions, 1)
	assert.Equal(t, ActionMerge, matches[0].Actions[0].Kind())
}

func TestAllMatchingRulesFireInDeclarationOrder(t *testing.T) {
	labelRule := &RuleDef{
		Name:       "label-ready",
		Conditions: []map[string]any{{"condition": "review-count-at-least", "count": 1}},
		Actions: []map[string]any{
			{"action": "label", "label": "ready"},
			{"action": "comment", "message": "ready"},
		},
	}
	notMatching := &RuleDef{
		Name:       "release-only",
		Conditions: []map[string]any{{"condition": "base-branch", "branch": "release"}},
		Actions:    []map[string]any{{"action": "close"}},
	}

	rs := mustRuleSet(t, labelRule, notMatching, mergeRuleDef())
	snap := newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusSuccess}, "alice", "bob")

	first := rs.Match(snap)
	require.Len(t, first, 2)
	assert.Equal(t, "label-ready", first[0].Rule.Name())
	assert.Equal(t, []ActionKind{ActionLabel, ActionComment}, kinds(first[0].Actions))
	assert.Equal(t, "automerge", first[1].Rule.Name())

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rs.Match(snap))
	}
}

func kinds(actions []Action) []ActionKind {
	result := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		result = append(result, a.Kind())
	}

	return result
}

func TestScenarioMergeThenRevalidationFails(t *testing.T) {
	rs := mustRuleSet(t, mergeRuleDef())

	matches := rs.Match(newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusSuccess}, "a", "b"))
	require.Len(t, matches, 1)
	assert.Equal(t, []ActionKind{ActionMerge}, kinds(matches[0].Actions))

	verdict, results := Revalidate(
		matches[0].Rule,
		newSnapshot(map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusFailure}, "a", "b"),
	)
	assert.Equal(t, VerdictMismatch, verdict)

	unsatisfied := UnsatisfiedConditions(results)
	require.Len(t, unsatisfied, 1)
	assert.Equal(t, CondCheckStatus, unsatisfied[0].Condition.Kind())
}

func TestRevalidateIgnoresUpToDateCondition(t *testing.T) {
	def := mergeRuleDef()
	def.Conditions = append(def.Conditions, map[string]any{"condition": "branch-up-to-date"})
	rs := mustRuleSet(t, def)

	snap := snapshot.New(&snapshot.Params{
		BaseBranch: "main",
		Checks:     map[string]snapshot.CheckStatus{"ci": snapshot.CheckStatusSuccess},
		Approvers:  []string{"alice"},
		UpToDate:   false,
	})

	assert.Equal(t, VerdictMismatch, EvaluateRule(rs.Get("automerge"), snap))

	verdict, _ := Revalidate(rs.Get("automerge"), snap)
	assert.Equal(t, VerdictMatch, verdict)
}

func TestUnknownConditionIsConfigurationError(t *testing.T) {
	def := mergeRuleDef()
	def.Conditions = append(def.Conditions, map[string]any{"condition": "moon-phase"})

	_, err := NewRuleSet("v1", "rules.yml", []*RuleDef{def})
	require.Error(t, err)
	assert.True(t, amerr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "moon-phase")
}

func TestInvalidDefinitionsFailAtLoad(t *testing.T) {
	tcs := map[string]*RuleDef{
		"missing name": {Actions: []map[string]any{{"action": "close"}}},
		"no actions":   {Name: "x"},
		"unknown action": {
			Name: "x", Actions: []map[string]any{{"action": "deploy"}},
		},
		"unknown field": {
			Name: "x", Actions: []map[string]any{{"action": "merge", "metod": "squash"}},
		},
		"bad merge method": {
			Name: "x", Actions: []map[string]any{{"action": "merge", "method": "octopus"}},
		},
		"two merges": {
			Name: "x", Actions: []map[string]any{{"action": "merge"}, {"action": "merge"}},
		},
		"bad template": {
			Name: "x", Actions: []map[string]any{{"action": "comment", "message": "{{ .Snapshot"}},
		},
		"bad check status": {
			Name:       "x",
			Conditions: []map[string]any{{"condition": "check-status", "check": "ci", "status": "green"}},
			Actions:    []map[string]any{{"action": "close"}},
		},
		"backport without branches": {
			Name: "x", Actions: []map[string]any{{"action": "backport"}},
		},
	}

	for name, def := range tcs {
		t.Run(name, func(t *testing.T) {
			_, err := NewRuleSet("v1", "test", []*RuleDef{def})
			require.Error(t, err)
			assert.True(t, amerr.IsConfiguration(err))
		})
	}
}

func TestDuplicateRuleNamesAreRejected(t *testing.T) {
	_, err := NewRuleSet("v1", "test", []*RuleDef{mergeRuleDef(), mergeRuleDef()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not unique")
}

func TestRenderTemplates(t *testing.T) {
	def := &RuleDef{
		Name: "notify",
		Actions: []map[string]any{
			{"action": "label", "label": "queued-{{ .Snapshot.BaseBranch }}"},
			{"action": "comment", "message": "{{ .Rule }}: #{{ .Snapshot.Number }} {{ queryescape \"a&b\" }}"},
		},
	}

	rs := mustRuleSet(t, def)
	snap := newSnapshot(nil)
	actions := rs.Get("notify").Actions()

	label, err := actions[0].RenderLabel("notify", snap)
	require.NoError(t, err)
	assert.Equal(t, "queued-main", label)

	comment, err := actions[1].RenderComment("notify", snap)
	require.NoError(t, err)
	assert.Equal(t, "notify: #42 a%26b", comment)
}

func TestDefinitionSurvivesJSONPersistence(t *testing.T) {
	def := mergeRuleDef()
	def.Actions = []map[string]any{
		{"action": "merge", "method": "squash", "max_attempts": 5},
		{"action": "backport", "branches": []any{"release-1"}},
	}
	rs := mustRuleSet(t, def)

	data, err := json.Marshal(rs.Get("automerge").Definition())
	require.NoError(t, err)

	var decoded RuleDef
	require.NoError(t, json.Unmarshal(data, &decoded))

	r, err := NewRule(&decoded)
	require.NoError(t, err)

	actions := r.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, MergeOptions{Method: MergeMethodSquash, MaxAttempts: 5}, actions[0].MergeOptions())
	assert.Equal(t, []string{"release-1"}, actions[1].BackportBranches())
	assert.Equal(t, rs.Get("automerge").Conditions(), r.Conditions())
}

func TestLoadYAML(t *testing.T) {
	const rulesYAML = `
rules:
  - name: automerge
    conditions:
      - condition: label-present
        label: automerge
      - condition: check-status
        check: ci
        status: success
      - condition: review-count-at-least
        count: 1
    actions:
      - action: merge
        method: squash
      - action: label
        label: automerge
        operation: remove
`
	rs, err := LoadYAML("sha1", ".github/automerger.yml", strings.NewReader(rulesYAML))
	require.NoError(t, err)
	assert.Equal(t, "sha1", rs.Version())
	require.Equal(t, 1, rs.Len())

	r := rs.Rules()[0]
	assert.Len(t, r.Conditions(), 3)
	assert.Equal(t, LabelRemove, r.Actions()[1].LabelOp())
	assert.Equal(t, MergeMethodSquash, r.Actions()[0].MergeOptions().Method)
}

func TestLoadYAMLErrors(t *testing.T) {
	_, err := LoadYAML("sha1", "f", strings.NewReader("rules: [\n"))
	assert.True(t, amerr.IsConfiguration(err))

	_, err = LoadYAML("sha1", "f", strings.NewReader("rulez: []\n"))
	assert.True(t, amerr.IsConfiguration(err))

	rs, err := LoadYAML("sha1", "f", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}
