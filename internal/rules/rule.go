// Package rules contains the rule model, the condition evaluator and the
// rule matcher.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/simplesurance/automerger/internal/stringutils"
)

// RuleDef is the configuration representation of a rule.
// It is decoded from the TOML configuration file, from YAML repository rule
// files and from JSON when queue entries are persisted.
type RuleDef struct {
	Name       string           `toml:"name" yaml:"name" json:"name"`
	Conditions []map[string]any `toml:"condition" yaml:"conditions" json:"conditions"`
	Actions    []map[string]any `toml:"action" yaml:"actions" json:"actions"`
}

// Rule is an immutable set of conditions and the actions that run when all
// conditions are satisfied.
type Rule struct {
	name       string
	conditions []Condition
	actions    []Action
}

// NewRule validates def and creates a Rule from it.
func NewRule(def *RuleDef) (*Rule, error) {
	if def.Name == "" {
		return nil, errors.New("rule: missing field: 'name'")
	}

	if len(def.Actions) == 0 {
		return nil, fmt.Errorf("rule %s: missing array field: 'action'", def.Name)
	}

	r := Rule{
		name:       def.Name,
		conditions: make([]Condition, 0, len(def.Conditions)),
		actions:    make([]Action, 0, len(def.Actions)),
	}

	for i, m := range def.Conditions {
		c, err := ConditionFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("rule %s: condition #%d: %w", def.Name, i+1, err)
		}

		r.conditions = append(r.conditions, c)
	}

	var mergeCnt int
	for i, m := range def.Actions {
		a, err := ActionFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("rule %s: action #%d: %w", def.Name, i+1, err)
		}

		if a.kind == ActionMerge {
			mergeCnt++
		}

		r.actions = append(r.actions, a)
	}

	if mergeCnt > 1 {
		return nil, fmt.Errorf("rule %s: only one merge action is allowed, found %d", def.Name, mergeCnt)
	}

	return &r, nil
}

func (r *Rule) Name() string {
	return r.name
}

// Conditions returns a copy of the conditions.
func (r *Rule) Conditions() []Condition {
	return append([]Condition(nil), r.conditions...)
}

// Actions returns a copy of the actions.
func (r *Rule) Actions() []Action {
	return append([]Action(nil), r.actions...)
}

// Definition returns a RuleDef that creates an equal rule when passed to
// NewRule.
func (r *Rule) Definition() *RuleDef {
	def := RuleDef{
		Name:       r.name,
		Conditions: make([]map[string]any, 0, len(r.conditions)),
		Actions:    make([]map[string]any, 0, len(r.actions)),
	}

	for _, c := range r.conditions {
		def.Conditions = append(def.Conditions, c.asMap())
	}

	for _, a := range r.actions {
		def.Actions = append(def.Actions, copyMap(a.def))
	}

	return &def
}

func (r *Rule) String() string {
	return r.name
}

// DetailedString returns a multi-line description of the rule.
func (r *Rule) DetailedString() string {
	var result strings.Builder

	result.WriteString("name: ")
	result.WriteString(r.name)
	result.WriteString("\nconditions:\n")

	for _, c := range r.conditions {
		result.WriteString(stringutils.IndentString(c.String(), "  "))
		result.WriteRune('\n')
	}

	result.WriteString("actions:")

	for _, a := range r.actions {
		result.WriteRune('\n')
		result.WriteString(stringutils.IndentString(a.String(), "  "))
	}

	return result.String()
}
