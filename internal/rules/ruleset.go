package rules

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/stringutils"
)

// RuleSet is an immutable ordered list of rules of one configuration
// version.
type RuleSet struct {
	version string
	rules   []*Rule
}

// NewRuleSet creates all rules from defs. Rule names must be unique.
// All errors are returned as *amerr.ConfigurationError.
func NewRuleSet(version, source string, defs []*RuleDef) (*RuleSet, error) {
	rs := RuleSet{
		version: version,
		rules:   make([]*Rule, 0, len(defs)),
	}

	names := make(map[string]struct{}, len(defs))

	for _, def := range defs {
		r, err := NewRule(def)
		if err != nil {
			return nil, amerr.NewConfigurationError(source, err)
		}

		if _, exists := names[r.name]; exists {
			return nil, amerr.NewConfigurationError(source, fmt.Errorf("rule %s: name is not unique", r.name))
		}
		names[r.name] = struct{}{}

		rs.rules = append(rs.rules, r)
	}

	return &rs, nil
}

type yamlRuleFile struct {
	Rules []*RuleDef `yaml:"rules"`
}

// LoadYAML parses a YAML rule file.
// It fails with an *amerr.ConfigurationError on syntax or schema errors.
func LoadYAML(version, source string, r io.Reader) (*RuleSet, error) {
	var f yamlRuleFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return NewRuleSet(version, source, nil)
		}

		return nil, amerr.NewConfigurationError(source, fmt.Errorf("parsing yaml failed: %w", err))
	}

	return NewRuleSet(version, source, f.Rules)
}

// Version identifies the configuration revision the rules were loaded from.
func (rs *RuleSet) Version() string {
	return rs.version
}

// Rules returns the rules in declaration order.
func (rs *RuleSet) Rules() []*Rule {
	return append([]*Rule(nil), rs.rules...)
}

// Get returns the rule with the given name or nil.
func (rs *RuleSet) Get(name string) *Rule {
	for _, r := range rs.rules {
		if r.name == name {
			return r
		}
	}

	return nil
}

func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

func (rs *RuleSet) String() string {
	var result strings.Builder

	for i, r := range rs.rules {
		result.WriteString(stringutils.IndentString(r.DetailedString(), "  "))
		if i < len(rs.rules)-1 {
			result.WriteRune('\n')
		}
	}

	return result.String()
}
