package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/simplesurance/automerger/internal/cfg"
	"github.com/simplesurance/automerger/internal/rules"
)

func newCheckRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-rules [RULE-FILE]...",
		Short: "Validate the rules of the configuration file or of repository rule files",
		Long: `Validate rules and print them.
If RULE-FILE arguments are passed, they are parsed as YAML repository rule
files. Otherwise the rules defined in the configuration file are validated.`,
		RunE: func(cmd *cobra.Command, ruleFiles []string) error {
			if len(ruleFiles) == 0 {
				return checkCfgRules(cmd.OutOrStdout(), args.ConfigFile)
			}

			for _, path := range ruleFiles {
				if err := checkRuleFile(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func checkCfgRules(out io.Writer, cfgFile string) error {
	file, err := os.Open(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		return fmt.Errorf("loading configuration file %s failed: %w", cfgFile, err)
	}

	if len(config.Rules) == 0 {
		fmt.Fprintf(out, "%s: no rules defined\n", cfgFile)
		return nil
	}

	rs, err := config.RuleSet(cfgFile)
	if err != nil {
		return err
	}

	printRuleSet(out, cfgFile, rs)

	return nil
}

func checkRuleFile(out io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	rs, err := rules.LoadYAML("local", path, file)
	if err != nil {
		return err
	}

	printRuleSet(out, path, rs)

	return nil
}

func printRuleSet(out io.Writer, source string, rs *rules.RuleSet) {
	fmt.Fprintf(out, "%s: %d valid rules (version: %s)\n%s\n", source, rs.Len(), rs.Version(), rs)
}
