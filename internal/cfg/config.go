// Package cfg loads the TOML configuration file of the automerger service.
package cfg

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/mergequeue"
	"github.com/simplesurance/automerger/internal/rules"
)

const (
	DefLogFormat               = "logfmt"
	DefLogTimeKey              = "time_iso8601"
	DefLogLevel                = "info"
	DefGithubWebhookEndpoint   = "/listener/github"
	DefMergeQueueListEndpoint  = "/mergequeue"
	DefPeriodicTriggerInterval = "10m"
	DefRetryTimeout            = "2h"
	DefRetryInitialInterval    = "1s"
)

type Config struct {
	HTTPListenAddr            string             `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string             `toml:"https_server_listen_addr"`
	HTTPSCertFile             string             `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string             `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string             `toml:"github_webhook_endpoint"`
	GithubWebHookSecret       string             `toml:"github_webhook_secret"`
	WebhookFilterQuery        string             `toml:"webhook_filter_query"`
	GithubAPIToken            string             `toml:"github_api_token"`
	LogFormat                 string             `toml:"log_format"`
	LogTimeKey                string             `toml:"log_time_key"`
	LogLevel                  string             `toml:"log_level"`
	DryRun                    bool               `toml:"dry_run"`
	Repositories              []GithubRepository `toml:"repository"`
	RepositoryRulesFile       string             `toml:"repository_rules_file"`
	MergeQueue                MergeQueue         `toml:"merge_queue"`
	Rules                     []rules.RuleDef    `toml:"rule"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"repository"`
}

type MergeQueue struct {
	// MaxAttempts is the number of times a queue entry is moved to the
	// tail of its queue after a failed merge, the next failure fails it.
	// It is used for merge actions that do not define max_attempts.
	MaxAttempts             int    `toml:"max_attempts"`
	PeriodicTriggerInterval string `toml:"periodic_trigger_interval"`
	RetryTimeout            string `toml:"retry_timeout"`
	RetryInitialInterval    string `toml:"retry_initial_interval"`
	StatusContext           string `toml:"status_context"`
	// PostgresDSN is the connection string of the database that stores
	// the queues. If it is empty, queues are kept in memory.
	PostgresDSN  string `toml:"postgres_dsn"`
	ListEndpoint string `toml:"list_endpoint"`
}

// PeriodicTrigger returns the parsed PeriodicTriggerInterval.
func (m *MergeQueue) PeriodicTrigger() time.Duration {
	return mustParseDuration(m.PeriodicTriggerInterval)
}

// RetryTimeoutDuration returns the parsed RetryTimeout.
func (m *MergeQueue) RetryTimeoutDuration() time.Duration {
	return mustParseDuration(m.RetryTimeout)
}

// RetryInitialIntervalDuration returns the parsed RetryInitialInterval.
func (m *MergeQueue) RetryInitialIntervalDuration() time.Duration {
	return mustParseDuration(m.RetryInitialInterval)
}

// mustParseDuration parses a duration that was checked by Validate.
func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("duration %q was not validated: %s", s, err))
	}

	return d
}

// Load reads a TOML configuration, sets defaults for unset values and
// validates it.
func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) setDefaults() {
	if r.HTTPGithubWebhookEndpoint == "" {
		r.HTTPGithubWebhookEndpoint = DefGithubWebhookEndpoint
	}

	if r.LogFormat == "" {
		r.LogFormat = DefLogFormat
	}

	if r.LogTimeKey == "" {
		r.LogTimeKey = DefLogTimeKey
	}

	if r.LogLevel == "" {
		r.LogLevel = DefLogLevel
	}

	mq := &r.MergeQueue

	if mq.MaxAttempts == 0 {
		mq.MaxAttempts = mergequeue.DefMaxAttempts
	}

	if mq.PeriodicTriggerInterval == "" {
		mq.PeriodicTriggerInterval = DefPeriodicTriggerInterval
	}

	if mq.RetryTimeout == "" {
		mq.RetryTimeout = DefRetryTimeout
	}

	if mq.RetryInitialInterval == "" {
		mq.RetryInitialInterval = DefRetryInitialInterval
	}

	if mq.StatusContext == "" {
		mq.StatusContext = mergequeue.DefStatusContext
	}

	if mq.ListEndpoint == "" {
		mq.ListEndpoint = DefMergeQueueListEndpoint
	}
}

// Validate returns an error describing all invalid values.
func (r *Config) Validate() error {
	var errs []error

	if r.HTTPListenAddr == "" && r.HTTPSListenAddr == "" {
		errs = append(errs, errors.New("https_server_listen_addr or http_server_listen_addr must be set"))
	}

	if r.HTTPSListenAddr != "" && (r.HTTPSCertFile == "" || r.HTTPSKeyFile == "") {
		errs = append(errs, errors.New("https_ssl_cert_file and https_ssl_key_file must be set when https_server_listen_addr is set"))
	}

	switch r.LogFormat {
	case "logfmt", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unsupported value %q, supported: logfmt, console, json", r.LogFormat))
	}

	for i, repo := range r.Repositories {
		if repo.Owner == "" || repo.RepositoryName == "" {
			errs = append(errs, fmt.Errorf("repository %d: owner and repository must be set", i))
		}
	}

	if len(r.Rules) == 0 && r.RepositoryRulesFile == "" {
		errs = append(errs, errors.New("no rules are defined and repository_rules_file is unset, nothing to do"))
	}

	if r.MergeQueue.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("merge_queue.max_attempts: must be >=1, is %d", r.MergeQueue.MaxAttempts))
	}

	durations := []struct {
		key string
		val string
	}{
		{"merge_queue.periodic_trigger_interval", r.MergeQueue.PeriodicTriggerInterval},
		{"merge_queue.retry_timeout", r.MergeQueue.RetryTimeout},
		{"merge_queue.retry_initial_interval", r.MergeQueue.RetryInitialInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
			continue
		}

		if v < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", d.key))
		}
	}

	return errors.Join(errs...)
}

// RuleSet creates the rule set from the rules defined in the configuration
// file. The version of the rule set is a digest of the rule definitions.
// Invalid rules are returned as *amerr.ConfigurationError.
func (r *Config) RuleSet(source string) (*rules.RuleSet, error) {
	defs := make([]*rules.RuleDef, 0, len(r.Rules))
	for i := range r.Rules {
		defs = append(defs, &r.Rules[i])
	}

	version, err := rulesDigest(defs)
	if err != nil {
		return nil, amerr.NewConfigurationError(source, err)
	}

	return rules.NewRuleSet(version, source, defs)
}

func rulesDigest(defs []*rules.RuleDef) (string, error) {
	// map keys are marshaled in sorted order, the result is stable
	data, err := json.Marshal(defs)
	if err != nil {
		return "", fmt.Errorf("serializing rules failed: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:16], nil
}
