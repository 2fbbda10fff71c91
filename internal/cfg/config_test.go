package cfg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/mergequeue"
)

const fullCfg = `
http_server_listen_addr = ":8084"
github_webhook_endpoint = "/webhook"
github_webhook_secret = "secret"
webhook_filter_query = '.repository.name == "repo"'
github_api_token = "token"
log_format = "json"
log_level = "debug"
dry_run = true
repository_rules_file = ".github/automerger.yml"

[[repository]]
owner = "octo"
repository = "repo"

[merge_queue]
max_attempts = 5
periodic_trigger_interval = "5m"
retry_timeout = "30m"
retry_initial_interval = "2s"
status_context = "ci/merge-queue"
postgres_dsn = "postgres://localhost/automerger"

[[rule]]
name = "merge-approved"

  [[rule.condition]]
  condition = "check-status"
  check = "ci"
  status = "success"

  [[rule.condition]]
  condition = "review-count-at-least"
  count = 2

  [[rule.action]]
  action = "merge"
  method = "squash"

[[rule]]
name = "label-ready"

  [[rule.condition]]
  condition = "label-absent"
  label = "wip"

  [[rule.action]]
  action = "label"
  label = "ready"
`

func TestLoad(t *testing.T) {
	config, err := Load(strings.NewReader(fullCfg))
	require.NoError(t, err)

	assert.Equal(t, ":8084", config.HTTPListenAddr)
	assert.Equal(t, "/webhook", config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, "secret", config.GithubWebHookSecret)
	assert.Equal(t, `.repository.name == "repo"`, config.WebhookFilterQuery)
	assert.Equal(t, "token", config.GithubAPIToken)
	assert.Equal(t, "json", config.LogFormat)
	assert.Equal(t, DefLogTimeKey, config.LogTimeKey)
	assert.Equal(t, "debug", config.LogLevel)
	assert.True(t, config.DryRun)
	assert.Equal(t, ".github/automerger.yml", config.RepositoryRulesFile)
	assert.Equal(t, []GithubRepository{{Owner: "octo", RepositoryName: "repo"}}, config.Repositories)

	assert.Equal(t, 5, config.MergeQueue.MaxAttempts)
	assert.Equal(t, 5*time.Minute, config.MergeQueue.PeriodicTrigger())
	assert.Equal(t, 30*time.Minute, config.MergeQueue.RetryTimeoutDuration())
	assert.Equal(t, 2*time.Second, config.MergeQueue.RetryInitialIntervalDuration())
	assert.Equal(t, "ci/merge-queue", config.MergeQueue.StatusContext)
	assert.Equal(t, "postgres://localhost/automerger", config.MergeQueue.PostgresDSN)
	assert.Equal(t, DefMergeQueueListEndpoint, config.MergeQueue.ListEndpoint)

	require.Len(t, config.Rules, 2)
	assert.Equal(t, "merge-approved", config.Rules[0].Name)
	assert.Len(t, config.Rules[0].Conditions, 2)
	assert.Len(t, config.Rules[0].Actions, 1)
}

func TestDefaults(t *testing.T) {
	config, err := Load(strings.NewReader(`
http_server_listen_addr = ":8084"
repository_rules_file = ".github/automerger.yml"
`))
	require.NoError(t, err)

	assert.Equal(t, DefGithubWebhookEndpoint, config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, DefLogFormat, config.LogFormat)
	assert.Equal(t, DefLogLevel, config.LogLevel)
	assert.Equal(t, mergequeue.DefMaxAttempts, config.MergeQueue.MaxAttempts)
	assert.Equal(t, mergequeue.DefStatusContext, config.MergeQueue.StatusContext)
	assert.Equal(t, 10*time.Minute, config.MergeQueue.PeriodicTrigger())
	assert.Equal(t, 2*time.Hour, config.MergeQueue.RetryTimeoutDuration())
	assert.Equal(t, time.Second, config.MergeQueue.RetryInitialIntervalDuration())
	assert.Empty(t, config.MergeQueue.PostgresDSN)
	assert.False(t, config.DryRun)
}

func TestInvalidValuesAreRejected(t *testing.T) {
	testcases := []struct {
		name   string
		config string
		errStr string
	}{
		{
			name:   "noListenAddr",
			config: `repository_rules_file = "x.yml"`,
			errStr: "listen_addr",
		},
		{
			name: "httpsWithoutCert",
			config: `
https_server_listen_addr = ":443"
repository_rules_file = "x.yml"`,
			errStr: "https_ssl_cert_file",
		},
		{
			name: "logFormat",
			config: `
http_server_listen_addr = ":8084"
repository_rules_file = "x.yml"
log_format = "xml"`,
			errStr: "log_format",
		},
		{
			name: "duration",
			config: `
http_server_listen_addr = ":8084"
repository_rules_file = "x.yml"
[merge_queue]
retry_timeout = "forever"`,
			errStr: "merge_queue.retry_timeout",
		},
		{
			name: "negativeMaxAttempts",
			config: `
http_server_listen_addr = ":8084"
repository_rules_file = "x.yml"
[merge_queue]
max_attempts = -1`,
			errStr: "merge_queue.max_attempts",
		},
		{
			name: "incompleteRepository",
			config: `
http_server_listen_addr = ":8084"
repository_rules_file = "x.yml"
[[repository]]
owner = "octo"`,
			errStr: "repository 0",
		},
		{
			name:   "noRules",
			config: `http_server_listen_addr = ":8084"`,
			errStr: "nothing to do",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errStr)
		})
	}
}

func TestRuleSet(t *testing.T) {
	config, err := Load(strings.NewReader(fullCfg))
	require.NoError(t, err)

	rs, err := config.RuleSet("config.toml")
	require.NoError(t, err)

	assert.Equal(t, 2, rs.Len())
	assert.NotNil(t, rs.Get("merge-approved"))
	assert.NotNil(t, rs.Get("label-ready"))
	assert.Len(t, rs.Version(), 16)

	config2, err := Load(strings.NewReader(fullCfg))
	require.NoError(t, err)
	rs2, err := config2.RuleSet("config.toml")
	require.NoError(t, err)
	assert.Equal(t, rs.Version(), rs2.Version())

	config2.Rules = config2.Rules[:1]
	rs3, err := config2.RuleSet("config.toml")
	require.NoError(t, err)
	assert.NotEqual(t, rs.Version(), rs3.Version())
}

func TestRuleSetWithUnknownConditionIsConfigurationError(t *testing.T) {
	config, err := Load(strings.NewReader(`
http_server_listen_addr = ":8084"

[[rule]]
name = "broken"

  [[rule.condition]]
  condition = "moon-phase"

  [[rule.action]]
  action = "merge"
`))
	require.NoError(t, err)

	_, err = config.RuleSet("config.toml")
	require.Error(t, err)
	assert.True(t, amerr.IsConfiguration(err))
}
