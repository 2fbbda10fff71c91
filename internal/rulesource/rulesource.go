// Package rulesource provides the versioned rule sets per repository.
//
// Rules are either defined statically in the configuration file or read
// from a YAML file in the default branch of each repository. A repository
// without a rule file uses the static rules.
package rulesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/rules"
)

const loggerName = "rule_source"

// Static returns the same rule set for every repository.
type Static struct {
	rs *rules.RuleSet
}

func NewStatic(rs *rules.RuleSet) *Static {
	return &Static{rs: rs}
}

func (s *Static) RuleSet(context.Context, string, string) (*rules.RuleSet, error) {
	return s.rs, nil
}

// Path returns an empty string, static rules are not stored in a
// repository.
func (s *Static) Path() string {
	return ""
}

// Validate is a noop.
func (s *Static) Validate(context.Context, string, string, string) error {
	return nil
}

//go:generate mockgen -destination=mocks/mock_githubclient.go -package=mocks . GithubClient

// GithubClient is the GitHub API used to read rule files.
type GithubClient interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	// FileContent returns the content and the blob SHA of the file, if it
	// does not exist an error wrapping amerr.ErrNotFound is returned.
	FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, string, error)
}

// Retryer is an interface used for running GithubClient methods repeatedly
// if they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

type repoKey struct {
	owner string
	repo  string
}

type cachedRuleSet struct {
	blobSHA string
	rs      *rules.RuleSet
}

// RepositoryFile reads the rules from a YAML file in the default branch of
// the repository.
// The version of the returned rule sets is the blob SHA of the rule file.
// Parsed rule sets are cached per repository until the blob SHA changes.
type RepositoryFile struct {
	clt      GithubClient
	retryer  Retryer
	path     string
	fallback *rules.RuleSet
	logger   *zap.Logger

	lock  sync.Mutex
	cache map[repoKey]*cachedRuleSet
}

// NewRepositoryFile creates a RepositoryFile source that reads the rule file
// at path.
// fallback is returned for repositories that do not contain the rule file,
// if it is nil an empty rule set is returned for them.
func NewRepositoryFile(clt GithubClient, retryer Retryer, path string, fallback *rules.RuleSet) *RepositoryFile {
	if fallback == nil {
		fallback, _ = rules.NewRuleSet("empty", "", nil)
	}

	return &RepositoryFile{
		clt:      clt,
		retryer:  retryer,
		path:     path,
		fallback: fallback,
		logger:   zap.L().Named(loggerName),
		cache:    map[repoKey]*cachedRuleSet{},
	}
}

// Path returns the path of the rule file in the repositories.
func (s *RepositoryFile) Path() string {
	return s.path
}

func (s *RepositoryFile) source(owner, repo, ref string) string {
	return fmt.Sprintf("%s/%s@%s:%s", owner, repo, ref, s.path)
}

func (s *RepositoryFile) fetch(ctx context.Context, owner, repo, ref string) (content []byte, blobSHA string, err error) {
	err = s.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		content, blobSHA, err = s.clt.FileContent(ctx, owner, repo, s.path, ref)
		return err
	}, []zap.Field{
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		zap.String("git.ref", ref),
	})

	return content, blobSHA, err
}

// RuleSet returns the rules defined in the default branch of the
// repository.
// If the rule file is invalid an *amerr.ConfigurationError is returned.
func (s *RepositoryFile) RuleSet(ctx context.Context, owner, repo string) (*rules.RuleSet, error) {
	logger := s.logger.With(logfields.RepositoryOwner(owner), logfields.Repository(repo))

	var defBranch string
	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		defBranch, err = s.clt.DefaultBranch(ctx, owner, repo)
		return err
	}, []zap.Field{logfields.RepositoryOwner(owner), logfields.Repository(repo)})
	if err != nil {
		return nil, fmt.Errorf("retrieving default branch failed: %w", err)
	}

	content, blobSHA, err := s.fetch(ctx, owner, repo, defBranch)
	if err != nil {
		if errors.Is(err, amerr.ErrNotFound) {
			logger.Debug(
				"repository has no rule file, using fallback rules",
				logfields.Event("repository_rule_file_missing"),
				zap.String("rule_file", s.path),
			)
			return s.fallback, nil
		}

		return nil, fmt.Errorf("retrieving rule file failed: %w", err)
	}

	key := repoKey{owner: owner, repo: repo}

	s.lock.Lock()
	cached, exists := s.cache[key]
	s.lock.Unlock()

	if exists && cached.blobSHA == blobSHA {
		return cached.rs, nil
	}

	rs, err := rules.LoadYAML(blobSHA, s.source(owner, repo, defBranch), bytes.NewReader(content))
	if err != nil {
		logger.Warn(
			"repository rule file is invalid",
			logfields.Event("repository_rule_file_invalid"),
			logfields.RuleSetVersion(blobSHA),
			zap.Error(err),
		)
		return nil, err
	}

	s.lock.Lock()
	s.cache[key] = &cachedRuleSet{blobSHA: blobSHA, rs: rs}
	s.lock.Unlock()

	logger.Info(
		"loaded repository rules",
		logfields.Event("repository_rules_loaded"),
		logfields.RuleSetVersion(blobSHA),
		zap.Int("rule_count", rs.Len()),
	)

	return rs, nil
}

// Validate parses the rule file at ref.
// A missing rule file is valid. If the rule file is invalid an
// *amerr.ConfigurationError is returned.
func (s *RepositoryFile) Validate(ctx context.Context, owner, repo, ref string) error {
	content, blobSHA, err := s.fetch(ctx, owner, repo, ref)
	if err != nil {
		if errors.Is(err, amerr.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("retrieving rule file failed: %w", err)
	}

	_, err = rules.LoadYAML(blobSHA, s.source(owner, repo, ref), bytes.NewReader(content))
	return err
}
