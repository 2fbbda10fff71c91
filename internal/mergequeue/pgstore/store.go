// Package pgstore provides a PostgreSQL backed mergequeue.Store.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/mergequeue"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/snapshot"
)

const loggerName = "pg_queue_store"

const schema = `
CREATE SEQUENCE IF NOT EXISTS merge_queue_position_seq;

CREATE TABLE IF NOT EXISTS merge_queue_entries (
	repository_owner TEXT NOT NULL,
	repository       TEXT NOT NULL,
	base_branch      TEXT NOT NULL,
	pull_request     INTEGER NOT NULL,
	id               TEXT NOT NULL,
	position         BIGINT NOT NULL DEFAULT nextval('merge_queue_position_seq'),
	head_commit      TEXT NOT NULL,
	rule             JSONB NOT NULL,
	ruleset_version  TEXT NOT NULL,
	merge_method     TEXT NOT NULL,
	max_attempts     INTEGER NOT NULL,
	enqueued_at      TIMESTAMPTZ NOT NULL,
	attempts         INTEGER NOT NULL,
	state            TEXT NOT NULL,
	last_error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repository_owner, repository, base_branch, pull_request)
);

CREATE INDEX IF NOT EXISTS merge_queue_entries_position_idx
	ON merge_queue_entries (repository_owner, repository, base_branch, position);
`

const entryColumns = `repository_owner, repository, base_branch, pull_request, id, head_commit,
	rule, ruleset_version, merge_method, max_attempts, enqueued_at, attempts, state, last_error`

// Store is a mergequeue.Store that persists queues in PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	txManager *txManager
	logger    *zap.Logger
}

var _ mergequeue.Store = &Store{}

// New connects to the database and creates the schema if it does not exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn failed: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating postgres connection pool failed: %w", err)
	}

	s := Store{
		pool:      pool,
		txManager: &txManager{db: pool},
		logger:    zap.L().Named(loggerName),
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Debug("database schema is uptodate", logfields.Event("queue_store_schema_migrated"))

	return &s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating database schema failed: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func branchKey(b mergequeue.BranchID) string {
	return b.String()
}

// lockBranch serializes all mutations of a queue until the transaction
// ends.
func (s *Store) lockBranch(ctx context.Context, b mergequeue.BranchID) error {
	_, err := s.txManager.executor(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, branchKey(b))
	if err != nil {
		return fmt.Errorf("acquiring queue lock failed: %w", err)
	}

	return nil
}

func (s *Store) Enqueue(ctx context.Context, e *mergequeue.Entry) (*mergequeue.Entry, error) {
	ruleJSON, err := marshalRule(e.Rule)
	if err != nil {
		return nil, err
	}

	var replaced *mergequeue.Entry
	branch := e.Branch()

	err = s.txManager.withTx(ctx, func(ctx context.Context) error {
		if err := s.lockBranch(ctx, branch); err != nil {
			return err
		}

		old, err := s.get(ctx, branch, e.ChangeRequest)
		if err != nil && !errors.Is(err, mergequeue.ErrNotFound) {
			return err
		}

		if old != nil {
			replaced = old
			_, err := s.txManager.executor(ctx).Exec(ctx, `
				UPDATE merge_queue_entries
				SET id = $5, head_commit = $6, rule = $7::jsonb, ruleset_version = $8,
					merge_method = $9, max_attempts = $10, state = $11, last_error = ''
				WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3 AND pull_request = $4`,
				branch.RepositoryOwner, branch.Repository, branch.Branch, e.ChangeRequest.Number,
				e.ID.String(), e.HeadCommit, ruleJSON, e.RuleSetVersion,
				string(e.Method), e.MaxAttempts, string(mergequeue.StateQueued),
			)
			if err != nil {
				return fmt.Errorf("replacing queue entry failed: %w", err)
			}

			return nil
		}

		_, err = s.txManager.executor(ctx).Exec(ctx, `
			INSERT INTO merge_queue_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14)`,
			branch.RepositoryOwner, branch.Repository, branch.Branch, e.ChangeRequest.Number,
			e.ID.String(), e.HeadCommit, ruleJSON, e.RuleSetVersion,
			string(e.Method), e.MaxAttempts, e.EnqueuedAt, e.Attempts,
			string(mergequeue.StateQueued), e.LastError,
		)
		if err != nil {
			return fmt.Errorf("inserting queue entry failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return replaced, nil
}

func (s *Store) Head(ctx context.Context, branch mergequeue.BranchID) (*mergequeue.Entry, error) {
	row := s.txManager.executor(ctx).QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM merge_queue_entries
		WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3
		ORDER BY position
		LIMIT 1`,
		branch.RepositoryOwner, branch.Repository, branch.Branch,
	)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("querying queue head failed: %w", err)
	}

	return e, nil
}

func (s *Store) Get(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID) (*mergequeue.Entry, error) {
	return s.get(ctx, branch, cr)
}

func (s *Store) get(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID) (*mergequeue.Entry, error) {
	row := s.txManager.executor(ctx).QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM merge_queue_entries
		WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3 AND pull_request = $4`,
		branch.RepositoryOwner, branch.Repository, branch.Branch, cr.Number,
	)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mergequeue.ErrNotFound
		}

		return nil, fmt.Errorf("querying queue entry failed: %w", err)
	}

	return e, nil
}

func (s *Store) List(ctx context.Context, branch mergequeue.BranchID) ([]*mergequeue.Entry, error) {
	rows, err := s.txManager.executor(ctx).Query(ctx, `
		SELECT `+entryColumns+`
		FROM merge_queue_entries
		WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3
		ORDER BY position`,
		branch.RepositoryOwner, branch.Repository, branch.Branch,
	)
	if err != nil {
		return nil, fmt.Errorf("querying queue entries failed: %w", err)
	}
	defer rows.Close()

	var result []*mergequeue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

func (s *Store) Branches(ctx context.Context) ([]mergequeue.BranchID, error) {
	rows, err := s.txManager.executor(ctx).Query(ctx, `
		SELECT DISTINCT repository_owner, repository, base_branch
		FROM merge_queue_entries
		ORDER BY repository_owner, repository, base_branch`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying queue branches failed: %w", err)
	}
	defer rows.Close()

	var result []mergequeue.BranchID
	for rows.Next() {
		var b mergequeue.BranchID
		if err := rows.Scan(&b.RepositoryOwner, &b.Repository, &b.Branch); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

// getForUpdate returns the entry if its ID matches id, it must be called
// in a transaction that holds the queue lock.
func (s *Store) getForUpdate(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID, id uuid.UUID) (*mergequeue.Entry, error) {
	if err := s.lockBranch(ctx, branch); err != nil {
		return nil, err
	}

	e, err := s.get(ctx, branch, cr)
	if err != nil {
		return nil, err
	}

	if id != mergequeue.AnyID && e.ID != id {
		return nil, mergequeue.ErrSuperseded
	}

	return e, nil
}

func (s *Store) Remove(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID, id uuid.UUID) (*mergequeue.Entry, error) {
	var removed *mergequeue.Entry

	err := s.txManager.withTx(ctx, func(ctx context.Context) error {
		e, err := s.getForUpdate(ctx, branch, cr, id)
		if err != nil {
			return err
		}

		_, err = s.txManager.executor(ctx).Exec(ctx, `
			DELETE FROM merge_queue_entries
			WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3 AND pull_request = $4`,
			branch.RepositoryOwner, branch.Repository, branch.Branch, cr.Number,
		)
		if err != nil {
			return fmt.Errorf("deleting queue entry failed: %w", err)
		}

		removed = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

func (s *Store) Requeue(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, attempts int, lastErr string) error {
	return s.txManager.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.getForUpdate(ctx, branch, cr, id); err != nil {
			return err
		}

		_, err := s.txManager.executor(ctx).Exec(ctx, `
			UPDATE merge_queue_entries
			SET position = nextval('merge_queue_position_seq'), attempts = $5, last_error = $6, state = $7
			WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3 AND pull_request = $4`,
			branch.RepositoryOwner, branch.Repository, branch.Branch, cr.Number,
			attempts, lastErr, string(mergequeue.StateQueued),
		)
		if err != nil {
			return fmt.Errorf("requeuing entry failed: %w", err)
		}

		return nil
	})
}

func (s *Store) SetState(ctx context.Context, branch mergequeue.BranchID, cr snapshot.ChangeRequestID, id uuid.UUID, state mergequeue.State, lastErr string) error {
	return s.txManager.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.getForUpdate(ctx, branch, cr, id); err != nil {
			return err
		}

		_, err := s.txManager.executor(ctx).Exec(ctx, `
			UPDATE merge_queue_entries
			SET state = $5, last_error = $6
			WHERE repository_owner = $1 AND repository = $2 AND base_branch = $3 AND pull_request = $4`,
			branch.RepositoryOwner, branch.Repository, branch.Branch, cr.Number,
			string(state), lastErr,
		)
		if err != nil {
			return fmt.Errorf("updating entry state failed: %w", err)
		}

		return nil
	})
}

func marshalRule(r *rules.Rule) (string, error) {
	if r == nil {
		return "null", nil
	}

	b, err := json.Marshal(r.Definition())
	if err != nil {
		return "", fmt.Errorf("marshaling rule failed: %w", err)
	}

	return string(b), nil
}

func unmarshalRule(b []byte) (*rules.Rule, error) {
	var def *rules.RuleDef
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("unmarshaling rule failed: %w", err)
	}

	if def == nil {
		return nil, nil
	}

	return rules.NewRule(def)
}

func scanEntry(row pgx.Row) (*mergequeue.Entry, error) {
	var e mergequeue.Entry
	var id, method, state string
	var ruleJSON []byte
	var enqueuedAt time.Time

	err := row.Scan(
		&e.ChangeRequest.RepositoryOwner,
		&e.ChangeRequest.Repository,
		&e.BaseBranch,
		&e.ChangeRequest.Number,
		&id,
		&e.HeadCommit,
		&ruleJSON,
		&e.RuleSetVersion,
		&method,
		&e.MaxAttempts,
		&enqueuedAt,
		&e.Attempts,
		&state,
		&e.LastError,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("stored entry has invalid id %q: %w", id, err)
	}

	e.Rule, err = unmarshalRule(ruleJSON)
	if err != nil {
		zap.L().Named(loggerName).Warn(
			"stored rule of queue entry is invalid",
			append(e.ChangeRequest.LogFields(),
				logfields.Event("queue_entry_rule_invalid"),
				zap.Error(err),
			)...,
		)
	}

	e.Method = rules.MergeMethod(method)
	e.State = mergequeue.State(state)
	e.EnqueuedAt = enqueuedAt

	return &e, nil
}
