package mergequeue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

type httpRespWriter struct {
	http.ResponseWriter
	logger *zap.Logger
}

func newHTTPRespWriter(logger *zap.Logger, resp http.ResponseWriter) *httpRespWriter {
	return &httpRespWriter{
		ResponseWriter: resp,
		logger:         logger,
	}
}

// WriteStr writes a string to the http response writer.
// If an error happens, it is logged with info priority and false is returned.
func (rw *httpRespWriter) WriteStr(str string) (wasSuccessful bool) {
	_, err := rw.ResponseWriter.Write([]byte(str))
	if err != nil {
		rw.logger.Info("sending http response failed", logfields.Event("http_response_write_failed"), zap.Error(err))
		return false
	}

	return true
}

type jsonEntry struct {
	PullRequest    int       `json:"pull_request"`
	ID             string    `json:"id"`
	HeadCommit     string    `json:"head_commit"`
	Rule           string    `json:"rule"`
	RuleSetVersion string    `json:"ruleset_version"`
	Method         string    `json:"merge_method"`
	State          string    `json:"state"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	LastError      string    `json:"last_error,omitempty"`
}

type jsonQueue struct {
	RepositoryOwner string       `json:"repository_owner"`
	Repository      string       `json:"repository"`
	BaseBranch      string       `json:"base_branch"`
	LastRun         *time.Time   `json:"last_run,omitempty"`
	Entries         []*jsonEntry `json:"entries"`
}

func toJSONQueues(queues []*BranchQueue) []*jsonQueue {
	result := make([]*jsonQueue, 0, len(queues))

	for _, bq := range queues {
		jq := jsonQueue{
			RepositoryOwner: bq.Branch.RepositoryOwner,
			Repository:      bq.Branch.Repository,
			BaseBranch:      bq.Branch.Branch,
			Entries:         make([]*jsonEntry, 0, len(bq.Entries)),
		}

		if !bq.LastRun.IsZero() {
			lastRun := bq.LastRun
			jq.LastRun = &lastRun
		}

		for _, e := range bq.Entries {
			je := jsonEntry{
				PullRequest:    e.ChangeRequest.Number,
				ID:             e.ID.String(),
				HeadCommit:     e.HeadCommit,
				RuleSetVersion: e.RuleSetVersion,
				Method:         string(e.Method),
				State:          string(e.State),
				Attempts:       e.Attempts,
				MaxAttempts:    e.MaxAttempts,
				EnqueuedAt:     e.EnqueuedAt,
				LastError:      e.LastError,
			}
			if e.Rule != nil {
				je.Rule = e.Rule.Name()
			}

			jq.Entries = append(jq.Entries, &je)
		}

		result = append(result, &jq)
	}

	return result
}

// HTTPHandlerList lists the entries of all queues.
// If the request contains an "Accept: application/json" header, the result
// is returned as JSON, otherwise as plain text.
func (c *Coordinator) HTTPHandlerList(respWr http.ResponseWriter, req *http.Request) {
	logger := c.logger.Named("http_handler")
	resp := newHTTPRespWriter(logger, respWr)

	queues, err := c.List(req.Context())
	if err != nil {
		logger.Warn("listing queues failed", logfields.Event("http_queue_list_failed"), zap.Error(err))
		http.Error(respWr, err.Error(), http.StatusInternalServerError)
		return
	}

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		resp.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(resp).Encode(toJSONQueues(queues)); err != nil {
			logger.Info("sending http response failed", logfields.Event("http_response_write_failed"), zap.Error(err))
		}

		return
	}

	resp.Header().Set("Content-Type", "text/plain")

	if len(queues) == 0 {
		resp.WriteStr("no pull requests queued for merging\n")
		return
	}

	for _, bq := range queues {
		lastRun := "never"
		if !bq.LastRun.IsZero() {
			lastRun = bq.LastRun.Format(time.RFC822)
		}

		if !resp.WriteStr(fmt.Sprintf("Base: %s, last processed: %s\n", bq.Branch, lastRun)) {
			return
		}

		for i, e := range bq.Entries {
			ruleName := ""
			if e.Rule != nil {
				ruleName = e.Rule.Name()
			}

			line := fmt.Sprintf(
				"\t#%-4d PR: %4d\tAdded: %s\tState: %-10s\tAttempts: %d/%d\tRule: %s\n",
				i, e.ChangeRequest.Number, e.EnqueuedAt.Format(time.RFC822), e.State,
				e.Attempts, e.MaxAttempts, ruleName,
			)
			if e.LastError != "" {
				line += "\t\tLast error: " + e.LastError + "\n"
			}

			if !resp.WriteStr(line) {
				return
			}
		}

		if !resp.WriteStr("\n") {
			return
		}
	}
}
