package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/automerger/internal/provider"
)

const pullRequestSynchronizeEventPayload = `{
  "action": "synchronize",
  "number": 1,
  "pull_request": {
    "number": 1,
    "state": "open",
    "merged": false,
    "head": {"ref": "pr", "sha": "8ad9dec4298f6b8f020997373cf4fe22005f2c06"},
    "base": {"ref": "main", "sha": "1f0f6c8a0b5cf8b3c26a5e3f0e0e3b7d1c0c2a9e"}
  },
  "repository": {"name": "repo", "owner": {"login": "octo"}}
}`

const pullRequestClosedEventPayload = `{
  "action": "closed",
  "number": 2,
  "pull_request": {
    "number": 2,
    "state": "closed",
    "merged": true,
    "head": {"ref": "automerger/bp/release/pr-1", "sha": "aaaa"},
    "base": {"ref": "release", "sha": "bbbb"}
  },
  "repository": {"name": "repo", "owner": {"login": "octo"}}
}`

const statusEventPayload = `{
  "sha": "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
  "state": "success",
  "context": "ci",
  "repository": {"name": "repo", "owner": {"login": "octo"}}
}`

const pushEventPayload = `{
  "ref": "refs/heads/main",
  "after": "cccc",
  "repository": {"name": "repo", "owner": {"name": "octo", "login": "octo"}}
}`

func newWebhookReq(eventType, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "3355fab0-b22c-11eb-9936-51d9540c0cdc")

	return req
}

func newProvider(t *testing.T, opts ...Option) (*Provider, chan *provider.Event) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)

	return New([]chan<- *provider.Event{evChan}, opts...), evChan
}

func TestHTTPHandlerEventParsing(t *testing.T) {
	type testcase struct {
		name      string
		eventType string
		payload   string

		expected provider.Event
	}

	testcases := []testcase{
		{
			name:      "pullRequestSync",
			eventType: "pull_request",
			payload:   pullRequestSynchronizeEventPayload,
			expected: provider.Event{
				EventType:       "pull_request",
				Action:          "synchronize",
				RepositoryOwner: "octo",
				Repository:      "repo",
				BaseBranch:      "main",
				Branch:          "pr",
				CommitID:        "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
				PullRequestNr:   1,
			},
		},
		{
			name:      "pullRequestClosed",
			eventType: "pull_request",
			payload:   pullRequestClosedEventPayload,
			expected: provider.Event{
				EventType:         "pull_request",
				Action:            "closed",
				RepositoryOwner:   "octo",
				Repository:        "repo",
				BaseBranch:        "release",
				Branch:            "automerger/bp/release/pr-1",
				CommitID:          "aaaa",
				PullRequestNr:     2,
				PullRequestMerged: true,
			},
		},
		{
			name:      "status",
			eventType: "status",
			payload:   statusEventPayload,
			expected: provider.Event{
				EventType:       "status",
				RepositoryOwner: "octo",
				Repository:      "repo",
				CommitID:        "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
				CheckName:       "ci",
			},
		},
		{
			name:      "push",
			eventType: "push",
			payload:   pushEventPayload,
			expected: provider.Event{
				EventType:       "push",
				RepositoryOwner: "octo",
				Repository:      "repo",
				BaseBranch:      "main",
				Branch:          "main",
				CommitID:        "cccc",
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p, evChan := newProvider(t)

			respRecorder := httptest.NewRecorder()
			p.HTTPHandler(respRecorder, newWebhookReq(tc.eventType, tc.payload))
			require.Equal(t, http.StatusOK, respRecorder.Code)

			require.Len(t, evChan, 1)
			ev := <-evChan

			assert.Equal(t, tc.payload, string(ev.JSON))
			assert.Equal(t, "github", ev.Provider)
			assert.Equal(t, "3355fab0-b22c-11eb-9936-51d9540c0cdc", ev.DeliveryID)
			assert.Equal(t, tc.expected.EventType, ev.EventType)
			assert.Equal(t, tc.expected.Action, ev.Action)
			assert.Equal(t, tc.expected.RepositoryOwner, ev.RepositoryOwner)
			assert.Equal(t, tc.expected.Repository, ev.Repository)
			assert.Equal(t, tc.expected.BaseBranch, ev.BaseBranch)
			assert.Equal(t, tc.expected.Branch, ev.Branch)
			assert.Equal(t, tc.expected.CommitID, ev.CommitID)
			assert.Equal(t, tc.expected.PullRequestNr, ev.PullRequestNr)
			assert.Equal(t, tc.expected.PullRequestMerged, ev.PullRequestMerged)
			assert.Equal(t, tc.expected.CheckName, ev.CheckName)
		})
	}
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	p, evChan := newProvider(t, WithPayloadSecret("secret"))

	req := newWebhookReq("pull_request", pullRequestSynchronizeEventPayload)
	req.Header.Set("X-Hub-Signature-256", "sha256=0000")

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, req)

	assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
	assert.Empty(t, evChan)
}

func TestValidSignatureIsAccepted(t *testing.T) {
	const secret = "secret"
	p, evChan := newProvider(t, WithPayloadSecret(secret))

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(pullRequestSynchronizeEventPayload))

	req := newWebhookReq("pull_request", pullRequestSynchronizeEventPayload)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, req)

	assert.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Len(t, evChan, 1)
}

func TestFilterQuery(t *testing.T) {
	query, err := ParseFilterQuery(`.repository.name == "repo" and .action != "closed"`)
	require.NoError(t, err)

	p, evChan := newProvider(t, WithFilterQuery(query))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("pull_request", pullRequestClosedEventPayload))
	assert.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Empty(t, evChan)

	respRecorder = httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("pull_request", pullRequestSynchronizeEventPayload))
	assert.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Len(t, evChan, 1)
}

func TestNonBoolFilterQueryResultDropsEvent(t *testing.T) {
	query, err := ParseFilterQuery(`.repository.name`)
	require.NoError(t, err)

	p, evChan := newProvider(t, WithFilterQuery(query))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("pull_request", pullRequestSynchronizeEventPayload))
	assert.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Empty(t, evChan)
}

func TestInvalidFilterQuery(t *testing.T) {
	_, err := ParseFilterQuery(`.repository.name ==`)
	assert.Error(t, err)
}

func TestFullChannelReturnsUnavailable(t *testing.T) {
	p, evChan := newProvider(t)
	evChan <- &provider.Event{}

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("pull_request", pullRequestSynchronizeEventPayload))
	assert.Equal(t, http.StatusServiceUnavailable, respRecorder.Code)
}
