// Package github receives GitHub webhook events via HTTP, validates them and
// forwards them to event channels.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/itchyny/gojq"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/provider"
)

const loggerName = "github_event_provider"

const providerName = "github"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to Events and forwards them to event
// channels.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	filterQuery   *gojq.Query
	chans         []chan<- *provider.Event
}

type Option func(*Provider)

// WithPayloadSecret sets the secret that is used to validate the signature
// of webhook payloads.
func WithPayloadSecret(secret string) Option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

// WithFilterQuery sets a jq query that is evaluated against the JSON
// payload of every event. Events for that the query does not evaluate to
// true are dropped.
func WithFilterQuery(query *gojq.Query) Option {
	return func(p *Provider) {
		p.filterQuery = query
	}
}

// ParseFilterQuery parses a jq query for WithFilterQuery.
func ParseFilterQuery(query string) (*gojq.Query, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parsing jq query failed: %w", err)
	}

	return q, nil
}

func New(eventChans []chan<- *provider.Event, opts ...Option) *Provider {
	p := Provider{
		chans:  eventChans,
		logger: zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&p)
	}

	return &p
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errs []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errs
		}

		if err, isErr := res.(error); isErr {
			errs = append(errs, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// matchFilter returns true if no filter query is configured or the query
// evaluates to true for payload.
func (p *Provider) matchFilter(ctx context.Context, payload []byte) (bool, error) {
	if p.filterQuery == nil {
		return true, nil
	}

	var ev any
	if err := json.Unmarshal(payload, &ev); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(p.filterQuery.RunWithContext(ctx, ev))
	if len(errs) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", p.filterQuery.String(), errString(errs))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), p.filterQuery.String())
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf("json query returned non-bool result: %+v (%T), query: %q", result[0], result[0], p.filterQuery.String())
	}

	return val, nil
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	ev := provider.Event{
		Provider:   providerName,
		DeliveryID: deliveryID,
		EventType:  hookType,
	}

	logger := p.logger.With(ev.LogFields()...)

	logger.Debug("received a http request", logfields.Event("github_event_received"))

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev.JSON = payload
	extractEventInfo(event, &ev)
	logger = p.logger.With(ev.LogFields()...)

	match, err := p.matchFilter(req.Context(), payload)
	if err != nil {
		logger.Warn(
			"evaluating webhook filter query failed, event is dropped",
			logfields.Event("github_event_filter_failed"),
			zap.Error(err),
		)
		return
	}

	if !match {
		logger.Debug(
			"event does not match filter query, event is dropped",
			logfields.Event("github_event_filtered"),
		)
		return
	}

	for _, ch := range p.chans {
		select {
		case ch <- &ev:
			logger.Debug("event forwarded to channel",
				logfields.Event("github_event_forwarded"),
			)

		default:
			logger.Warn(
				"event lost, forwarding event to channel failed",
				zap.String("error", "could not forward event to channel, send would have blocked"),
				logfields.Event("github_forwarding_event_failed"),
			)

			http.Error(resp, "queue full", http.StatusServiceUnavailable)
			return
		}
	}
}
