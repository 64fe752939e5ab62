// Package webhook forwards module failure events to an external HTTP
// endpoint so operators hear about broken reloads without tailing logs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/randalmurphal/hotmod/pkg/hotmod/errors"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Payload is the JSON body posted to the endpoint.
type Payload struct {
	Event     string `json:"event"`
	Module    string `json:"module"`
	Error     string `json:"error,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Notifier posts failure notifications to a configured URL. A Notifier
// with an empty URL is disabled and all methods are no-ops.
type Notifier struct {
	url    string
	client *http.Client
	retry  errors.RetryConfig
	logger *slog.Logger

	handles []struct {
		topic  string
		handle event.Handle
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClient replaces the HTTP client, mainly for tests.
func WithClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// WithRetry overrides the delivery retry policy.
func WithRetry(cfg errors.RetryConfig) Option {
	return func(n *Notifier) { n.retry = cfg }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// New creates a notifier targeting url. An empty url disables delivery.
func New(url string, opts ...Option) *Notifier {
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
		retry:  errors.DefaultRetry,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether the notifier has a destination.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Attach subscribes the notifier to module failure topics on the bus.
func (n *Notifier) Attach(bus *event.Bus) {
	if !n.Enabled() {
		return
	}
	n.subscribe(bus, event.TopicModuleError, func(data any) {
		payload, ok := data.(event.ModuleError)
		if !ok {
			return
		}
		n.Notify(context.Background(), Payload{
			Event:  event.TopicModuleError,
			Module: payload.Name,
			Error:  payload.Error,
			Phase:  payload.Phase,
		})
	})
	n.subscribe(bus, event.TopicModuleReloadFailed, func(data any) {
		payload, ok := data.(event.ModuleReloadFailed)
		if !ok {
			return
		}
		n.Notify(context.Background(), Payload{
			Event:  event.TopicModuleReloadFailed,
			Module: payload.Name,
			Error:  payload.Error,
		})
	})
}

// Detach removes the notifier's bus subscriptions.
func (n *Notifier) Detach(bus *event.Bus) {
	for _, h := range n.handles {
		bus.Unsubscribe(h.topic, h.handle)
	}
	n.handles = nil
}

func (n *Notifier) subscribe(bus *event.Bus, topic string, fn event.Callback) {
	handle := bus.Subscribe(topic, fn)
	n.handles = append(n.handles, struct {
		topic  string
		handle event.Handle
	}{topic, handle})
}

// Notify posts a payload with retries. Delivery failures are logged and
// swallowed; a broken webhook must never disturb module lifecycle.
func (n *Notifier) Notify(ctx context.Context, payload Payload) {
	if !n.Enabled() {
		return
	}
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if payload.Hostname == "" {
		payload.Hostname, _ = os.Hostname()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		if n.logger != nil {
			n.logger.Error("webhook payload marshal failed",
				slog.String("error", err.Error()))
		}
		return
	}

	_, err = errors.WithRetryContext(ctx, n.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.post(ctx, body)
	})
	if err != nil && n.logger != nil {
		n.logger.Error("webhook delivery failed",
			slog.String("url", n.url),
			slog.String("module", payload.Module),
			slog.String("error", err.Error()))
	}
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
