package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/connector"
)

// ErrNoWebhook is returned by DiscordSender when no webhook URL is set.
var ErrNoWebhook = errors.New("alert webhook URL not configured")

// Sender delivers one payload. A failed delivery is reported as a
// *DeliveryError.
type Sender interface {
	Send(ctx context.Context, payload DiscordPayload) error
}

// DeliveryError reports an alert payload the webhook did not accept.
type DeliveryError struct {
	// Sources are the sync sources whose runs the payload carried.
	Sources []string
	// StatusCode is 0 when no response was received.
	StatusCode int
	// Message is Discord's error message, if the body carried one.
	Message string
	// RetryAfter is the wait Discord asked for on 429.
	RetryAfter time.Duration
	// Permanent is set when retrying cannot succeed, e.g. the webhook was
	// deleted or its token revoked.
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deliver alert for %s", strings.Join(e.Sources, ","))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DiscordSender posts payloads to a Discord webhook.
type DiscordSender struct {
	webhookURL config.Secret
	client     *http.Client
}

// SenderOption configures a DiscordSender.
type SenderOption func(*DiscordSender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *DiscordSender) { s.client = client }
}

// NewDiscordSender creates a sender for webhookURL. The URL embeds the
// webhook token, so it never appears in errors.
func NewDiscordSender(webhookURL config.Secret, opts ...SenderOption) *DiscordSender {
	s := &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements Sender.
func (s *DiscordSender) Send(ctx context.Context, payload DiscordPayload) error {
	fail := func(err error) error {
		return &DeliveryError{Sources: payload.Sources, Permanent: true, Err: err}
	}
	if s.webhookURL.IsEmpty() {
		return fail(ErrNoWebhook)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fail(fmt.Errorf("encode payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL.Value(), bytes.NewReader(body))
	if err != nil {
		return fail(errors.New("invalid webhook URL"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Drop the *url.Error wrapper, it quotes the webhook URL.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return &DeliveryError{Sources: payload.Sources, Err: err}
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyResponse(payload.Sources, resp.StatusCode, resp.Header, reply)
}

// discordError is the JSON body Discord returns with 4xx responses.
type discordError struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

// classifyResponse maps a webhook response to nil or a *DeliveryError.
func classifyResponse(sources []string, status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	derr := &DeliveryError{Sources: sources, StatusCode: status}
	var reply discordError
	if json.Unmarshal(body, &reply) == nil {
		derr.Message = reply.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		derr.RetryAfter = connector.ParseRetryAfter(header.Get("Retry-After"), time.Now())
		if derr.RetryAfter == 0 && reply.RetryAfter > 0 {
			derr.RetryAfter = time.Duration(reply.RetryAfter * float64(time.Second))
		}
	case status >= 400 && status < 500:
		derr.Permanent = true
	}
	return derr
}
