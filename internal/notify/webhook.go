// Package notify hands finished fetch results to an external delivery
// service. Formatting and sending the e-mail happen on the other side.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

// Webhook posts every result to a URL as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. A nil client gets the hardened
// default with a short timeout.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = httputil.NewClient(10 * time.Second)
	}
	return &Webhook{url: url, client: client}
}

type payload struct {
	Event    string          `json:"event"`
	Email    string          `json:"email"`
	Response *media.Response `json:"response"`
	SentAt   time.Time       `json:"sentAt"`
}

// Notify implements service.Notifier.
func (w *Webhook) Notify(ctx context.Context, email string, resp *media.Response) error {
	event := "fetch.completed"
	if resp.Kind == media.Instructions {
		event = "fetch.manual"
	}
	status, body, err := httputil.PostJSON(ctx, w.client, w.url, payload{
		Event:    event,
		Email:    email,
		Response: resp,
		SentAt:   time.Now().UTC(),
	}, nil)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("notification webhook returned status %d: %.200s", status, body)
	}
	return nil
}
