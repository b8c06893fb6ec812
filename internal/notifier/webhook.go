// Package notifier posts operator alerts to a Discord-compatible webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

const (
	colorDegraded  = 16711680 // #FF0000
	colorRecovered = 3066993  // #2ECC71

	sendTimeout = 10 * time.Second
)

// Alert describes one health mode transition of a source.
type Alert struct {
	Source string
	From   models.HealthMode
	To     models.HealthMode
	State  models.HealthState
	At     time.Time
}

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	pending     sync.WaitGroup
}

// New returns a client; an empty webhookURL makes every call a no-op.
func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
		// Discord allows roughly 30 webhook posts per minute.
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// Notify posts a single alert and waits for the webhook to accept it.
func (c *Client) Notify(ctx context.Context, a Alert) error {
	if c.webhookURL == "" {
		return nil
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	payload, err := json.Marshal(webhookPayload{Embeds: []embed{formatAlert(a)}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("webhook status: %s, body: %s", resp.Status, string(body))
}

// HealthChanged sends the alert in the background so a fetch run never waits
// on the webhook. Failures are logged.
func (c *Client) HealthChanged(source string, from, to models.HealthMode, state models.HealthState) {
	if c.webhookURL == "" {
		return
	}
	a := Alert{Source: source, From: from, To: to, State: state, At: time.Now()}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := c.Notify(ctx, a); err != nil {
			slog.Warn("Failed to send health alert", "source", source, "to", to, "error", err)
		}
	}()
}

// Wait blocks until background alerts have been sent or have failed.
func (c *Client) Wait() {
	c.pending.Wait()
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

func formatAlert(a Alert) embed {
	e := embed{
		Title:     fmt.Sprintf("%s: %s → %s", a.Source, a.From, a.To),
		Timestamp: a.At.UTC().Format(time.RFC3339),
	}
	if a.To == models.ModeDegraded {
		e.Color = colorDegraded
		e.Description = "API fetches paused, running HTML only."
		e.Fields = append(e.Fields, embedField{
			Name: "Consecutive failures", Value: fmt.Sprint(a.State.ConsecutiveFailures), Inline: true,
		})
		if a.State.DegradedUntil != nil {
			e.Fields = append(e.Fields, embedField{
				Name: "Retry after", Value: a.State.DegradedUntil.UTC().Format(time.RFC3339), Inline: true,
			})
		}
		return e
	}
	e.Color = colorRecovered
	e.Description = "Source recovered."
	return e
}
