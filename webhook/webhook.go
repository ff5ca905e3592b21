// Package webhook forwards newly discovered products to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"livewatcher.com/models"
)

const EventProductNew = "product.new"

type Payload struct {
	EventID string             `json:"event_id"`
	Type    string             `json:"type"`
	Product models.Product     `json:"product"`
	Room    models.RoomContext `json:"room"`
	SentAt  time.Time          `json:"sent_at"`
}

type Result struct {
	SuccessCount int
	FailedCount  int
}

type Client struct {
	URL        string
	Attempts   int
	Backoff    time.Duration
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

func NewClient(url string, attempts int, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		URL:        url,
		Attempts:   attempts,
		Backoff:    time.Second,
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        log,
	}
}

var errPermanent = errors.New("permanent webhook failure")

// Send delivers each product in its own request. A product counts as sent
// once the endpoint answers with a 2xx status.
func (c *Client) Send(ctx context.Context, products []models.Product, room models.RoomContext) Result {
	var res Result
	if c.URL == "" {
		return res
	}

	for _, p := range products {
		payload := Payload{
			EventID: ulid.Make().String(),
			Type:    EventProductNew,
			Product: p,
			Room:    room,
			SentAt:  time.Now().UTC(),
		}
		if err := c.deliver(ctx, payload); err != nil {
			res.FailedCount++
			c.Log.WithFields(logrus.Fields{
				"room_id":  room.RoomID,
				"event_id": payload.EventID,
			}).WithError(err).Warnf("could not deliver webhook for %q", p.Title)
			continue
		}
		res.SuccessCount++
	}
	return res
}

func (c *Client) deliver(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal payload: %w", err)
	}

	attempts := max(c.Attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.post(ctx, payload.EventID, body)
		if lastErr == nil || errors.Is(lastErr, errPermanent) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (c *Client) post(ctx context.Context, eventID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", eventID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook answered %s", resp.Status)
	default:
		return fmt.Errorf("%w: webhook answered %s", errPermanent, resp.Status)
	}
}
