package finalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Closer is told once a day has been closed so the host can end every
// cashier session.
type Closer interface {
	SignalDayClosed(ctx context.Context, storeID, day string) error
}

type NoopCloser struct{}

func (NoopCloser) SignalDayClosed(context.Context, string, string) error {
	return nil
}

// WebhookCloser posts the closure to a URL, typically the session service
// that performs the forced logout.
type WebhookCloser struct {
	url    string
	client *http.Client
}

func NewWebhookCloser(url string) *WebhookCloser {
	return &WebhookCloser{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

type dayClosedPayload struct {
	Event   string `json:"event"`
	StoreID string `json:"store_id"`
	Day     string `json:"day"`
}

func (w *WebhookCloser) SignalDayClosed(ctx context.Context, storeID, day string) error {
	body, err := json.Marshal(dayClosedPayload{Event: "day_closed", StoreID: storeID, Day: day})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tillclose-finalize/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("logout webhook returned status %d", resp.StatusCode)
}
