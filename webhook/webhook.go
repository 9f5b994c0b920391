// Package webhook delivers batch lifecycle events to caller-supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event is the payload posted to a webhook URL.
type Event struct {
	Type      string `json:"type"` // "batch.completed"
	BatchID   string `json:"batch_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier posts signed events over HTTP. Deliveries are retried a few times
// with a flat backoff; a webhook that stays down is logged and dropped, it
// never blocks or fails the batch itself.
type Notifier struct {
	client  *http.Client
	secret  string
	retries int
	backoff time.Duration
}

// New creates a Notifier. secret may be empty, which disables signing.
func New(secret string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		secret:  secret,
		retries: 3,
		backoff: 2 * time.Second,
	}
}

// Send delivers one event to url.
func (n *Notifier) Send(ctx context.Context, url string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff):
			}
		}

		if err := n.post(ctx, url, payload); err != nil {
			lastErr = err
			slog.Warn("webhook delivery failed",
				"url", url, "attempt", attempt, "error", err)
			continue
		}
		slog.Info("webhook delivered", "url", url, "type", evt.Type, "batch_id", evt.BatchID)
		return nil
	}
	return fmt.Errorf("webhook: delivery failed after %d attempts: %w", n.retries, lastErr)
}

func (n *Notifier) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Npiharvest-Signature", n.sign(payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// sign computes the hex HMAC-SHA256 of the payload.
func (n *Notifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(n.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
