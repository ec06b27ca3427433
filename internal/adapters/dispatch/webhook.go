package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// WebhookDispatcher posts sends to provider gateway URLs. Status 2xx is
// success, 4xx is permanent (bad address, opted-out recipient), and
// everything else is transient so the job layer retries it.
type WebhookDispatcher struct {
	client   *http.Client
	smsURL   string
	emailURL string
	voiceURL string
}

func NewWebhookDispatcher(smsURL, emailURL, voiceURL string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookDispatcher{
		client:   &http.Client{Timeout: timeout},
		smsURL:   smsURL,
		emailURL: emailURL,
		voiceURL: voiceURL,
	}
}

func (d *WebhookDispatcher) SendSMS(ctx context.Context, workspaceID, to, body string) domain.DispatchResult {
	return d.post(ctx, d.smsURL, map[string]string{
		"workspace_id": workspaceID,
		"to":           to,
		"body":         body,
	})
}

func (d *WebhookDispatcher) SendEmail(ctx context.Context, workspaceID, to, subject, body string) domain.DispatchResult {
	return d.post(ctx, d.emailURL, map[string]string{
		"workspace_id": workspaceID,
		"to":           to,
		"subject":      subject,
		"body":         body,
	})
}

func (d *WebhookDispatcher) SendVoice(ctx context.Context, workspaceID, to, script string) domain.DispatchResult {
	return d.post(ctx, d.voiceURL, map[string]string{
		"workspace_id": workspaceID,
		"to":           to,
		"script":       script,
	})
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, payload map[string]string) domain.DispatchResult {
	if url == "" {
		return domain.DispatchResult{Success: false, Error: "channel not configured", Permanent: true}
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return domain.DispatchResult{Success: false, Error: err.Error(), Permanent: true}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return domain.DispatchResult{Success: false, Error: err.Error(), Permanent: true}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.DispatchResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.DispatchResult{Success: true}
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return domain.DispatchResult{
			Success:   false,
			Error:     fmt.Sprintf("provider rejected send: %s", resp.Status),
			Permanent: true,
		}
	default:
		return domain.DispatchResult{Success: false, Error: fmt.Sprintf("provider error: %s", resp.Status)}
	}
}
