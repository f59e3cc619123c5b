package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gapsniper-go/internal/signal"
)

// DefaultTextTemplate is the buy command understood by the downstream agent.
const DefaultTextTemplate = "اشتري %s"

// WebhookEmitter POSTs {"text": <command>} to the agent's webhook.
type WebhookEmitter struct {
	URL      string
	Template string
	Http     *http.Client
}

// NewWebhookEmitter builds a webhook emitter; an empty template falls back to DefaultTextTemplate.
func NewWebhookEmitter(url, template string, timeout time.Duration) *WebhookEmitter {
	if template == "" {
		template = DefaultTextTemplate
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookEmitter{
		URL:      url,
		Template: template,
		Http:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the emitter in logs.
func (w *WebhookEmitter) Name() string { return "webhook" }

// Emit sends the command. A non-2xx answer is a non-acceptance, not an error; transport faults are errors.
func (w *WebhookEmitter) Emit(ctx context.Context, base string) (signal.Outcome, error) {
	body, err := json.Marshal(map[string]string{"text": renderText(w.Template, base)})
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gapsniper-go/1.0 (signal)")

	resp, err := w.Http.Do(req)
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))

	detail := fmt.Sprintf("status=%d resp=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	return signal.Outcome{
		Accepted: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Detail:   detail,
	}, nil
}

func renderText(template, base string) string {
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, base)
	}
	return template + " " + base
}
