package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nftmarket/marketd/internal/core/ports"
)

const (
	serviceName = "marketd"

	maxRetries = 5
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl    string
	httpClient *http.Client
	baseDelay  time.Duration
}

func NewService(alertManagerURL string) ports.Alerts {
	return &service{
		baseUrl: alertManagerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseDelay: 100 * time.Millisecond,
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  "info",
	}

	desc := ""
	annotations := map[string]string{}
	switch topic {
	case ports.PayoutFailed:
		annotations["firing_title"] = "⚠️ Payout Failed"
		m, ok := message.(ports.PayoutFailedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatPayoutFailedAlert(m)
		labels["severity"] = "warning"
		labels["recipient"] = m.Recipient
		if m.AssetId > 0 {
			labels["asset_id"] = fmt.Sprintf("%d", m.AssetId)
		}
	case ports.FeesWithdrawn:
		annotations["firing_title"] = "💰 Fees Withdrawn"
		m, ok := message.(ports.FeesWithdrawnAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatFeesWithdrawnAlert(m)
		labels["recipient"] = m.Recipient
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal([]Alert{alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseUrl, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries-1 {
				if err := s.backoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		// Client errors are final.
		if resp.StatusCode >= 500 && attempt < maxRetries-1 {
			if err := s.backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

// backoff waits 100ms, 200ms, 400ms... with the default base delay.
func (s *service) backoff(ctx context.Context, attempt int) error {
	delay := s.baseDelay * time.Duration(1<<uint(attempt))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatPayoutFailedAlert(data ports.PayoutFailedAlert) string {
	lines := make([]string, 0)
	if data.AssetId > 0 {
		lines = append(lines, fmt.Sprintf("*Asset:* `%d`", data.AssetId))
	}
	lines = append(lines, fmt.Sprintf("*Recipient:* `%s`", data.Recipient))
	lines = append(lines, fmt.Sprintf("• Amount: %d", data.Amount))
	lines = append(lines, fmt.Sprintf("• Reason: %s", data.Reason))
	return strings.Join(lines, "\n")
}

func formatFeesWithdrawnAlert(data ports.FeesWithdrawnAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Recipient:* `%s`", data.Recipient))
	lines = append(lines, fmt.Sprintf("• Amount: %d", data.Amount))
	lines = append(lines, "\n*Treasury:*")
	lines = append(lines, fmt.Sprintf("• Collected: %d", data.TotalCollected))
	lines = append(lines, fmt.Sprintf("• Withdrawn: %d", data.TotalWithdrawn))
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, data[key]))
	}
	return strings.Join(lines, "\n")
}
