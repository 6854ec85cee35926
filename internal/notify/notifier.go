// Package notify posts best-effort entitlement lifecycle alerts to an
// operational Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event classifies an entitlement lifecycle transition.
type Event string

const (
	EventCreated Event = "created"
	EventUpdated Event = "updated"
	EventDeleted Event = "deleted"
)

// Notifier delivers entitlement lifecycle alerts. Delivery is telemetry,
// never part of the correctness contract; callers discard errors.
type Notifier interface {
	EntitlementEvent(ctx context.Context, event Event, entitlement entitlementdomain.Entitlement) error
}

// NoOpNotifier drops everything; used when no webhook URL is configured.
type NoOpNotifier struct{}

func (NoOpNotifier) EntitlementEvent(ctx context.Context, event Event, entitlement entitlementdomain.Entitlement) error {
	return nil
}

type webhookNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func Provide(cfg config.Config, log *zap.Logger) Notifier {
	if cfg.EntitlementWebhookURL == "" {
		return NoOpNotifier{}
	}
	return &webhookNotifier{
		url:    cfg.EntitlementWebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("notify"),
	}
}

var Module = fx.Module("notify",
	fx.Provide(Provide),
)

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

var eventColors = map[Event]int{
	EventCreated: 0x2ECC71,
	EventUpdated: 0xE67E22,
	EventDeleted: 0xE74C3C,
}

func (n *webhookNotifier) EntitlementEvent(ctx context.Context, event Event, entitlement entitlementdomain.Entitlement) error {
	title := fmt.Sprintf("Entitlement %s", event)
	if entitlement.IsTest() {
		title += " (test)"
	}

	fields := []embedField{
		{Name: "SKU", Value: entitlement.SKUID, Inline: true},
		{Name: "Type", Value: entitlement.Type.Label(), Inline: true},
		{Name: "User", Value: orNone(entitlement.UserID), Inline: true},
		{Name: "Guild", Value: orNone(entitlement.GuildID), Inline: true},
		{Name: "Starts", Value: orNever(entitlement.StartsAt), Inline: true},
		{Name: "Ends", Value: orNever(entitlement.EndsAt), Inline: true},
	}

	payload := webhookPayload{
		Content: fmt.Sprintf("Entitlement %s for SKU %s", event, entitlement.SKUID),
		Embeds: []embed{{
			Title:     title,
			Color:     eventColors[event],
			Fields:    fields,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Debug("notification send failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		n.log.Debug("notification rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

func orNone(v *string) string {
	if v == nil || *v == "" {
		return "none"
	}
	return *v
}

func orNever(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
