package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"organigramm/internal/config"
	"organigramm/internal/domain"
	"organigramm/internal/engine"
)

const (
	defaultWebhookInterval = time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher polls the event log and posts new events to the webhooks
// configured per practice. Events written before the dispatcher first sees a
// webhook are not delivered. A failed delivery is retried on the next tick.
type WebhookDispatcher struct {
	Engine   engine.Engine
	Logger   *zap.Logger
	Interval time.Duration
	Client   *http.Client

	mu      sync.Mutex
	cursors map[string]int64
}

func NewWebhookDispatcher(e engine.Engine, log *zap.Logger) *WebhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookDispatcher{
		Engine:   e,
		Logger:   log,
		Interval: defaultWebhookInterval,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[string]int64),
	}
}

// Run dispatches until ctx is cancelled.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchAll makes one delivery pass over every practice.
func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	practices, err := d.Engine.ListPractices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.Logger.Warn("webhook: list practices failed", zap.Error(err))
		}
		return
	}
	for _, p := range practices {
		cfg, err := d.Engine.PracticeConfig(ctx, p.ID)
		if err != nil {
			d.Logger.Warn("webhook: load config failed", zap.String("practice_id", p.ID), zap.Error(err))
			continue
		}
		for i, hook := range cfg.Webhooks {
			if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.dispatchWebhook(ctx, p.ID, i, hook)
		}
	}
}

func cursorKey(practiceID string, idx int, hook config.Webhook) string {
	return fmt.Sprintf("%s|%d|%s", practiceID, idx, hook.URL)
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, practiceID string, idx int, hook config.Webhook) {
	key := cursorKey(practiceID, idx, hook)
	cursor, err := d.cursorFor(ctx, key, practiceID)
	if err != nil {
		d.Logger.Warn("webhook: init cursor failed", zap.String("practice_id", practiceID), zap.Error(err))
		return
	}
	events, err := d.Engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor, practiceID)
	if err != nil {
		d.Logger.Warn("webhook: fetch events failed", zap.String("practice_id", practiceID), zap.Error(err))
		return
	}
	for _, evt := range events {
		if !hook.Wants(evt.Type) {
			d.setCursor(key, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, practiceID, hook, evt); err != nil {
			d.Logger.Warn("webhook: delivery failed",
				zap.String("practice_id", practiceID),
				zap.String("url", hook.URL),
				zap.Int64("event_id", evt.ID),
				zap.Error(err))
			return
		}
		d.setCursor(key, evt.ID)
	}
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, key, practiceID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[key]; ok {
		return cur, nil
	}
	cur, err := d.Engine.Repo.LatestEventID(ctx, practiceID)
	if err != nil {
		return 0, err
	}
	d.cursors[key] = cur
	return cur, nil
}

func (d *WebhookDispatcher) setCursor(key string, value int64) {
	d.mu.Lock()
	d.cursors[key] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	PracticeID string          `json:"practice_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, practiceID string, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		PracticeID: practiceID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organigramm-Event", evt.Type)
	req.Header.Set("X-Organigramm-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Organigramm-Practice", practiceID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Organigramm-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
