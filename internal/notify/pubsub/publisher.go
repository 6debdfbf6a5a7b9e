// Package pubsub publishes match notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

type payload struct {
	Date       string          `json:"date"`
	MatchCount int             `json:"match_count"`
	Matches    []gazette.Match `json:"matches"`
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Notify marshals the notification to JSON and publishes it to the topic.
func (p *Publisher) Notify(ctx context.Context, n gazette.Notification) error {
	_, err := p.Publish(ctx, n)
	return err
}

// Publish sends the notification and returns the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, n gazette.Notification) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	day := n.Date.Format(gazette.DateLayout)
	data, err := json.Marshal(payload{Date: day, MatchCount: len(n.Matches), Matches: n.Matches})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"date":        day,
			"match_count": strconv.Itoa(len(n.Matches)),
			"sent_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
