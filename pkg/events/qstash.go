package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tanpawarit/smart-zoo-assistant/pkg/qstash"
)

// TopicHeader carries the event topic to the webhook destination.
const TopicHeader = "X-Zoo-Topic"

// QStashPublisher forwards events to a webhook destination through QStash.
type QStashPublisher struct {
	client      *qstash.Client
	destination string
}

func NewQStashPublisher(client *qstash.Client, destination string) *QStashPublisher {
	return &QStashPublisher{client: client, destination: destination}
}

func (p *QStashPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := p.client.Publish(ctx, p.destination, data, map[string]string{TopicHeader: topic}); err != nil {
		return fmt.Errorf("forwarding %s: %w", topic, err)
	}
	return nil
}

func (p *QStashPublisher) Close() error {
	return nil
}

// MultiPublisher fans each event out to every publisher.
type MultiPublisher []Publisher

// Fanout drops nil and no-op publishers and returns the simplest equivalent.
func Fanout(pubs ...Publisher) Publisher {
	var out MultiPublisher
	for _, p := range pubs {
		if p == nil {
			continue
		}
		if _, ok := p.(*NoopPublisher); ok {
			continue
		}
		out = append(out, p)
	}
	switch len(out) {
	case 0:
		return &NoopPublisher{}
	case 1:
		return out[0]
	}
	return out
}

func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
