package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes JSON-encoded zoo events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("smart-zoo"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NewPublisher returns a NATS publisher when url is set, otherwise a no-op.
func NewPublisher(url string) (Publisher, error) {
	if url == "" {
		return &NoopPublisher{}, nil
	}
	return NewNATSPublisher(url)
}

// Message is one event received by a Subscriber.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber streams raw events from NATS subjects.
type Subscriber struct {
	conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	nc, err := nats.Connect(url,
		nats.Name("smart-zoo-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Subscriber{conn: nc}, nil
}

// Watch delivers messages for topic (wildcards allowed) to fn until ctx is done.
func (s *Subscriber) Watch(ctx context.Context, topic string, fn func(Message)) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := s.conn.ChanSubscribe(topic, ch)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("flushing subscription: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			fn(Message{Topic: msg.Subject, Data: msg.Data})
		}
	}
}

func (s *Subscriber) Close() error {
	s.conn.Close()
	return nil
}
