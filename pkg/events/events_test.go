package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicAnimalStatusAppended, AnimalStatusAppended{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestNewPublisherWithoutURL(t *testing.T) {
	pub, err := NewPublisher("")
	if err != nil {
		t.Fatalf("NewPublisher error: %v", err)
	}
	if _, ok := pub.(*NoopPublisher); !ok {
		t.Fatalf("NewPublisher(\"\") = %T, want *NoopPublisher", pub)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := AnimalStatusAppended{AnimalID: "ALEX", Status: "limping", UserRole: "ZOOKEEPER", UserID: "u1"}
	if err := pub.Publish(context.Background(), TopicAnimalStatusAppended, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		if msg.Subject != TopicAnimalStatusAppended {
			t.Errorf("subject = %q, want %q", msg.Subject, TopicAnimalStatusAppended)
		}
		var got AnimalStatusAppended
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.AnimalID != "ALEX" || got.UserID != "u1" {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestSubscriber_Watch(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sub.Watch(ctx, TopicAll, func(m Message) {
			select {
			case received <- m:
			default:
			}
		})
	}()

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	var got Message
wait:
	for {
		select {
		case got = <-received:
			break wait
		case <-tick.C:
			// The subscription may not be registered yet; keep publishing.
			_ = pub.Publish(context.Background(), TopicNotificationCreated, NotificationCreated{ID: "ntf-1"})
			pub.conn.Flush()
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}

	if got.Topic != TopicNotificationCreated {
		t.Errorf("topic = %q, want %q", got.Topic, TopicNotificationCreated)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestNATSPublisher_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicEmergencyTriggered, EmergencyTriggered{}); err == nil {
		t.Fatal("expected error publishing on closed connection")
	}
}
