package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/events"
)

const (
	AnimalsCollection       = "animals"
	NotificationsCollection = "staff_notification"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrEmptyStatus  = errors.New("status is empty")
	ErrInvalidInput = errors.New("invalid input")
)

// AnimalCatalog owns animal records. AppendStatus is the only mutation.
type AnimalCatalog struct {
	col       docstore.Collection
	publisher events.Publisher
}

func NewAnimalCatalog(store docstore.Store, publisher events.Publisher) *AnimalCatalog {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &AnimalCatalog{col: store.Collection(AnimalsCollection), publisher: publisher}
}

// List returns every animal in insertion order.
func (c *AnimalCatalog) List(ctx context.Context) ([]Animal, error) {
	docs, err := c.col.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	animals, err := docstore.DecodeAll[Animal](docs)
	if err != nil {
		return nil, err
	}
	for i := range animals {
		normalize(&animals[i])
	}
	return animals, nil
}

func (c *AnimalCatalog) Get(ctx context.Context, id string) (Animal, error) {
	doc, err := c.col.FindByID(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidID) {
		return Animal{}, fmt.Errorf("%w: animal %q", ErrNotFound, id)
	}
	if err != nil {
		return Animal{}, fmt.Errorf("get animal: %w", err)
	}
	a, err := docstore.Decode[Animal](doc)
	if err != nil {
		return Animal{}, err
	}
	normalize(&a)
	return a, nil
}

// AppendStatus prepends ev to the animal's history. An unknown id leaves the
// store unchanged and returns ErrNotFound.
func (c *AnimalCatalog) AppendStatus(ctx context.Context, animalID string, ev StatusEvent) error {
	if strings.TrimSpace(ev.Status) == "" {
		return ErrEmptyStatus
	}
	if !ev.UserRole.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, ev.UserRole)
	}

	err := c.col.Update(ctx, animalID, func(current json.RawMessage) (json.RawMessage, error) {
		var a Animal
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
		history := make([]StatusEvent, 0, len(a.LastStatus)+1)
		history = append(history, ev)
		a.LastStatus = append(history, a.LastStatus...)
		return json.Marshal(a)
	})
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidID) {
		return fmt.Errorf("%w: animal %q", ErrNotFound, animalID)
	}
	if err != nil {
		return fmt.Errorf("append status: %w", err)
	}

	publish(ctx, c.publisher, events.TopicAnimalStatusAppended, events.AnimalStatusAppended{
		AnimalID: animalID,
		Status:   ev.Status,
		UserRole: string(ev.UserRole),
		UserID:   ev.UserID,
		Time:     ev.Time,
	})
	return nil
}

// Seed inserts the given animals when the collection is empty and reports
// how many were inserted.
func (c *AnimalCatalog) Seed(ctx context.Context, animals []Animal) (int, error) {
	existing, err := c.col.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed animals: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	inserted := 0
	for _, a := range animals {
		normalize(&a)
		data, err := docstore.Encode(a)
		if err != nil {
			return inserted, err
		}
		err = c.col.Insert(ctx, a.ID, data)
		if errors.Is(err, docstore.ErrDuplicate) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("seed %s: %w", a.ID, err)
		}
		inserted++
	}
	return inserted, nil
}

func normalize(a *Animal) {
	if a.LastStatus == nil {
		a.LastStatus = []StatusEvent{}
	}
}

func publish(ctx context.Context, p events.Publisher, topic string, event any) {
	if err := p.Publish(ctx, topic, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}
