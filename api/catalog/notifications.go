package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/events"
	"github.com/tanpawarit/smart-zoo-assistant/pkg/idgen"
)

// NotificationCatalog is an append-only log of staff notifications.
type NotificationCatalog struct {
	col       docstore.Collection
	publisher events.Publisher
	now       func() time.Time
}

func NewNotificationCatalog(store docstore.Store, publisher events.Publisher) *NotificationCatalog {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &NotificationCatalog{
		col:       store.Collection(NotificationsCollection),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record appends n. A missing id or time is filled in.
func (c *NotificationCatalog) Record(ctx context.Context, n StaffNotification) (StaffNotification, error) {
	if strings.TrimSpace(n.Description) == "" {
		return StaffNotification{}, fmt.Errorf("%w: description is empty", ErrInvalidInput)
	}
	if !n.DestinationRole.Valid() {
		return StaffNotification{}, fmt.Errorf("%w: %q", ErrInvalidRole, n.DestinationRole)
	}
	if n.ID == "" {
		id, err := idgen.Notification()
		if err != nil {
			return StaffNotification{}, err
		}
		n.ID = id
	}
	if n.Time.IsZero() {
		n.Time = c.now()
	}

	data, err := docstore.Encode(n)
	if err != nil {
		return StaffNotification{}, err
	}
	if err := c.col.Insert(ctx, n.ID, data); err != nil {
		return StaffNotification{}, fmt.Errorf("record notification: %w", err)
	}

	publish(ctx, c.publisher, events.TopicNotificationCreated, events.NotificationCreated{
		ID:              n.ID,
		Description:     n.Description,
		DestinationRole: string(n.DestinationRole),
		NotifierRole:    string(n.NotifierRole),
		NotifierID:      n.NotifierID,
		Time:            n.Time,
	})
	return n, nil
}

// ForRole returns the notifications addressed to role, oldest first.
func (c *NotificationCatalog) ForRole(ctx context.Context, role Role) ([]StaffNotification, error) {
	docs, err := c.col.FindByField(ctx, "destination_role", string(role))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return docstore.DecodeAll[StaffNotification](docs)
}

// Broadcast records the same emergency notice for every role.
func (c *NotificationCatalog) Broadcast(ctx context.Context, protocol, description string, notifierRole Role, notifierID string) ([]StaffNotification, error) {
	if strings.TrimSpace(protocol) == "" {
		return nil, fmt.Errorf("%w: protocol is empty", ErrInvalidInput)
	}
	text := fmt.Sprintf("EMERGENCY PROTOCOL %s: %s", strings.TrimSpace(protocol), strings.TrimSpace(description))
	now := c.now()

	sent := make([]StaffNotification, 0, len(Roles))
	for _, role := range Roles {
		n, err := c.Record(ctx, StaffNotification{
			Time:            now,
			Description:     text,
			DestinationRole: role,
			NotifierRole:    notifierRole,
			NotifierID:      notifierID,
		})
		if err != nil {
			return sent, err
		}
		sent = append(sent, n)
	}

	roles := make([]string, 0, len(Roles))
	for _, r := range Roles {
		roles = append(roles, string(r))
	}
	publish(ctx, c.publisher, events.TopicEmergencyTriggered, events.EmergencyTriggered{
		Protocol:    protocol,
		Description: description,
		TriggeredBy: notifierID,
		Roles:       roles,
		Time:        now,
	})
	return sent, nil
}
