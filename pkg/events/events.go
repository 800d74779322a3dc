package events

import (
	"context"
	"time"
)

const (
	TopicAnimalStatusAppended = "zoo.animal.status_appended"
	TopicNotificationCreated  = "zoo.staff.notification_created"
	TopicEmergencyTriggered   = "zoo.emergency.triggered"

	// TopicAll matches every zoo event.
	TopicAll = "zoo.>"
)

type AnimalStatusAppended struct {
	AnimalID string    `json:"animal_id"`
	Status   string    `json:"status"`
	UserRole string    `json:"user_role"`
	UserID   string    `json:"user_id"`
	Time     time.Time `json:"time"`
}

type NotificationCreated struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	DestinationRole string    `json:"destination_role"`
	NotifierRole    string    `json:"notifier_role"`
	NotifierID      string    `json:"notifier_id"`
	Time            time.Time `json:"time"`
}

type EmergencyTriggered struct {
	Protocol    string    `json:"protocol"`
	Description string    `json:"description"`
	TriggeredBy string    `json:"triggered_by"`
	Roles       []string  `json:"roles"`
	Time        time.Time `json:"time"`
}

// Publisher emits domain events after a successful mutation.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
