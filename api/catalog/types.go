package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is one of the four staff roles. The set is closed.
type Role string

const (
	RoleCoordinator  Role = "COORDINATOR"
	RoleVeterinarian Role = "VETERINARIAN"
	RoleJanitor      Role = "JANITOR"
	RoleZookeeper    Role = "ZOOKEEPER"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleCoordinator, RoleVeterinarian, RoleJanitor, RoleZookeeper}

var ErrInvalidRole = errors.New("invalid role")

func (r Role) Valid() bool {
	switch r {
	case RoleCoordinator, RoleVeterinarian, RoleJanitor, RoleZookeeper:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// StatusEvent is one entry of an animal's status history.
type StatusEvent struct {
	Time     time.Time `json:"time"`
	Status   string    `json:"status"`
	UserRole Role      `json:"user_role"`
	UserID   string    `json:"user_id"`
}

// Animal is a zoo animal with its status history, newest first.
type Animal struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Species    string        `json:"species"`
	Age        int           `json:"age"`
	LastStatus []StatusEvent `json:"last_status"`
}

// StaffNotification is a message addressed to every member of one role.
type StaffNotification struct {
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	Description     string    `json:"description"`
	DestinationRole Role      `json:"destination_role"`
	NotifierRole    Role      `json:"notifier_role"`
	NotifierID      string    `json:"notifier_id"`
}

// DefaultAnimals is the roster inserted into an empty store.
func DefaultAnimals() []Animal {
	return []Animal{
		{ID: "ALEX", Name: "Alex", Species: "Lion", Age: 4},
		{ID: "KING_JULIEN", Name: "King Julien", Species: "Lemur", Age: 12},
		{ID: "MORT", Name: "Mort", Species: "Mouse lemur", Age: 50},
		{ID: "SKIPPER", Name: "Skipper", Species: "Penguin", Age: 35},
		{ID: "MARTY", Name: "Marty", Species: "Zebra", Age: 10},
		{ID: "GLORIA", Name: "Gloria", Species: "Hippopotamus", Age: 6},
		{ID: "PRIVATE", Name: "Private", Species: "Penguin", Age: 10},
		{ID: "KOWALSKI", Name: "Kowalski", Species: "Lion", Age: 3},
	}
}
