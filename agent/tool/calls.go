package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

const (
	ToolListAnimals        = "list_animals"
	ToolUpdateAnimalStatus = "update_animal_status"
	ToolNotifyStaff        = "notify_staff"
	ToolTriggerEmergency   = "trigger_emergency_protocol"
)

// Names lists the tool set in a stable order.
var Names = []string{ToolListAnimals, ToolUpdateAnimalStatus, ToolNotifyStaff, ToolTriggerEmergency}

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Call is a decoded tool invocation. The set of implementations is closed.
type Call interface {
	Name() string
	validate() error
}

type ListAnimalsArgs struct {
	EventContext string `json:"event_context"`
}

type UpdateAnimalStatusArgs struct {
	AnimalID         string `json:"animal_id"`
	EventDescription string `json:"event_description"`
}

type NotifyStaffArgs struct {
	EventDescription string       `json:"event_description"`
	StaffRole        catalog.Role `json:"staff_role"`
	AnimalID         string       `json:"animal_id,omitempty"`
}

type TriggerEmergencyArgs struct {
	Protocol         string `json:"protocol"`
	EventDescription string `json:"event_description"`
}

func (ListAnimalsArgs) Name() string        { return ToolListAnimals }
func (UpdateAnimalStatusArgs) Name() string { return ToolUpdateAnimalStatus }
func (NotifyStaffArgs) Name() string        { return ToolNotifyStaff }
func (TriggerEmergencyArgs) Name() string   { return ToolTriggerEmergency }

func (a *ListAnimalsArgs) validate() error {
	a.EventContext = strings.TrimSpace(a.EventContext)
	return nil
}

func (a *UpdateAnimalStatusArgs) validate() error {
	a.AnimalID = strings.TrimSpace(a.AnimalID)
	a.EventDescription = strings.TrimSpace(a.EventDescription)
	if a.AnimalID == "" {
		return fmt.Errorf("%w: animal_id is required", ErrInvalidArguments)
	}
	if a.EventDescription == "" {
		return fmt.Errorf("%w: event_description is required", ErrInvalidArguments)
	}
	return nil
}

func (a *NotifyStaffArgs) validate() error {
	a.EventDescription = strings.TrimSpace(a.EventDescription)
	a.AnimalID = strings.TrimSpace(a.AnimalID)
	if a.EventDescription == "" {
		return fmt.Errorf("%w: event_description is required", ErrInvalidArguments)
	}
	role, err := catalog.ParseRole(string(a.StaffRole))
	if err != nil {
		return fmt.Errorf("%w: staff_role: %v", ErrInvalidArguments, err)
	}
	a.StaffRole = role
	return nil
}

func (a *TriggerEmergencyArgs) validate() error {
	a.Protocol = strings.TrimSpace(a.Protocol)
	a.EventDescription = strings.TrimSpace(a.EventDescription)
	if a.Protocol == "" {
		return fmt.Errorf("%w: protocol is required", ErrInvalidArguments)
	}
	if a.EventDescription == "" {
		return fmt.Errorf("%w: event_description is required", ErrInvalidArguments)
	}
	return nil
}

// ParseCall decodes the raw JSON arguments of a model tool call into its
// typed variant and validates the required fields.
func ParseCall(name, rawArgs string) (Call, error) {
	var call Call
	switch strings.TrimSpace(name) {
	case ToolListAnimals:
		call = &ListAnimalsArgs{}
	case ToolUpdateAnimalStatus:
		call = &UpdateAnimalStatusArgs{}
	case ToolNotifyStaff:
		call = &NotifyStaffArgs{}
	case ToolTriggerEmergency:
		call = &TriggerEmergencyArgs{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	raw := strings.TrimSpace(rawArgs)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), call); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if err := call.validate(); err != nil {
		return nil, err
	}
	return call, nil
}
