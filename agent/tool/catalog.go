package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

const (
	ResultEventAdded         = "event added"
	ResultNotificationSent   = "notification sent"
	ResultEmergencyTriggered = "emergency protocol triggered"
)

// Infos describes the tool set to the model.
func Infos() []*schema.ToolInfo {
	roles := make([]string, 0, len(catalog.Roles))
	for _, r := range catalog.Roles {
		roles = append(roles, r.String())
	}

	return []*schema.ToolInfo{
		{
			Name: ToolListAnimals,
			Desc: "Get the list of all animals with their IDs, species, age and recent status history (newest first).",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"event_context": {Type: schema.String, Desc: "Short note on why the list is needed", Required: true},
			}),
		},
		{
			Name: ToolUpdateAnimalStatus,
			Desc: "Add an event to an animal's status history.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"animal_id":         {Type: schema.String, Desc: "ID of the animal to update", Required: true},
				"event_description": {Type: schema.String, Desc: "Clear and concise description of the event", Required: true},
			}),
		},
		{
			Name: ToolNotifyStaff,
			Desc: "Notify a staff group about an event at the zoo.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"event_description": {Type: schema.String, Desc: "Event to notify staff about, including animal name and location", Required: true},
				"staff_role":        {Type: schema.String, Desc: "Role of the staff to notify", Required: true, Enum: roles},
				"animal_id":         {Type: schema.String, Desc: "ID of the animal the event is about, when there is one"},
			}),
		},
		{
			Name: ToolTriggerEmergency,
			Desc: "Trigger a zoo emergency protocol. Every staff role is notified.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"protocol":          {Type: schema.String, Desc: "Name of the emergency protocol, e.g. ESCAPE or FIRE", Required: true},
				"event_description": {Type: schema.String, Desc: "What happened and where", Required: true},
			}),
		},
	}
}

// Toolset executes tool calls against the backend with one bound credential.
type Toolset struct {
	client *Client
	token  string
}

func (t *Toolset) ListAnimals(ctx context.Context) ([]catalog.Animal, error) {
	return t.client.ListAnimals(ctx, t.token)
}

func (t *Toolset) Notify(ctx context.Context, role catalog.Role, description string) error {
	return t.client.Notify(ctx, t.token, role, description)
}

// Invoke runs one call and returns the observation handed back to the model.
func (t *Toolset) Invoke(ctx context.Context, call Call) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("tool", call.Name()).Logger()

	switch c := call.(type) {
	case *ListAnimalsArgs:
		logger.Info().Str("event_context", c.EventContext).Msg("list animals")
		animals, err := t.ListAnimals(ctx)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(animals)
		if err != nil {
			return "", fmt.Errorf("marshal animals: %w", err)
		}
		return string(raw), nil

	case *UpdateAnimalStatusArgs:
		logger.Info().Str("animal_id", c.AnimalID).Str("event", c.EventDescription).Msg("add animal event")
		if err := t.client.AppendStatus(ctx, t.token, c.AnimalID, c.EventDescription); err != nil {
			return "", err
		}
		return ResultEventAdded, nil

	case *NotifyStaffArgs:
		logger.Info().Str("staff_role", c.StaffRole.String()).Str("event", c.EventDescription).Msg("notify staff")
		if err := t.Notify(ctx, c.StaffRole, c.EventDescription); err != nil {
			return "", err
		}
		return ResultNotificationSent, nil

	case *TriggerEmergencyArgs:
		logger.Warn().Str("protocol", c.Protocol).Str("event", c.EventDescription).Msg("trigger emergency protocol")
		if err := t.client.TriggerEmergency(ctx, t.token, c.Protocol, c.EventDescription); err != nil {
			return "", err
		}
		return ResultEmergencyTriggered, nil

	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownTool, call)
	}
}
