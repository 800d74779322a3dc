package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

// Act executes the pending tool calls in order and appends one observation
// per call. Failures become observations; Act itself only fails on a broken
// state.
func Act(ctx context.Context, in *GraphState, matrix *policy.Matrix) (*GraphState, error) {
	if in == nil || in.Tools == nil || in.Guard == nil {
		return nil, fmt.Errorf("%w: graph state is not initialized", contractx.ErrValidation)
	}

	logger := zerolog.Ctx(ctx)
	for _, req := range in.Pending {
		outcome, observation := execute(ctx, in, matrix, req)
		in.Actions = append(in.Actions, contractx.ActionRecord{
			Turn:        in.Turn,
			Tool:        req.Tool,
			Args:        req.RawArgs,
			Outcome:     outcome,
			Observation: observation,
		})
		in.History = append(in.History, schema.ToolMessage(observation, req.ID))

		logger.Info().
			Int("turn", in.Turn).
			Str("tool", req.Tool).
			Str("outcome", string(outcome)).
			Msg("tool call handled")
	}
	in.Pending = nil
	return in, nil
}

func execute(ctx context.Context, in *GraphState, matrix *policy.Matrix, req contractx.ToolRequest) (contractx.Outcome, string) {
	call, err := tool.ParseCall(req.Tool, req.RawArgs)
	if err != nil {
		return contractx.OutcomeInvalid, "error: " + err.Error()
	}

	switch matrix.Decide(in.Role, call.Name()) {
	case policy.Allowed:
		return dispatch(ctx, in, call)
	case policy.RequiresConfirmation:
		return requestConfirmation(ctx, in, call)
	default:
		return contractx.OutcomeDenied, fmt.Sprintf(
			"denied: role %s is not permitted to use %s. Nothing was done.", in.Role, call.Name())
	}
}

func dispatch(ctx context.Context, in *GraphState, call tool.Call) (contractx.Outcome, string) {
	switch c := call.(type) {
	case *tool.UpdateAnimalStatusArgs:
		m, dup, err := in.Guard.BeforeStatus(ctx, c.AnimalID, c.EventDescription)
		if err != nil {
			return contractx.OutcomeFailed, "error: could not check recent reports: " + err.Error()
		}
		if dup {
			return contractx.OutcomeSuppressedDuplicate, duplicateObservation(m, "The status was not updated")
		}
		out, err := in.Tools.Invoke(ctx, c)
		if err != nil {
			return contractx.OutcomeFailed, "error: " + err.Error()
		}
		in.Guard.RecordAppended(c.AnimalID)
		return contractx.OutcomeExecuted, out

	case *tool.NotifyStaffArgs:
		m, dup, err := in.Guard.BeforeNotify(ctx, c.AnimalID, c.EventDescription)
		if err != nil {
			return contractx.OutcomeFailed, "error: could not check recent reports: " + err.Error()
		}
		if dup {
			return contractx.OutcomeSuppressedDuplicate, duplicateObservation(m, "No notification was sent")
		}
	}

	out, err := in.Tools.Invoke(ctx, call)
	if err != nil {
		return contractx.OutcomeFailed, "error: " + err.Error()
	}
	return contractx.OutcomeExecuted, out
}

// requestConfirmation asks the coordinators to confirm an action the caller
// may not run directly.
func requestConfirmation(ctx context.Context, in *GraphState, call tool.Call) (contractx.Outcome, string) {
	var description string
	switch c := call.(type) {
	case *tool.TriggerEmergencyArgs:
		description = fmt.Sprintf("EMERGENCY PROTOCOL REQUEST %s from %s %s: %s. Please confirm.",
			c.Protocol, in.Role, in.UserID, c.EventDescription)
	default:
		description = fmt.Sprintf("ACTION REQUEST %s from %s %s. Please confirm.", call.Name(), in.Role, in.UserID)
	}

	if err := in.Tools.Notify(ctx, catalog.RoleCoordinator, description); err != nil {
		return contractx.OutcomeFailed, "error: could not request coordinator confirmation: " + err.Error()
	}
	return contractx.OutcomeConfirmationRequested, fmt.Sprintf(
		"pending confirmation: %s was not executed. Role %s needs a COORDINATOR to confirm it; a confirmation request was sent to COORDINATOR.",
		call.Name(), in.Role)
}

func duplicateObservation(m policy.Match, action string) string {
	who := string(m.Event.UserRole)
	if m.Event.UserID != "" {
		who += " " + m.Event.UserID
	}
	return fmt.Sprintf(
		"duplicate: %s (%s) already has this report from %s at %s: %q. %s; the team is already aware.",
		m.AnimalName, m.AnimalID, who, m.Event.Time.UTC().Format(time.RFC3339), m.Event.Status, action)
}
