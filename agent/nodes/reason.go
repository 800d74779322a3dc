package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
)

const (
	NodeAct     = "act"
	NodeRespond = "respond"
)

func Reason(ctx context.Context, in *GraphState, reasoner contractx.Reasoner) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	d, err := reasoner.Reason(ctx, in.History)
	if err != nil {
		return nil, err
	}
	in.Turn++

	msg := d.Message
	if msg == nil {
		calls := make([]schema.ToolCall, 0, len(d.ToolRequests))
		for _, req := range d.ToolRequests {
			calls = append(calls, schema.ToolCall{
				ID:       req.ID,
				Function: schema.FunctionCall{Name: req.Tool, Arguments: req.RawArgs},
			})
		}
		msg = schema.AssistantMessage(d.Text, calls)
	}
	in.History = append(in.History, msg)
	if d.Text != "" {
		in.LastText = d.Text
	}
	in.Pending = d.ToolRequests

	zerolog.Ctx(ctx).Debug().
		Int("turn", in.Turn).
		Int("tool_calls", len(in.Pending)).
		Msg("assistant turn")
	return in, nil
}

// NextAfterReason picks act while the model asks for tools and turns remain.
func NextAfterReason(in *GraphState, maxTurns int) string {
	if len(in.Pending) == 0 || in.Turn >= maxTurns {
		return NodeRespond
	}
	return NodeAct
}
