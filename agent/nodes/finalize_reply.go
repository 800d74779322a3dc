package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
)

// FinalizeReply returns the model's last text. Calls still pending here mean
// the turn budget ran out.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	exhausted := len(in.Pending) > 0
	reply := strings.TrimSpace(in.LastText)
	if reply == "" {
		reply = summarizeActions(in.Actions, exhausted)
	}

	return GraphOutput{
		Reply:     reply,
		Actions:   in.Actions,
		Turns:     in.Turn,
		Exhausted: exhausted,
	}, nil
}

func summarizeActions(actions []contractx.ActionRecord, exhausted bool) string {
	var b strings.Builder
	if exhausted {
		b.WriteString("I could not finish handling the request within the allowed steps.")
	} else {
		b.WriteString("The request was handled.")
	}
	if len(actions) == 0 {
		b.WriteString(" No actions were performed.")
		return b.String()
	}
	b.WriteString(" Actions performed:")
	for _, a := range actions {
		fmt.Fprintf(&b, " %s (%s);", a.Tool, a.Outcome)
	}
	return strings.TrimSuffix(b.String(), ";") + "."
}
