package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	promptx "github.com/tanpawarit/smart-zoo-assistant/agent/prompt"
)

// InitContext starts a fresh conversation for the request and binds the
// caller's credential to the tool set. Duplicate checks use the request time.
func InitContext(in *GraphState, systemPrompt string, bind Binder, deduper *policy.Deduper) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}

	in.History = []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(promptx.FormatQuery(in.Role, in.UserID, in.Query)),
	}
	in.Tools = bind(in.Token)
	if !in.Now.IsZero() {
		now := in.Now
		deduper = deduper.WithClock(func() time.Time { return now })
	}
	in.Guard = deduper.Guard(in.Tools)
	return in, nil
}
