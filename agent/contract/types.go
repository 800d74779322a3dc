package contract

import "github.com/cloudwego/eino/schema"

// DefaultMaxTurns bounds model invocations per request when no limit is set.
const DefaultMaxTurns = 8

// Decision is one model turn: either final text or tool requests.
type Decision struct {
	Message      *schema.Message `json:"-"`
	Text         string          `json:"text,omitempty"`
	ToolRequests []ToolRequest   `json:"tool_requests,omitempty"`
}

type ToolRequest struct {
	ID      string `json:"id"`
	Tool    string `json:"tool"`
	RawArgs string `json:"raw_args,omitempty"`
}

// Outcome classifies what happened to one requested tool call.
type Outcome string

const (
	OutcomeExecuted              Outcome = "executed"
	OutcomeFailed                Outcome = "failed"
	OutcomeInvalid               Outcome = "invalid"
	OutcomeDenied                Outcome = "denied"
	OutcomeConfirmationRequested Outcome = "confirmation_requested"
	OutcomeSuppressedDuplicate   Outcome = "suppressed_duplicate"
)

// ActionRecord is the audit entry for one tool call of a run.
type ActionRecord struct {
	Turn        int     `json:"turn"`
	Tool        string  `json:"tool"`
	Args        string  `json:"args,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Observation string  `json:"observation"`
}
