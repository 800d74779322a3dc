package orchestratornode

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

var (
	ErrInvalidQuery      = errors.New("query is empty")
	ErrInvalidUser       = errors.New("user id is empty")
	ErrMissingCredential = errors.New("credential is empty")
)

// Executor runs tool calls for one caller.
type Executor interface {
	policy.AnimalSource
	Invoke(ctx context.Context, call tool.Call) (string, error)
	Notify(ctx context.Context, role catalog.Role, description string) error
}

// Binder returns an Executor acting with the caller's credential.
type Binder func(token string) Executor

type GraphInput struct {
	Query  string
	Role   catalog.Role
	UserID string
	Token  string
}

type GraphOutput struct {
	Reply     string
	Actions   []contractx.ActionRecord
	Turns     int
	Exhausted bool
}

// GraphState is owned by a single run.
type GraphState struct {
	Query  string
	Role   catalog.Role
	UserID string
	Token  string
	Now    time.Time

	Tools Executor
	Guard *policy.Guard

	History  []*schema.Message
	Turn     int
	Pending  []contractx.ToolRequest
	LastText string
	Actions  []contractx.ActionRecord
}
