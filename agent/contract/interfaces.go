package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Reasoner produces the next assistant turn from the conversation so far.
type Reasoner interface {
	Reason(ctx context.Context, history []*schema.Message) (Decision, error)
}
