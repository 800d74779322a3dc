package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	nodex "github.com/tanpawarit/smart-zoo-assistant/agent/nodes"
	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	promptx "github.com/tanpawarit/smart-zoo-assistant/agent/prompt"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

var (
	ErrInvalidQuery      = nodex.ErrInvalidQuery
	ErrInvalidUser       = nodex.ErrInvalidUser
	ErrMissingCredential = nodex.ErrMissingCredential
)

type Config struct {
	MaxTurns int
	Matrix   *policy.Matrix
	Deduper  *policy.Deduper
	// SystemPrompt overrides the prompt rendered from Matrix and Deduper.
	SystemPrompt string
}

type Request struct {
	Query  string
	Role   catalog.Role
	UserID string
	Token  string
}

type Result struct {
	RunID     string
	Reply     string
	Actions   []contractx.ActionRecord
	Turns     int
	Exhausted bool
}

// Orchestrator runs one independent reason/act loop per request. The
// compiled graph is shared and immutable.
type Orchestrator struct {
	reasoner contractx.Reasoner
	bind     nodex.Binder
	matrix   *policy.Matrix
	deduper  *policy.Deduper

	systemPrompt string
	maxTurns     int

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(reasoner contractx.Reasoner, client *tool.Client, cfg Config) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("backend client is required")
	}
	return NewWithBinder(reasoner, func(token string) nodex.Executor { return client.Bind(token) }, cfg)
}

// NewWithBinder is New with a custom way of binding credentials to tools.
func NewWithBinder(reasoner contractx.Reasoner, bind nodex.Binder, cfg Config) (*Orchestrator, error) {
	if reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	if bind == nil {
		return nil, errors.New("tool binder is required")
	}

	matrix := cfg.Matrix
	if matrix == nil {
		matrix = policy.DefaultMatrix()
	}
	deduper := cfg.Deduper
	if deduper == nil {
		deduper = policy.NewDeduper(policy.DefaultDedupWindow, policy.DefaultDedupThreshold)
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = contractx.DefaultMaxTurns
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		rendered, err := promptx.System(matrix, deduper.Window)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrPromptMissing, err)
		}
		systemPrompt = rendered
	}

	o := &Orchestrator{
		reasoner:     reasoner,
		bind:         bind,
		matrix:       matrix,
		deduper:      deduper,
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
		now:          time.Now,
	}

	graphRunner, err := o.compileHandlePromptGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

func (o *Orchestrator) HandlePrompt(ctx context.Context, req Request) (Result, error) {
	runID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().
		Str("run_id", runID).
		Str("role", req.Role.String()).
		Str("user_id", req.UserID).
		Logger()
	ctx = logger.WithContext(ctx)

	start := o.now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		Query:  req.Query,
		Role:   req.Role,
		UserID: req.UserID,
		Token:  req.Token,
	})
	if err != nil {
		logger.Error().Err(err).Msg("orchestration failed")
		return Result{RunID: runID}, err
	}

	ev := logger.Info()
	if out.Exhausted {
		ev = logger.Warn()
	}
	ev.Int("turns", out.Turns).
		Int("actions", len(out.Actions)).
		Bool("exhausted", out.Exhausted).
		Dur("elapsed", o.now().Sub(start)).
		Msg("orchestration finished")

	return Result{
		RunID:     runID,
		Reply:     out.Reply,
		Actions:   out.Actions,
		Turns:     out.Turns,
		Exhausted: out.Exhausted,
	}, nil
}
