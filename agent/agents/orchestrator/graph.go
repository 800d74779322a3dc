package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/smart-zoo-assistant/agent/nodes"
)

func (o *Orchestrator) compileHandlePromptGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("init_context",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.InitContext(in, o.systemPrompt, o.bind, o.deduper)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node init_context: %w", err)
	}

	if err := graph.AddLambdaNode("reason",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Reason(ctx, in, o.reasoner)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node reason: %w", err)
	}

	if err := graph.AddLambdaNode(nodex.NodeAct,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Act(ctx, in, o.matrix)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node act: %w", err)
	}

	if err := graph.AddLambdaNode(nodex.NodeRespond,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node respond: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "init_context"},
		{"init_context", "reason"},
		{nodex.NodeAct, "reason"},
		{nodex.NodeRespond, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return nodex.NextAfterReason(in, o.maxTurns), nil
		},
		map[string]bool{nodex.NodeAct: true, nodex.NodeRespond: true},
	)
	if err := graph.AddBranch("reason", branch); err != nil {
		return nil, fmt.Errorf("add branch after reason: %w", err)
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.handle_prompt"),
		compose.WithMaxRunSteps(2*o.maxTurns+5),
	)
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
