package nodes

import (
	"context"
	"fmt"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// ExecuteTools runs the calls the previous agent invocation requested,
// appends their results to the ledger, and hands control back to that agent.
// Exceeding the per-turn loop bound is a recoverable failure, not a crash.
func ExecuteTools(
	ctx context.Context,
	in *GraphState,
	tools contractx.ToolGateway,
	agentType contractx.AgentType,
	returnRoute contractx.Route,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	if len(in.PendingCalls) == 0 {
		return nil, fmt.Errorf("%w: tool node entered with no pending calls", contractx.ErrValidation)
	}

	in.ToolLoops++
	if in.ToolLoops > MaxToolLoopsPerTurn {
		err := fmt.Errorf("%w: agent=%s exceeded %d tool rounds", contractx.ErrLoopBound, agentType, MaxToolLoopsPerTurn)
		return recoverTurn(in, agentType, err)
	}

	results, err := tools.Execute(ctx, agentType, in.PendingCalls)
	if err != nil {
		return recoverTurn(in, agentType, err)
	}
	for _, res := range results {
		if err := in.Session.AppendToolResult(res); err != nil {
			return nil, err
		}
	}

	in.PendingCalls = nil
	in.Session.PendingRoute = returnRoute
	return in, nil
}
