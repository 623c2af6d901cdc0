package nodes

import (
	"context"
	"fmt"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// Supervise decides who handles this turn. The authentication gate and the
// interview flag pre-empt classification entirely, so no model call happens
// for them.
func Supervise(ctx context.Context, in *GraphState, supervisor contractx.Supervisor) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	s := in.Session

	if !s.Authenticated {
		s.PendingRoute = contractx.RouteTriage
		return in, nil
	}
	if s.InterviewMode {
		s.PendingRoute = contractx.RouteInterview
		return in, nil
	}

	intent, err := supervisor.Classify(ctx, s.Recent(SupervisorWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeSupervisor, err)
	}

	switch intent {
	case contractx.IntentCurrency:
		s.PendingRoute = contractx.RouteCurrency
	case contractx.IntentCredit:
		s.PendingRoute = contractx.RouteCredit
	case contractx.IntentInterview:
		s.PendingRoute = contractx.RouteInterview
	case contractx.IntentExit:
		s.Reset(in.Now)
		s.PendingRoute = contractx.RouteEnd
	default:
		reply, err := supervisor.Direct(ctx, s.Context(), s.Recent(SupervisorWindow))
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeSupervisor, err)
		}
		s.AppendAssistant(reply)
		s.PendingRoute = contractx.RouteEnd
	}
	return in, nil
}
