package nodes

import (
	"context"
	"fmt"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// Currency answers quote questions through a bounded ReAct loop: the model
// either replies directly or requests fetches, which the tool node executes
// before re-entering this node with the enlarged ledger.
func Currency(ctx context.Context, in *GraphState, currency contractx.Currency) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	s := in.Session

	reply, err := currency.Quote(ctx, s.Recent(CurrencyWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeCurrency, err)
	}

	switch r := reply.(type) {
	case contractx.TextReply:
		s.AppendAssistant(r.Content)
		s.PendingRoute = contractx.RouteEnd
		in.PendingCalls = nil
		return in, nil

	case contractx.ToolCallReply:
		s.AppendMessage(r.Message)
		in.PendingCalls = r.Calls
		s.PendingRoute = contractx.RouteCurrencyTools
		return in, nil

	default:
		return recoverTurn(in, contractx.AgentTypeCurrency, fmt.Errorf("%w: unexpected currency reply %T", contractx.ErrSchemaViolation, reply))
	}
}
