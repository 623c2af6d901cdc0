package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// Credit handles limit and score conversations. When the previous step left a
// definitive limit decision in the ledger, the node produces the purely
// conversational follow-up; otherwise it lets the model consult or change the
// limit through its tools.
func Credit(ctx context.Context, in *GraphState, credit contractx.Credit, bank contractx.Bank) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	s := in.Session

	if tool, content, ok := s.LastToolResult(); ok && tool == contractx.ToolProcessLimitIncrease {
		var decision contractx.LimitDecision
		if err := json.Unmarshal([]byte(content), &decision); err != nil {
			return recoverTurn(in, contractx.AgentTypeCredit, fmt.Errorf("%w: decode limit decision: %v", contractx.ErrSchemaViolation, err))
		}
		if decision.Status == contractx.StatusApproved || decision.Status == contractx.StatusRejected {
			rejected := decision.Status == contractx.StatusRejected
			reply, err := credit.Outcome(ctx, rejected, s.Recent(CreditWindow))
			if err != nil {
				return recoverTurn(in, contractx.AgentTypeCredit, err)
			}
			s.AppendAssistant(reply)
			s.PendingRoute = contractx.RouteEnd
			in.PendingCalls = nil
			return in, nil
		}
	}

	client, err := bank.ClientByCPF(ctx, s.CPF)
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeCredit, err)
	}

	reply, err := credit.Advise(ctx, client, s.Recent(CreditWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeCredit, err)
	}

	switch r := reply.(type) {
	case contractx.TextReply:
		s.AppendAssistant(r.Content)
		in.PendingCalls = nil
		if strings.Contains(r.Content, InterviewStartMarker) {
			// The customer accepted the interview offer; hand over in-turn so
			// the first question comes back in the same reply cycle.
			s.InterviewMode = true
			s.PendingRoute = contractx.RouteInterview
			return in, nil
		}
		s.PendingRoute = contractx.RouteEnd
		return in, nil

	case contractx.ToolCallReply:
		s.AppendMessage(r.Message)
		in.PendingCalls = r.Calls
		s.PendingRoute = contractx.RouteCreditTools
		return in, nil

	default:
		return recoverTurn(in, contractx.AgentTypeCredit, fmt.Errorf("%w: unexpected credit reply %T", contractx.ErrSchemaViolation, reply))
	}
}
