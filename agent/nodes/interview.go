package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// Interview conducts the one-field-at-a-time credit interview. A completed
// submission produces the wrap-up and releases the interview flag; the cancel
// keyword abandons the flow.
func Interview(ctx context.Context, in *GraphState, interview contractx.Interview) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	s := in.Session

	if tool, content, ok := s.LastToolResult(); ok && tool == contractx.ToolSubmitInterview {
		var outcome contractx.InterviewOutcome
		newScore := "atualizado"
		if err := json.Unmarshal([]byte(content), &outcome); err == nil && outcome.NewScore > 0 {
			newScore = strconv.Itoa(outcome.NewScore)
		}
		reply, err := interview.WrapUp(ctx, newScore, s.Recent(InterviewWindow))
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeInterview, err)
		}
		s.AppendAssistant(reply)
		s.InterviewMode = false
		s.PendingRoute = contractx.RouteEnd
		in.PendingCalls = nil
		return in, nil
	}

	reply, err := interview.Elicit(ctx, s.CPF, s.Recent(InterviewWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeInterview, err)
	}

	switch r := reply.(type) {
	case contractx.TextReply:
		in.PendingCalls = nil
		s.PendingRoute = contractx.RouteEnd
		if strings.Contains(strings.ToUpper(r.Content), InterviewCancelKeyword) {
			s.AppendAssistant(InterviewCancelMessage)
			s.InterviewMode = false
			return in, nil
		}
		s.AppendAssistant(r.Content)
		s.InterviewMode = true
		return in, nil

	case contractx.ToolCallReply:
		s.AppendMessage(r.Message)
		in.PendingCalls = r.Calls
		s.PendingRoute = contractx.RouteInterviewTools
		return in, nil

	default:
		return recoverTurn(in, contractx.AgentTypeInterview, fmt.Errorf("%w: unexpected interview reply %T", contractx.ErrSchemaViolation, reply))
	}
}
