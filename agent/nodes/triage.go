package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// Triage runs the two-phase authentication machine: collect CPF, then collect
// the birth date and cross-check both against the record store. Every branch
// ends the turn after at most one customer-visible reply.
func Triage(
	ctx context.Context,
	in *GraphState,
	triage contractx.Triage,
	tools contractx.ToolGateway,
	bank contractx.Bank,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	s := in.Session
	s.PendingRoute = contractx.RouteEnd

	if s.CPF == "" {
		return triageCollectCPF(ctx, in, triage, tools)
	}
	return triageCollectBirthDate(ctx, in, triage, tools, bank)
}

func triageCollectCPF(
	ctx context.Context,
	in *GraphState,
	triage contractx.Triage,
	tools contractx.ToolGateway,
) (*GraphState, error) {
	s := in.Session

	reply, err := triage.CollectCPF(ctx, s.Recent(TriageWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeTriage, err)
	}

	switch r := reply.(type) {
	case contractx.TextReply:
		s.AppendAssistant(r.Content)
		return in, nil

	case contractx.ToolCallReply:
		// Only the first requested call matters here.
		_, payload, err := executeSingleCall[contractx.CPFResult](ctx, in, tools, r)
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeTriage, err)
		}

		step := contractx.ConfirmCPFInvalid
		if payload.Success {
			s.CPF = payload.CPF
			step = contractx.ConfirmCPFSaved
		}
		confirmation, err := triage.Confirm(ctx, step, s.Recent(TriageWindow))
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeTriage, err)
		}
		s.AppendAssistant(confirmation)
		return in, nil

	default:
		return recoverTurn(in, contractx.AgentTypeTriage, fmt.Errorf("%w: unexpected triage reply %T", contractx.ErrSchemaViolation, reply))
	}
}

func triageCollectBirthDate(
	ctx context.Context,
	in *GraphState,
	triage contractx.Triage,
	tools contractx.ToolGateway,
	bank contractx.Bank,
) (*GraphState, error) {
	s := in.Session

	reply, err := triage.CollectBirthDate(ctx, s.CPF, s.Recent(TriageWindow))
	if err != nil {
		return recoverTurn(in, contractx.AgentTypeTriage, err)
	}

	switch r := reply.(type) {
	case contractx.TextReply:
		s.AppendAssistant(r.Content)
		return in, nil

	case contractx.ToolCallReply:
		_, payload, err := executeSingleCall[contractx.BirthDateResult](ctx, in, tools, r)
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeTriage, err)
		}

		if !payload.Success {
			confirmation, err := triage.Confirm(ctx, contractx.ConfirmDateInvalid, s.Recent(TriageWindow))
			if err != nil {
				return recoverTurn(in, contractx.AgentTypeTriage, err)
			}
			s.AppendAssistant(confirmation)
			return in, nil
		}

		auth, err := bank.Authenticate(ctx, s.CPF, payload.BirthDate)
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeTriage, err)
		}

		if !auth.Authenticated {
			s.AuthAttempts++
			s.CPF = ""
			s.BirthDate = ""
			if s.AuthAttempts >= 3 {
				s.AppendAssistant(MaxAttemptsMessage)
			} else {
				s.AppendAssistant(AuthRetryMessage)
			}
			return in, nil
		}

		s.BirthDate = payload.BirthDate
		s.Authenticated = true
		confirmation, err := triage.Confirm(ctx, contractx.ConfirmAuthOK, s.Recent(TriageWindow))
		if err != nil {
			return recoverTurn(in, contractx.AgentTypeTriage, err)
		}
		s.AppendAssistant(confirmation)
		return in, nil

	default:
		return recoverTurn(in, contractx.AgentTypeTriage, fmt.Errorf("%w: unexpected triage reply %T", contractx.ErrSchemaViolation, reply))
	}
}

// executeSingleCall runs the first call of a tool reply, appends the
// assistant message and the tool result to the ledger, and decodes the result
// payload.
func executeSingleCall[T any](
	ctx context.Context,
	in *GraphState,
	tools contractx.ToolGateway,
	r contractx.ToolCallReply,
) (contractx.ToolResult, T, error) {
	var payload T
	if len(r.Calls) == 0 {
		return contractx.ToolResult{}, payload, fmt.Errorf("%w: tool reply carries no calls", contractx.ErrSchemaViolation)
	}

	results, err := tools.Execute(ctx, contractx.AgentTypeTriage, r.Calls[:1])
	if err != nil {
		return contractx.ToolResult{}, payload, err
	}
	if len(results) != 1 {
		return contractx.ToolResult{}, payload, fmt.Errorf("%w: expected one tool result, got %d", contractx.ErrSchemaViolation, len(results))
	}

	in.Session.AppendMessage(r.Message)
	if err := in.Session.AppendToolResult(results[0]); err != nil {
		return contractx.ToolResult{}, payload, err
	}
	if err := json.Unmarshal([]byte(results[0].Content), &payload); err != nil {
		return contractx.ToolResult{}, payload, fmt.Errorf("%w: decode %s result: %v", contractx.ErrSchemaViolation, results[0].Tool, err)
	}
	return results[0], payload, nil
}
