// Package tool exposes the function-calling catalog per agent and the gateway
// that executes requested calls against the bank services.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// RateQuoter fetches one BRL-relative quote.
type RateQuoter interface {
	Quote(ctx context.Context, currencyCode string) (string, error)
}

// CreditOps covers the account-changing credit operations.
type CreditOps interface {
	ProcessLimitRequest(ctx context.Context, cpf string, requested float64) contractx.LimitDecision
	SubmitInterview(ctx context.Context, form contractx.InterviewForm) (contractx.InterviewOutcome, error)
}

// ClientDirectory resolves client records by CPF.
type ClientDirectory interface {
	ClientByCPF(ctx context.Context, cpf string) (contractx.Client, error)
}

// InfosForAgent returns the tools an agent's model may call.
func InfosForAgent(agentType contractx.AgentType) []*schema.ToolInfo {
	switch agentType {
	case contractx.AgentTypeTriage:
		return []*schema.ToolInfo{
			{
				Name: contractx.ToolSaveCPF,
				Desc: "Validate and store the customer's CPF. Call it as soon as the customer provides a CPF, in any punctuation.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"cpf": {Type: schema.String, Desc: "The CPF exactly as the customer wrote it", Required: true},
				}),
			},
			{
				Name: contractx.ToolSaveBirthDate,
				Desc: "Validate and store the customer's birth date. Accepts DD/MM/YYYY, DD-MM-YYYY or DDMMYYYY.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"birth_date": {Type: schema.String, Desc: "The birth date exactly as the customer wrote it", Required: true},
				}),
			},
		}
	case contractx.AgentTypeCurrency:
		return []*schema.ToolInfo{
			{
				Name: contractx.ToolGetExchangeRate,
				Desc: "Fetch the current quote of one foreign currency against BRL. Call once per distinct currency code; reuse quotes already present in the conversation.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"currency_code": {Type: schema.String, Desc: "Three-letter currency code, e.g. USD, EUR, GBP", Required: true},
				}),
			},
		}
	case contractx.AgentTypeCredit:
		return []*schema.ToolInfo{
			{
				Name: contractx.ToolGetScoreAndLimit,
				Desc: "Look up the customer's current credit score and credit limit by CPF.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"cpf": {Type: schema.String, Desc: "The authenticated customer's CPF, 11 digits", Required: true},
				}),
			},
			{
				Name: contractx.ToolProcessLimitIncrease,
				Desc: "Submit a credit limit increase request. The decision is made from the stored score, never from conversation values.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"cpf":             {Type: schema.String, Desc: "The authenticated customer's CPF, 11 digits", Required: true},
					"requested_limit": {Type: schema.Number, Desc: "The new limit the customer is asking for, in BRL", Required: true},
				}),
			},
		}
	case contractx.AgentTypeInterview:
		return []*schema.ToolInfo{
			{
				Name: contractx.ToolSubmitInterview,
				Desc: "Submit the completed credit interview. Call only after all five answers were collected.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"cpf":             {Type: schema.String, Desc: "The authenticated customer's CPF, 11 digits", Required: true},
					"income":          {Type: schema.Number, Desc: "Monthly income in BRL", Required: true},
					"employment_type": {Type: schema.String, Desc: "One of: formal, autonomo, desempregado", Required: true},
					"expenses":        {Type: schema.Number, Desc: "Monthly fixed expenses in BRL", Required: true},
					"dependents":      {Type: schema.Integer, Desc: "Number of dependents", Required: true},
					"has_debt":        {Type: schema.Boolean, Desc: "Whether the customer has active debt", Required: true},
				}),
			},
		}
	default:
		return nil
	}
}

// Gateway executes tool calls requested by the models. Results carry
// JSON-encoded payloads the models read back from the ledger.
type Gateway struct {
	rates   RateQuoter
	credit  CreditOps
	clients ClientDirectory
}

func NewGateway(rates RateQuoter, credit CreditOps, clients ClientDirectory) (*Gateway, error) {
	if rates == nil {
		return nil, errors.New("rate quoter is nil")
	}
	if credit == nil {
		return nil, errors.New("credit ops is nil")
	}
	if clients == nil {
		return nil, errors.New("client directory is nil")
	}
	return &Gateway{rates: rates, credit: credit, clients: clients}, nil
}

func (g *Gateway) Execute(ctx context.Context, agentType contractx.AgentType, calls []contractx.ToolCall) ([]contractx.ToolResult, error) {
	allowed := map[string]bool{}
	for _, info := range InfosForAgent(agentType) {
		allowed[info.Name] = true
	}

	results := make([]contractx.ToolResult, 0, len(calls))
	for _, call := range calls {
		if !allowed[call.Name] {
			return nil, fmt.Errorf("%w: tool=%s agent=%s", contractx.ErrUnknownToolCall, call.Name, agentType)
		}
		args, err := call.Args()
		if err != nil {
			return nil, fmt.Errorf("%w: tool=%s: %v", contractx.ErrSchemaViolation, call.Name, err)
		}
		payload, err := g.dispatch(ctx, call.Name, args)
		if err != nil {
			return nil, err
		}
		content, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode result of %s: %w", call.Name, err)
		}
		results = append(results, contractx.ToolResult{
			CallID:  call.ID,
			Tool:    call.Name,
			Content: string(content),
		})
	}
	return results, nil
}

func (g *Gateway) dispatch(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case contractx.ToolSaveCPF:
		return SaveCPF(stringArg(args, "cpf")), nil

	case contractx.ToolSaveBirthDate:
		return SaveBirthDate(stringArg(args, "birth_date")), nil

	case contractx.ToolGetExchangeRate:
		quote, err := g.rates.Quote(ctx, stringArg(args, "currency_code"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", contractx.ErrToolExec, tool, err)
		}
		return map[string]string{"quote": quote}, nil

	case contractx.ToolGetScoreAndLimit:
		client, err := g.clients.ClientByCPF(ctx, stringArg(args, "cpf"))
		if errors.Is(err, contractx.ErrClientNotFound) {
			return map[string]string{"error": "Cliente não encontrado."}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", contractx.ErrToolExec, tool, err)
		}
		return map[string]any{"score": client.Score, "credit_limit": client.CreditLimit}, nil

	case contractx.ToolProcessLimitIncrease:
		return g.credit.ProcessLimitRequest(ctx, stringArg(args, "cpf"), floatArg(args, "requested_limit")), nil

	case contractx.ToolSubmitInterview:
		form := contractx.InterviewForm{
			CPF:            stringArg(args, "cpf"),
			Income:         floatArg(args, "income"),
			EmploymentType: stringArg(args, "employment_type"),
			Expenses:       floatArg(args, "expenses"),
			Dependents:     int(floatArg(args, "dependents")),
			HasDebt:        boolArg(args, "has_debt"),
		}
		outcome, err := g.credit.SubmitInterview(ctx, form)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", contractx.ErrToolExec, tool, err)
		}
		return outcome, nil

	default:
		return nil, fmt.Errorf("%w: tool=%s", contractx.ErrUnknownToolCall, tool)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
