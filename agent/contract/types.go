package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

type AgentType string

const (
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeTriage     AgentType = "triage"
	AgentTypeCurrency   AgentType = "currency"
	AgentTypeCredit     AgentType = "credit"
	AgentTypeInterview  AgentType = "interview"
)

// Route names the next node the turn engine should run, or the end of the turn.
type Route string

const (
	RouteSupervisor     Route = "supervisor"
	RouteTriage         Route = "triage"
	RouteCurrency       Route = "currency"
	RouteCurrencyTools  Route = "currency_tools"
	RouteCredit         Route = "credit"
	RouteCreditTools    Route = "credit_tools"
	RouteInterview      Route = "interview"
	RouteInterviewTools Route = "interview_tools"
	RouteEnd            Route = "end"
)

// Intent is the supervisor's classification of a customer turn.
type Intent string

const (
	IntentCurrency  Intent = "CURRENCY"
	IntentCredit    Intent = "CREDIT"
	IntentInterview Intent = "INTERVIEW"
	IntentExit      Intent = "EXIT"
	IntentDirect    Intent = "DIRECT"
)

// intentPriority fixes the match order for classification replies that happen
// to contain more than one keyword. First match wins.
var intentPriority = []Intent{IntentCurrency, IntentCredit, IntentInterview, IntentExit}

// ParseIntent maps a raw one-word classification reply onto the Intent enum.
// Anything that matches no keyword is DIRECT.
func ParseIntent(raw string) Intent {
	decision := strings.ToUpper(strings.TrimSpace(raw))
	for _, intent := range intentPriority {
		if strings.Contains(decision, string(intent)) {
			return intent
		}
	}
	return IntentDirect
}

/* ------------------------------- Tool layer ------------------------------ */

const (
	ToolSaveCPF              = "save_cpf"
	ToolSaveBirthDate        = "save_birth_date"
	ToolGetExchangeRate      = "get_exchange_rate"
	ToolGetScoreAndLimit     = "get_score_and_or_limit"
	ToolProcessLimitIncrease = "process_limit_increase_request"
	ToolSubmitInterview      = "submit_credit_interview"
)

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Args decodes the raw JSON arguments of the call.
func (c ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", ErrSchemaViolation, c.Name, err)
	}
	return args, nil
}

type ToolResult struct {
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Content string `json:"content"`
}

/* ------------------------------ Model replies ----------------------------- */

// ModelReply is the tagged outcome of a chat model invocation: either a plain
// text reply or a request to invoke tools. Nodes switch on the variant instead
// of probing optional attributes.
type ModelReply interface {
	reply()
}

type TextReply struct {
	Content string
}

type ToolCallReply struct {
	// Message is the assistant message carrying the calls; it is what gets
	// appended to the ledger so results can reference the call ids.
	Message *schema.Message
	Calls   []ToolCall
}

func (TextReply) reply()     {}
func (ToolCallReply) reply() {}

// ReplyFromMessage converts a chat model output into the tagged variant.
// Tool-call ids the provider omitted are minted here so ledger bookkeeping can
// always pair a result with its originating call.
func ReplyFromMessage(msg *schema.Message) (ModelReply, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: model returned nil message", ErrSchemaViolation)
	}

	if len(msg.ToolCalls) == 0 {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return nil, fmt.Errorf("%w: model returned empty reply", ErrSchemaViolation)
		}
		return TextReply{Content: content}, nil
	}

	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for i := range msg.ToolCalls {
		name := strings.TrimSpace(msg.ToolCalls[i].Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", ErrSchemaViolation)
		}
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			msg.ToolCalls[i].ID = uuid.NewString()
		}
		calls = append(calls, ToolCall{
			ID:        msg.ToolCalls[i].ID,
			Name:      name,
			Arguments: msg.ToolCalls[i].Function.Arguments,
		})
	}

	return ToolCallReply{Message: msg, Calls: calls}, nil
}

/* ----------------------------- Domain payloads ---------------------------- */

const (
	StatusApproved = "aprovado"
	StatusRejected = "rejeitado"
	StatusError    = "erro"

	InterviewCompleted = "completed"
)

const (
	EmploymentFormal       = "formal"
	EmploymentSelfEmployed = "autonomo"
	EmploymentUnemployed   = "desempregado"
)

type CPFResult struct {
	Success bool   `json:"success"`
	CPF     string `json:"cpf,omitempty"`
	Message string `json:"message"`
}

type BirthDateResult struct {
	Success   bool   `json:"success"`
	BirthDate string `json:"birth_date,omitempty"`
	Message   string `json:"message"`
}

type AuthResult struct {
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message"`
}

type Client struct {
	CPF         string  `json:"cpf"`
	Name        string  `json:"name"`
	BirthDate   string  `json:"birth_date"`
	Score       int     `json:"score"`
	CreditLimit float64 `json:"credit_limit"`
}

type LimitDecision struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	MaxAllowed float64 `json:"max_allowed"`
}

type InterviewForm struct {
	CPF            string  `json:"cpf"`
	Income         float64 `json:"income"`
	EmploymentType string  `json:"employment_type"`
	Expenses       float64 `json:"expenses"`
	Dependents     int     `json:"dependents"`
	HasDebt        bool    `json:"has_debt"`
}

type InterviewOutcome struct {
	Status   string `json:"status"`
	NewScore int    `json:"new_score"`
}
