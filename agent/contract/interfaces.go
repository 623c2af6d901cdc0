package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ConfirmStep selects the short follow-up reply the triage agent generates
// after a tool outcome.
type ConfirmStep string

const (
	ConfirmCPFInvalid  ConfirmStep = "cpf_invalid"
	ConfirmCPFSaved    ConfirmStep = "cpf_saved"
	ConfirmDateInvalid ConfirmStep = "date_invalid"
	ConfirmAuthOK      ConfirmStep = "auth_ok"
)

type Supervisor interface {
	// Classify returns the one-word intent for the current turn.
	Classify(ctx context.Context, history []*schema.Message) (Intent, error)
	// Direct produces a free-conversation reply, given the serialized
	// non-ledger session context.
	Direct(ctx context.Context, stateContext map[string]any, history []*schema.Message) (string, error)
}

type Triage interface {
	CollectCPF(ctx context.Context, history []*schema.Message) (ModelReply, error)
	CollectBirthDate(ctx context.Context, cpf string, history []*schema.Message) (ModelReply, error)
	Confirm(ctx context.Context, step ConfirmStep, history []*schema.Message) (string, error)
}

type Currency interface {
	Quote(ctx context.Context, history []*schema.Message) (ModelReply, error)
}

type Credit interface {
	Advise(ctx context.Context, client Client, history []*schema.Message) (ModelReply, error)
	// Outcome produces the conversational reply after a definitive
	// limit-increase decision landed in the ledger.
	Outcome(ctx context.Context, rejected bool, history []*schema.Message) (string, error)
}

type Interview interface {
	Elicit(ctx context.Context, cpf string, history []*schema.Message) (ModelReply, error)
	WrapUp(ctx context.Context, newScore string, history []*schema.Message) (string, error)
}

type Registry interface {
	Supervisor() Supervisor
	Triage() Triage
	Currency() Currency
	Credit() Credit
	Interview() Interview
}

type ToolGateway interface {
	Execute(ctx context.Context, agentType AgentType, calls []ToolCall) ([]ToolResult, error)
}

// Bank is the authoritative client record lookup the nodes depend on.
type Bank interface {
	Authenticate(ctx context.Context, cpf, birthDate string) (AuthResult, error)
	ClientByCPF(ctx context.Context, cpf string) (Client, error)
}
