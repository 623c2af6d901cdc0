// Package nodes holds the per-agent turn logic executed by the router graph.
// Every node mutates the session, decides the next route, and keeps the
// customer-facing channel natural-language even on internal failure.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/ritobank/assistant/agent/contract"
	statex "github.com/ritobank/assistant/agent/state"
)

// Context windows, in ledger messages, per agent.
const (
	SupervisorWindow = 20
	TriageWindow     = 20
	CurrencyWindow   = 10
	CreditWindow     = 10
	InterviewWindow  = 30
)

// MaxToolLoopsPerTurn bounds how many tool-execution rounds a single turn may
// run before the turn is abandoned as a recoverable failure.
const MaxToolLoopsPerTurn = 5

const (
	ApologyMessage         = "Desculpe, ocorreu um erro ao processar sua solicitação. Tente novamente mais tarde."
	MaxAttemptsMessage     = "Número máximo de tentativas atingido. Encerrando atendimento."
	AuthRetryMessage       = "Autenticação falhou. Dados incorretos. Reiniciando processo."
	InterviewCancelMessage = "Entendido. Encerrando o processo da entrevista."
)

// toolFailureResult answers tool calls a failed turn left unanswered, keeping
// the provider-facing history well formed.
const toolFailureResult = `{"error":"Falha na execução da ferramenta."}`

const (
	// InterviewStartMarker is the exact phrase the credit agent emits when the
	// customer accepts the interview offer; it triggers the in-turn transfer.
	InterviewStartMarker = "Vou iniciar a entrevista agora"

	// InterviewCancelKeyword is the abandonment signal emitted by the
	// interview agent's model.
	InterviewCancelKeyword = "ENCERRAR"
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply string
}

// GraphState travels through one turn of the router graph.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.SessionState

	// PendingCalls are tool calls requested by the last agent invocation,
	// awaiting execution by the tool node.
	PendingCalls []contractx.ToolCall

	// ToolLoops counts tool-execution rounds within this turn.
	ToolLoops int
}

func ValidateRequest(in GraphInput, now func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", contractx.ErrValidation)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", contractx.ErrValidation)
	}
	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       now(),
	}, nil
}

// LoadOrCreateState attaches the session, appends the incoming message and
// points the turn at the supervisor.
func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewSessionState(in.SessionID, in.Now)
	}

	st.AppendHuman(in.Text)
	st.PendingRoute = contractx.RouteSupervisor
	in.Session = st
	return in, nil
}

// SaveState persists the mutated session at the end of the turn.
func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	in.Session.Touch(in.Now)
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}

// FinalizeReply extracts the customer-visible reply: the most recent
// assistant message of the turn.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
	}
	reply := strings.TrimSpace(in.Session.LastAssistantContent())
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn produced no assistant reply", contractx.ErrValidation)
	}
	return GraphOutput{Reply: reply}, nil
}

// fatal reports whether an error is a ledger or request contract violation
// that must surface to the caller instead of being absorbed into an apology.
// Schema violations are deliberately not fatal: they are minted at the model
// boundary (empty reply, blank tool name, malformed call arguments) and a
// misbehaving provider is an external failure like any other.
func fatal(err error) bool {
	return errors.Is(err, contractx.ErrValidation) ||
		errors.Is(err, contractx.ErrUnknownToolCall)
}

// recoverTurn converts a model/tool failure into an apologetic reply and ends
// the turn. Contract violations pass through untouched. Tool calls left
// unanswered by the failure are closed with an error result first, so the
// persisted history never carries dangling calls into the next turn.
func recoverTurn(in *GraphState, agentType contractx.AgentType, err error) (*GraphState, error) {
	if fatal(err) {
		return nil, err
	}
	log.Error().Err(err).
		Str("agent", string(agentType)).
		Str("session_id", in.SessionID).
		Msg("turn recovered with apology")
	in.Session.CloseDanglingCalls(toolFailureResult)
	in.Session.AppendAssistant(ApologyMessage)
	in.Session.PendingRoute = contractx.RouteEnd
	in.PendingCalls = nil
	return in, nil
}
