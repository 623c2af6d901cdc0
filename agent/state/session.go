package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/ritobank/assistant/agent/contract"
)

// FarewellMessage is the single message left in the ledger after a session
// reset on EXIT.
const FarewellMessage = "O Rito Bank agradece seu contato! Sessão encerrada com segurança. Até a próxima!"

// SessionState is the per-conversation source of truth: the append-only
// message ledger plus authentication fields and routing flags. It is mutated
// only by the node currently running; the router serializes turns per session.
type SessionState struct {
	SessionID string `json:"session_id"`

	// Ledger is ordered and append-only. The only allowed wholesale change
	// is Reset, which replaces it with a single farewell message.
	Ledger []*schema.Message `json:"ledger,omitempty"`

	// Auth data, populated only through validated tool results.
	CPF           string `json:"cpf,omitempty"`
	BirthDate     string `json:"birth_date,omitempty"`
	Authenticated bool   `json:"authenticated"`
	AuthAttempts  int    `json:"auth_attempts"`

	// Flow control.
	PendingRoute  contractx.Route `json:"pending_route,omitempty"`
	InterviewMode bool            `json:"interview_mode"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *SessionState) AppendHuman(text string) {
	s.Ledger = append(s.Ledger, schema.UserMessage(text))
}

func (s *SessionState) AppendAssistant(content string) {
	s.Ledger = append(s.Ledger, schema.AssistantMessage(content, nil))
}

// AppendMessage appends an already-built message, typically an assistant
// message carrying tool calls.
func (s *SessionState) AppendMessage(msg *schema.Message) {
	if msg != nil {
		s.Ledger = append(s.Ledger, msg)
	}
}

// AppendToolResult appends a tool message answering a call previously emitted
// by an assistant message in this ledger. An unknown call id is a contract
// violation, not a conversational failure.
func (s *SessionState) AppendToolResult(res contractx.ToolResult) error {
	if _, ok := s.callName(res.CallID); !ok {
		return fmt.Errorf("%w: call_id=%s tool=%s", contractx.ErrUnknownToolCall, res.CallID, res.Tool)
	}
	s.Ledger = append(s.Ledger, schema.ToolMessage(res.Content, res.CallID))
	return nil
}

// Recent returns the trailing window of at most n ledger messages.
func (s *SessionState) Recent(n int) []*schema.Message {
	if n <= 0 || len(s.Ledger) <= n {
		return s.Ledger
	}
	return s.Ledger[len(s.Ledger)-n:]
}

func (s *SessionState) Last() *schema.Message {
	if len(s.Ledger) == 0 {
		return nil
	}
	return s.Ledger[len(s.Ledger)-1]
}

// LastToolResult reports whether the most recent ledger entry is a tool
// result, and if so which tool produced it. The tool name is resolved through
// the originating assistant call, so a dangling result cannot be mistaken for
// a real one.
func (s *SessionState) LastToolResult() (tool string, content string, ok bool) {
	last := s.Last()
	if last == nil || last.Role != schema.Tool {
		return "", "", false
	}
	name, known := s.callName(last.ToolCallID)
	if !known {
		return "", "", false
	}
	return name, last.Content, true
}

// LastAssistantContent returns the content of the most recent assistant
// message, or "" when none exists.
func (s *SessionState) LastAssistantContent() string {
	for i := len(s.Ledger) - 1; i >= 0; i-- {
		if s.Ledger[i].Role == schema.Assistant {
			return s.Ledger[i].Content
		}
	}
	return ""
}

// Reset clears the session back to its unauthenticated shape: the ledger is
// replaced by a single farewell message and auth fields are dropped.
// AuthAttempts survives; it only resets on process start.
func (s *SessionState) Reset(now time.Time) {
	s.Ledger = []*schema.Message{schema.AssistantMessage(FarewellMessage, nil)}
	s.CPF = ""
	s.BirthDate = ""
	s.Authenticated = false
	s.InterviewMode = false
	s.Touch(now)
}

// CloseDanglingCalls appends a tool message with the given content for every
// tool call no tool message has answered yet. Chat providers reject histories
// where an assistant tool call stays unanswered, so a failed turn must close
// its calls before anything else is appended. Returns how many were closed.
func (s *SessionState) CloseDanglingCalls(content string) int {
	answered := map[string]bool{}
	for _, msg := range s.Ledger {
		if msg.Role == schema.Tool {
			answered[msg.ToolCallID] = true
		}
	}

	closed := 0
	for _, msg := range s.Ledger {
		if msg.Role != schema.Assistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if answered[call.ID] {
				continue
			}
			s.Ledger = append(s.Ledger, schema.ToolMessage(content, call.ID))
			answered[call.ID] = true
			closed++
		}
	}
	return closed
}

// Validate checks the ledger contract: every tool message must answer a call
// id emitted by an earlier assistant message.
func (s *SessionState) Validate() error {
	known := map[string]struct{}{}
	for _, msg := range s.Ledger {
		switch msg.Role {
		case schema.Assistant:
			for _, call := range msg.ToolCalls {
				known[call.ID] = struct{}{}
			}
		case schema.Tool:
			if _, ok := known[msg.ToolCallID]; !ok {
				return fmt.Errorf("%w: call_id=%s", contractx.ErrUnknownToolCall, msg.ToolCallID)
			}
		}
	}
	return nil
}

// Context serializes the non-ledger fields for prompt injection.
func (s *SessionState) Context() map[string]any {
	return map[string]any{
		"session_id":     s.SessionID,
		"cpf":            s.CPF,
		"birth_date":     s.BirthDate,
		"authenticated":  s.Authenticated,
		"auth_attempts":  s.AuthAttempts,
		"interview_mode": s.InterviewMode,
	}
}

// Clone deep-copies the state through its JSON form.
func (s *SessionState) Clone() (*SessionState, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	var out SessionState
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &out, nil
}

func (s *SessionState) callName(callID string) (string, bool) {
	for _, msg := range s.Ledger {
		if msg.Role != schema.Assistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.ID == callID {
				return call.Function.Name, true
			}
		}
	}
	return "", false
}
