package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/ritobank/assistant/agent/contract"
	nodex "github.com/ritobank/assistant/agent/nodes"
	statex "github.com/ritobank/assistant/agent/state"
)

type fakeSupervisor struct {
	intent        contractx.Intent
	classifyErr   error
	directReply   string
	classifyCalls int
	directCalls   int
}

func (f *fakeSupervisor) Classify(_ context.Context, _ []*schema.Message) (contractx.Intent, error) {
	f.classifyCalls++
	if f.classifyErr != nil {
		return contractx.IntentDirect, f.classifyErr
	}
	return f.intent, nil
}

func (f *fakeSupervisor) Direct(_ context.Context, _ map[string]any, _ []*schema.Message) (string, error) {
	f.directCalls++
	if f.directReply == "" {
		return "", errors.New("unexpected direct call")
	}
	return f.directReply, nil
}

type fakeTriage struct {
	cpfReplies   []contractx.ModelReply
	birthReplies []contractx.ModelReply
	cpfCalls     int
	birthCalls   int
	confirmSteps []contractx.ConfirmStep
}

func (f *fakeTriage) CollectCPF(_ context.Context, _ []*schema.Message) (contractx.ModelReply, error) {
	f.cpfCalls++
	if f.cpfCalls > len(f.cpfReplies) {
		return nil, errors.New("unexpected CollectCPF call")
	}
	return f.cpfReplies[f.cpfCalls-1], nil
}

func (f *fakeTriage) CollectBirthDate(_ context.Context, _ string, _ []*schema.Message) (contractx.ModelReply, error) {
	f.birthCalls++
	if f.birthCalls > len(f.birthReplies) {
		return nil, errors.New("unexpected CollectBirthDate call")
	}
	return f.birthReplies[f.birthCalls-1], nil
}

func (f *fakeTriage) Confirm(_ context.Context, step contractx.ConfirmStep, _ []*schema.Message) (string, error) {
	f.confirmSteps = append(f.confirmSteps, step)
	return "confirm:" + string(step), nil
}

type fakeCurrency struct {
	replies []contractx.ModelReply
	calls   int
}

func (f *fakeCurrency) Quote(_ context.Context, _ []*schema.Message) (contractx.ModelReply, error) {
	f.calls++
	if f.calls > len(f.replies) {
		return nil, errors.New("unexpected Quote call")
	}
	return f.replies[f.calls-1], nil
}

type fakeCredit struct {
	advises      []contractx.ModelReply
	adviseCalls  int
	outcomeCalls int
	lastRejected bool
}

func (f *fakeCredit) Advise(_ context.Context, _ contractx.Client, _ []*schema.Message) (contractx.ModelReply, error) {
	f.adviseCalls++
	if f.adviseCalls > len(f.advises) {
		return nil, errors.New("unexpected Advise call")
	}
	return f.advises[f.adviseCalls-1], nil
}

func (f *fakeCredit) Outcome(_ context.Context, rejected bool, _ []*schema.Message) (string, error) {
	f.outcomeCalls++
	f.lastRejected = rejected
	if rejected {
		return "outcome:rejected", nil
	}
	return "outcome:approved", nil
}

type fakeInterview struct {
	elicits     []contractx.ModelReply
	elicitCalls int
	wrapScore   string
	wrapCalls   int
}

func (f *fakeInterview) Elicit(_ context.Context, _ string, _ []*schema.Message) (contractx.ModelReply, error) {
	f.elicitCalls++
	if f.elicitCalls > len(f.elicits) {
		return nil, errors.New("unexpected Elicit call")
	}
	return f.elicits[f.elicitCalls-1], nil
}

func (f *fakeInterview) WrapUp(_ context.Context, newScore string, _ []*schema.Message) (string, error) {
	f.wrapCalls++
	f.wrapScore = newScore
	return "wrapup:" + newScore, nil
}

type fakeRegistry struct {
	supervisor *fakeSupervisor
	triage     *fakeTriage
	currency   *fakeCurrency
	credit     *fakeCredit
	interview  *fakeInterview
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		supervisor: &fakeSupervisor{},
		triage:     &fakeTriage{},
		currency:   &fakeCurrency{},
		credit:     &fakeCredit{},
		interview:  &fakeInterview{},
	}
}

func (f *fakeRegistry) Supervisor() contractx.Supervisor { return f.supervisor }
func (f *fakeRegistry) Triage() contractx.Triage         { return f.triage }
func (f *fakeRegistry) Currency() contractx.Currency     { return f.currency }
func (f *fakeRegistry) Credit() contractx.Credit         { return f.credit }
func (f *fakeRegistry) Interview() contractx.Interview   { return f.interview }

// fakeGateway answers each requested call with the next scripted content,
// echoing back the incoming call id.
type fakeGateway struct {
	contents []string
	execs    int
	served   []contractx.ToolCall
}

func (f *fakeGateway) Execute(_ context.Context, _ contractx.AgentType, calls []contractx.ToolCall) ([]contractx.ToolResult, error) {
	f.execs++
	results := make([]contractx.ToolResult, 0, len(calls))
	for _, call := range calls {
		if len(f.contents) == 0 {
			return nil, fmt.Errorf("no scripted result for tool %s", call.Name)
		}
		content := f.contents[0]
		f.contents = f.contents[1:]
		f.served = append(f.served, call)
		results = append(results, contractx.ToolResult{CallID: call.ID, Tool: call.Name, Content: content})
	}
	return results, nil
}

// errorGateway fails every execution, returning no results.
type errorGateway struct {
	err   error
	execs int
}

func (f *errorGateway) Execute(_ context.Context, _ contractx.AgentType, _ []contractx.ToolCall) ([]contractx.ToolResult, error) {
	f.execs++
	return nil, f.err
}

type fakeBank struct {
	auth   contractx.AuthResult
	client contractx.Client
}

func (f *fakeBank) Authenticate(_ context.Context, _ string, _ string) (contractx.AuthResult, error) {
	return f.auth, nil
}

func (f *fakeBank) ClientByCPF(_ context.Context, _ string) (contractx.Client, error) {
	return f.client, nil
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(payload)
}

func toolReply(callID, name, args string) contractx.ToolCallReply {
	msg := schema.AssistantMessage("", nil)
	msg.ToolCalls = []schema.ToolCall{{
		ID:       callID,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}}
	return contractx.ToolCallReply{
		Message: msg,
		Calls:   []contractx.ToolCall{{ID: callID, Name: name, Arguments: args}},
	}
}

func newTestRouter(t *testing.T, store statex.Store, reg *fakeRegistry, gw contractx.ToolGateway, bank *fakeBank) *Router {
	t.Helper()
	r, err := New(store, reg, gw, bank)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func seedSession(t *testing.T, store statex.Store, mutate func(*statex.SessionState)) {
	t.Helper()
	s := statex.NewSessionState("s1", time.Now())
	if mutate != nil {
		mutate(s)
	}
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func loadSession(t *testing.T, store statex.Store) *statex.SessionState {
	t.Helper()
	s, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return s
}

func TestUnauthenticatedRoutesToTriageWithoutClassification(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	reg := newFakeRegistry()
	reg.triage.cpfReplies = []contractx.ModelReply{
		contractx.TextReply{Content: "Por favor, informe seu CPF para começarmos."},
	}
	r := newTestRouter(t, store, reg, &fakeGateway{}, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "Olá")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !strings.Contains(reply, "CPF") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if reg.supervisor.classifyCalls != 0 {
		t.Fatalf("classification model invoked %d times for an unauthenticated session", reg.supervisor.classifyCalls)
	}

	s := loadSession(t, store)
	if len(s.Ledger) != 2 {
		t.Fatalf("ledger has %d messages, want human + assistant", len(s.Ledger))
	}
}

func TestTriageAuthenticationFlow(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	reg := newFakeRegistry()
	reg.triage.cpfReplies = []contractx.ModelReply{
		contractx.TextReply{Content: "Por favor, informe seu CPF."},
		toolReply("call-1", contractx.ToolSaveCPF, `{"cpf":"12345678900"}`),
	}
	reg.triage.birthReplies = []contractx.ModelReply{
		toolReply("call-2", contractx.ToolSaveBirthDate, `{"birth_date":"15/05/1990"}`),
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, contractx.CPFResult{Success: true, CPF: "12345678900", Message: "ok"}),
		mustJSON(t, contractx.BirthDateResult{Success: true, BirthDate: "1990-05-15", Message: "ok"}),
	}}
	bank := &fakeBank{auth: contractx.AuthResult{Authenticated: true, Message: "ok"}}
	r := newTestRouter(t, store, reg, gw, bank)
	ctx := context.Background()

	if _, err := r.HandleMessage(ctx, "s1", "Olá"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	if _, err := r.HandleMessage(ctx, "s1", "12345678900"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	s := loadSession(t, store)
	if s.CPF != "12345678900" || s.Authenticated {
		t.Fatalf("after cpf turn: %+v", s)
	}

	reply, err := r.HandleMessage(ctx, "s1", "15/05/1990")
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	s = loadSession(t, store)
	if !s.Authenticated || s.BirthDate != "1990-05-15" {
		t.Fatalf("after birth turn: %+v", s)
	}
	if reply != "confirm:"+string(contractx.ConfirmAuthOK) {
		t.Fatalf("unexpected reply: %q", reply)
	}

	wantSteps := []contractx.ConfirmStep{contractx.ConfirmCPFSaved, contractx.ConfirmAuthOK}
	if len(reg.triage.confirmSteps) != len(wantSteps) {
		t.Fatalf("confirm steps = %v", reg.triage.confirmSteps)
	}
	for i := range wantSteps {
		if reg.triage.confirmSteps[i] != wantSteps[i] {
			t.Fatalf("confirm steps = %v, want %v", reg.triage.confirmSteps, wantSteps)
		}
	}
}

func TestAuthAttemptCapClearsIdentity(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.CPF = "12345678900"
		s.AuthAttempts = 2
	})

	reg := newFakeRegistry()
	reg.triage.birthReplies = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolSaveBirthDate, `{"birth_date":"01/01/2000"}`),
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, contractx.BirthDateResult{Success: true, BirthDate: "2000-01-01", Message: "ok"}),
	}}
	bank := &fakeBank{auth: contractx.AuthResult{Authenticated: false, Message: "mismatch"}}
	r := newTestRouter(t, store, reg, gw, bank)

	reply, err := r.HandleMessage(context.Background(), "s1", "01/01/2000")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != nodex.MaxAttemptsMessage {
		t.Fatalf("reply = %q, want max attempts notice", reply)
	}

	s := loadSession(t, store)
	if s.CPF != "" || s.BirthDate != "" || s.Authenticated {
		t.Fatalf("identity not cleared: %+v", s)
	}
	if s.AuthAttempts != 3 {
		t.Fatalf("auth attempts = %d, want 3", s.AuthAttempts)
	}
}

func TestExitResetsSession(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.CPF = "12345678900"
		s.BirthDate = "1990-05-15"
		s.Authenticated = true
		s.AppendAssistant("histórico antigo")
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentExit
	r := newTestRouter(t, store, reg, &fakeGateway{}, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "tchau")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != statex.FarewellMessage {
		t.Fatalf("reply = %q", reply)
	}

	s := loadSession(t, store)
	if len(s.Ledger) != 1 || s.Authenticated || s.CPF != "" || s.BirthDate != "" {
		t.Fatalf("session not reset: %+v", s)
	}
}

func TestCurrencyReactLoopAndTermination(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCurrency
	reg.currency.replies = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolGetExchangeRate, `{"currency_code":"USD"}`),
		contractx.TextReply{Content: "1 dólar está em R$ 5,43."},
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, map[string]string{"quote": "1 USD = R$ 5.43"}),
	}}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "qual a cotação do dólar?")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !strings.Contains(reply, "5,43") {
		t.Fatalf("reply = %q", reply)
	}
	if reg.currency.calls != 2 {
		t.Fatalf("currency invoked %d times, want 2", reg.currency.calls)
	}
	if gw.execs != 1 {
		t.Fatalf("gateway executed %d times, want 1", gw.execs)
	}

	s := loadSession(t, store)
	if tool, _, ok := s.LastToolResult(); ok && tool != "" {
		t.Fatalf("last message should be the assistant reply, got tool result for %s", tool)
	}
}

func TestCurrencyLoopBoundRecovers(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCurrency
	var replies []contractx.ModelReply
	var contents []string
	for i := 0; i < 10; i++ {
		replies = append(replies, toolReply(fmt.Sprintf("call-%d", i), contractx.ToolGetExchangeRate, `{"currency_code":"USD"}`))
		contents = append(contents, mustJSON(t, map[string]string{"quote": "1 USD = R$ 5.43"}))
	}
	reg.currency.replies = replies
	gw := &fakeGateway{contents: contents}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "cotação do dólar")
	if err != nil {
		t.Fatalf("loop bound must recover, got error: %v", err)
	}
	if reply != nodex.ApologyMessage {
		t.Fatalf("reply = %q, want apology", reply)
	}
	if gw.execs != nodex.MaxToolLoopsPerTurn {
		t.Fatalf("gateway executed %d times, want %d", gw.execs, nodex.MaxToolLoopsPerTurn)
	}

	s := loadSession(t, store)
	assertAllCallsAnswered(t, s)
}

func TestCreditApprovalFlow(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.CPF = "12345678900"
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCredit
	reg.credit.advises = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolProcessLimitIncrease, `{"cpf":"12345678900","requested_limit":7000}`),
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, contractx.LimitDecision{Status: contractx.StatusApproved, Message: "aprovado", MaxAllowed: 15000}),
	}}
	bank := &fakeBank{client: contractx.Client{CPF: "12345678900", Name: "Maria", Score: 650, CreditLimit: 5000}}
	r := newTestRouter(t, store, reg, gw, bank)

	reply, err := r.HandleMessage(context.Background(), "s1", "quero aumentar meu limite para 7000")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != "outcome:approved" {
		t.Fatalf("reply = %q", reply)
	}
	if reg.credit.lastRejected {
		t.Fatal("outcome flagged as rejection for an approval")
	}
	if reg.credit.adviseCalls != 1 || reg.credit.outcomeCalls != 1 {
		t.Fatalf("advise=%d outcome=%d", reg.credit.adviseCalls, reg.credit.outcomeCalls)
	}
}

func TestCreditRejectionThenInterviewTransfer(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.CPF = "12345678900"
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCredit
	reg.credit.advises = []contractx.ModelReply{
		contractx.TextReply{Content: nodex.InterviewStartMarker + "."},
	}
	reg.interview.elicits = []contractx.ModelReply{
		contractx.TextReply{Content: "Qual é a sua renda mensal?"},
	}
	bank := &fakeBank{client: contractx.Client{CPF: "12345678900", Score: 300, CreditLimit: 1000}}
	r := newTestRouter(t, store, reg, &fakeGateway{}, bank)

	reply, err := r.HandleMessage(context.Background(), "s1", "sim, quero a entrevista")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !strings.Contains(reply, "renda mensal") {
		t.Fatalf("reply = %q, want first interview question", reply)
	}

	s := loadSession(t, store)
	if !s.InterviewMode {
		t.Fatal("interview mode not set after transfer")
	}
}

func TestInterviewSubmissionWrapsUp(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.CPF = "12345678900"
		s.InterviewMode = true
	})

	reg := newFakeRegistry()
	reg.interview.elicits = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolSubmitInterview,
			`{"cpf":"12345678900","income":5000,"employment_type":"formal","expenses":1000,"dependents":1,"has_debt":false}`),
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, contractx.InterviewOutcome{Status: contractx.InterviewCompleted, NewScore: 630}),
	}}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "não tenho dívidas")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != "wrapup:630" {
		t.Fatalf("reply = %q", reply)
	}
	if reg.supervisor.classifyCalls != 0 {
		t.Fatal("interview flag must pre-empt classification")
	}

	s := loadSession(t, store)
	if s.InterviewMode {
		t.Fatal("interview mode not cleared after submission")
	}
}

func TestInterviewCancelKeyword(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.CPF = "12345678900"
		s.InterviewMode = true
	})

	reg := newFakeRegistry()
	reg.interview.elicits = []contractx.ModelReply{
		contractx.TextReply{Content: "ENCERRAR"},
	}
	r := newTestRouter(t, store, reg, &fakeGateway{}, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "quero parar")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != nodex.InterviewCancelMessage {
		t.Fatalf("reply = %q", reply)
	}

	s := loadSession(t, store)
	if s.InterviewMode {
		t.Fatal("interview mode not cleared on cancel")
	}
}

func TestDirectConversation(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.CPF = "12345678900"
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentDirect
	reg.supervisor.directReply = "Olá! Como posso ajudar hoje? 😊"
	r := newTestRouter(t, store, reg, &fakeGateway{}, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "bom dia")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != reg.supervisor.directReply {
		t.Fatalf("reply = %q", reply)
	}
	if reg.supervisor.classifyCalls != 1 || reg.supervisor.directCalls != 1 {
		t.Fatalf("classify=%d direct=%d", reg.supervisor.classifyCalls, reg.supervisor.directCalls)
	}
}

func TestRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, statex.NewMemoryStore(), newFakeRegistry(), &fakeGateway{}, &fakeBank{})

	if _, err := r.HandleMessage(context.Background(), "s1", "   "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := r.HandleMessage(context.Background(), "", "oi"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func assertAllCallsAnswered(t *testing.T, s *statex.SessionState) {
	t.Helper()
	answered := map[string]bool{}
	for _, msg := range s.Ledger {
		if msg.Role == schema.Tool {
			answered[msg.ToolCallID] = true
		}
	}
	for _, msg := range s.Ledger {
		if msg.Role != schema.Assistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if !answered[call.ID] {
				t.Fatalf("tool call %s has no answering tool message", call.ID)
			}
		}
	}
}

func TestToolFailureClosesDanglingCalls(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCurrency
	reg.currency.replies = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolGetExchangeRate, `{"currency_code":"USD"}`),
	}
	gw := &errorGateway{err: fmt.Errorf("%w: rate api down", contractx.ErrToolExec)}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "cotação do dólar")
	if err != nil {
		t.Fatalf("tool failure must recover, got error: %v", err)
	}
	if reply != nodex.ApologyMessage {
		t.Fatalf("reply = %q, want apology", reply)
	}

	s := loadSession(t, store)
	assertAllCallsAnswered(t, s)
	if err := s.Validate(); err != nil {
		t.Fatalf("persisted ledger invalid: %v", err)
	}

	found := false
	for _, msg := range s.Ledger {
		if msg.Role == schema.Tool && msg.ToolCallID == "call-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("failed call was not answered with an error result")
	}
}

func TestModelSchemaViolationRecovers(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
	})

	reg := newFakeRegistry()
	reg.supervisor.classifyErr = fmt.Errorf("%w: model returned empty reply", contractx.ErrSchemaViolation)
	r := newTestRouter(t, store, reg, &fakeGateway{}, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "bom dia")
	if err != nil {
		t.Fatalf("model misbehavior must recover, got error: %v", err)
	}
	if reply != nodex.ApologyMessage {
		t.Fatalf("reply = %q, want apology", reply)
	}
}

func TestTriageInvalidDateKeepsCPF(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.CPF = "12345678900"
		s.AuthAttempts = 1
	})

	reg := newFakeRegistry()
	reg.triage.birthReplies = []contractx.ModelReply{
		toolReply("call-1", contractx.ToolSaveBirthDate, `{"birth_date":"31/02/1990"}`),
	}
	gw := &fakeGateway{contents: []string{
		mustJSON(t, contractx.BirthDateResult{Success: false, Message: "data inválida"}),
	}}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "31/02/1990")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != "confirm:"+string(contractx.ConfirmDateInvalid) {
		t.Fatalf("reply = %q", reply)
	}

	s := loadSession(t, store)
	if s.CPF != "12345678900" {
		t.Fatalf("cpf cleared on date parse failure: %+v", s)
	}
	if s.AuthAttempts != 1 {
		t.Fatalf("auth attempts = %d, parse failure must not count as an attempt", s.AuthAttempts)
	}
}

func TestCurrencyAnswersFromPriorQuoteWithoutRefetch(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	seedSession(t, store, func(s *statex.SessionState) {
		s.Authenticated = true
		s.AppendHuman("cotação do dólar")
		prior := toolReply("prior-1", contractx.ToolGetExchangeRate, `{"currency_code":"USD"}`)
		s.AppendMessage(prior.Message)
		if err := s.AppendToolResult(contractx.ToolResult{
			CallID:  "prior-1",
			Tool:    contractx.ToolGetExchangeRate,
			Content: `{"quote":"1 USD = R$ 5.43"}`,
		}); err != nil {
			t.Fatalf("seed tool result: %v", err)
		}
		s.AppendAssistant("1 dólar está em R$ 5,43.")
	})

	reg := newFakeRegistry()
	reg.supervisor.intent = contractx.IntentCurrency
	reg.currency.replies = []contractx.ModelReply{
		contractx.TextReply{Content: "Como acabei de informar, 1 dólar está em R$ 5,43."},
	}
	gw := &fakeGateway{}
	r := newTestRouter(t, store, reg, gw, &fakeBank{})

	reply, err := r.HandleMessage(context.Background(), "s1", "e o dólar?")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !strings.Contains(reply, "5,43") {
		t.Fatalf("reply = %q", reply)
	}
	if gw.execs != 0 {
		t.Fatalf("gateway executed %d times, a reply from prior results needs none", gw.execs)
	}
}

func TestSessionMutexIsStable(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, statex.NewMemoryStore(), newFakeRegistry(), &fakeGateway{}, &fakeBank{})

	if r.sessionMutex("s1") != r.sessionMutex("s1") {
		t.Fatal("same session id must map to the same lock")
	}
	if r.sessionMutex("s1") == nil {
		t.Fatal("nil session lock")
	}
}
