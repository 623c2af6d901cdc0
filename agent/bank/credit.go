package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ritobank/assistant/agent/audit"
	contractx "github.com/ritobank/assistant/agent/contract"
)

var (
	ErrNilClientStore = errors.New("client store is nil")
	ErrNilRuleTable   = errors.New("rule table is nil")
	ErrNilAuditSink   = errors.New("audit sink is nil")
)

// CreditService decides limit-increase requests and records interview
// outcomes. It always re-fetches the authoritative score and limit by CPF;
// caller-supplied values are never trusted.
type CreditService struct {
	clients *ClientStore
	rules   *RuleTable
	sink    audit.Sink
	now     func() time.Time
}

func NewCreditService(clients *ClientStore, rules *RuleTable, sink audit.Sink) (*CreditService, error) {
	if clients == nil {
		return nil, ErrNilClientStore
	}
	if rules == nil {
		return nil, ErrNilRuleTable
	}
	if sink == nil {
		return nil, ErrNilAuditSink
	}
	return &CreditService{clients: clients, rules: rules, sink: sink, now: time.Now}, nil
}

// ProcessLimitRequest approves a request iff it does not exceed the
// score-bracket ceiling, persisting the new limit on approval. Every call is
// audited regardless of outcome; the decision itself never fails the turn,
// failures are reported through the status field.
func (s *CreditService) ProcessLimitRequest(ctx context.Context, cpf string, requested float64) contractx.LimitDecision {
	client, err := s.clients.ClientByCPF(ctx, cpf)
	if err != nil {
		decision := contractx.LimitDecision{
			Status:  contractx.StatusError,
			Message: "Não foi possível localizar o cadastro do cliente.",
		}
		s.record(ctx, cpf, 0, requested, decision.Status)
		return decision
	}

	maxAllowed, ok := s.rules.MaxAllowed(client.Score)
	if !ok {
		decision := contractx.LimitDecision{
			Status:  contractx.StatusError,
			Message: fmt.Sprintf("Não há política de limite definida para o score %d.", client.Score),
		}
		s.record(ctx, cpf, client.CreditLimit, requested, decision.Status)
		return decision
	}

	var decision contractx.LimitDecision
	if requested <= maxAllowed {
		if err := s.clients.UpdateLimit(ctx, cpf, requested); err != nil {
			decision = contractx.LimitDecision{
				Status:     contractx.StatusError,
				Message:    "Falha ao atualizar o limite. Tente novamente mais tarde.",
				MaxAllowed: maxAllowed,
			}
		} else {
			decision = contractx.LimitDecision{
				Status:     contractx.StatusApproved,
				Message:    fmt.Sprintf("Pedido aprovado! Seu novo limite é de R$ %.2f.", requested),
				MaxAllowed: maxAllowed,
			}
		}
	} else {
		decision = contractx.LimitDecision{
			Status:     contractx.StatusRejected,
			Message:    fmt.Sprintf("Pedido rejeitado. Para o seu score atual, o limite máximo permitido é de R$ %.2f.", maxAllowed),
			MaxAllowed: maxAllowed,
		}
	}
	s.record(ctx, cpf, client.CreditLimit, requested, decision.Status)
	return decision
}

// SubmitInterview computes the new score from the interview answers and
// persists it.
func (s *CreditService) SubmitInterview(ctx context.Context, form contractx.InterviewForm) (contractx.InterviewOutcome, error) {
	newScore := InterviewScore(form)
	if err := s.clients.UpdateScore(ctx, form.CPF, newScore); err != nil {
		return contractx.InterviewOutcome{Status: contractx.StatusError}, err
	}
	return contractx.InterviewOutcome{Status: contractx.InterviewCompleted, NewScore: newScore}, nil
}

// record never fails the caller; the audit trail is best-effort from the
// conversation's point of view.
func (s *CreditService) record(ctx context.Context, cpf string, currentLimit, requested float64, status string) {
	entry := audit.Entry{
		CPF:            cpf,
		At:             s.now(),
		CurrentLimit:   currentLimit,
		RequestedLimit: requested,
		Status:         status,
	}
	if err := s.sink.Record(ctx, entry); err != nil {
		log.Error().Err(err).Str("cpf", cpf).Str("status", status).Msg("record limit request")
	}
}
