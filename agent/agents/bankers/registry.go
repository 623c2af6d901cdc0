package bankers

import (
	"context"
	"fmt"

	contractx "github.com/ritobank/assistant/agent/contract"
	llmx "github.com/ritobank/assistant/agent/llm"
	promptx "github.com/ritobank/assistant/agent/prompt"
)

type registryImpl struct {
	supervisor contractx.Supervisor
	triage     contractx.Triage
	currency   contractx.Currency
	credit     contractx.Credit
	interview  contractx.Interview
}

func (r *registryImpl) Supervisor() contractx.Supervisor { return r.supervisor }
func (r *registryImpl) Triage() contractx.Triage         { return r.triage }
func (r *registryImpl) Currency() contractx.Currency     { return r.currency }
func (r *registryImpl) Credit() contractx.Credit         { return r.credit }
func (r *registryImpl) Interview() contractx.Interview   { return r.interview }

// NewRegistry compiles one model-backed implementation per agent from the
// shared OpenRouter config.
func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	cores := map[contractx.AgentType]*bankerCore{}
	for _, agentType := range []contractx.AgentType{
		contractx.AgentTypeSupervisor,
		contractx.AgentTypeTriage,
		contractx.AgentTypeCurrency,
		contractx.AgentTypeCredit,
		contractx.AgentTypeInterview,
	} {
		modelCfg := cfg.OpenRouterFor(agentType)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create model for agent=%s: %v", contractx.ErrModelInvoke, agentType, err)
		}
		core, err := newBankerCore(ctx, agentType, chatModel, prompts)
		if err != nil {
			return nil, err
		}
		cores[agentType] = core
	}

	return &registryImpl{
		supervisor: &supervisorImpl{core: cores[contractx.AgentTypeSupervisor]},
		triage:     &triageImpl{core: cores[contractx.AgentTypeTriage]},
		currency:   &currencyImpl{core: cores[contractx.AgentTypeCurrency]},
		credit:     &creditImpl{core: cores[contractx.AgentTypeCredit]},
		interview:  &interviewImpl{core: cores[contractx.AgentTypeInterview]},
	}, nil
}
