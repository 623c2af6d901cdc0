// Package bankers implements the five conversational agents on top of
// compiled eino graphs: one plain runner per agent, plus a tools-bound runner
// for the agents whose models may request function calls.
package bankers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/ritobank/assistant/agent/contract"
	promptx "github.com/ritobank/assistant/agent/prompt"
	toolx "github.com/ritobank/assistant/agent/tool"
)

type bankerCore struct {
	agentType  contractx.AgentType
	runner     compose.Runnable[map[string]any, *schema.Message]
	toolRunner compose.Runnable[map[string]any, *schema.Message]
	prompts    promptx.PromptSet
}

func newBankerCore(
	ctx context.Context,
	agentType contractx.AgentType,
	chatModel einomodel.ToolCallingChatModel,
	prompts promptx.PromptSet,
) (*bankerCore, error) {
	runner, err := compileChatGraph(ctx, chatModel, fmt.Sprintf("%s.chat_graph", agentType))
	if err != nil {
		return nil, fmt.Errorf("%w: agent=%s: %v", contractx.ErrModelInvoke, agentType, err)
	}

	core := &bankerCore{agentType: agentType, runner: runner, prompts: prompts}

	if infos := toolx.InfosForAgent(agentType); len(infos) > 0 {
		toolModel, err := chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for agent=%s: %v", contractx.ErrModelInvoke, agentType, err)
		}
		toolRunner, err := compileChatGraph(ctx, toolModel, fmt.Sprintf("%s.tool_graph", agentType))
		if err != nil {
			return nil, fmt.Errorf("%w: agent=%s: %v", contractx.ErrModelInvoke, agentType, err)
		}
		core.toolRunner = toolRunner
	}

	return core, nil
}

func (b *bankerCore) invoke(
	ctx context.Context,
	runner compose.Runnable[map[string]any, *schema.Message],
	system string,
	history []*schema.Message,
) (*schema.Message, error) {
	msg, err := runner.Invoke(ctx, map[string]any{
		"system":  system,
		"history": history,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: agent=%s invoke: %v", contractx.ErrModelInvoke, b.agentType, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: agent=%s returned nil message", contractx.ErrSchemaViolation, b.agentType)
	}
	return msg, nil
}

// text runs the plain runner and requires a non-empty textual reply.
func (b *bankerCore) text(ctx context.Context, system string, history []*schema.Message) (string, error) {
	msg, err := b.invoke(ctx, b.runner, system, history)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", fmt.Errorf("%w: agent=%s returned empty content", contractx.ErrSchemaViolation, b.agentType)
	}
	return content, nil
}

// reply runs the tools-bound runner and converts the raw message into the
// text-or-tool-calls variant.
func (b *bankerCore) reply(ctx context.Context, system string, history []*schema.Message) (contractx.ModelReply, error) {
	msg, err := b.invoke(ctx, b.toolRunner, system, history)
	if err != nil {
		return nil, err
	}
	return contractx.ReplyFromMessage(msg)
}

type supervisorImpl struct {
	core *bankerCore
}

func (s *supervisorImpl) Classify(ctx context.Context, history []*schema.Message) (contractx.Intent, error) {
	system := promptx.Compose(s.core.prompts.Persona, s.core.prompts.Classify)
	decision, err := s.core.text(ctx, system, history)
	if err != nil {
		return contractx.IntentDirect, err
	}
	return contractx.ParseIntent(decision), nil
}

func (s *supervisorImpl) Direct(ctx context.Context, stateContext map[string]any, history []*schema.Message) (string, error) {
	contextJSON, err := json.MarshalIndent(stateContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: marshal state context: %v", contractx.ErrValidation, err)
	}
	system := promptx.Compose(
		s.core.prompts.Persona,
		promptx.Fill(s.core.prompts.Direct, map[string]string{"state_context": string(contextJSON)}),
		s.core.prompts.Closing,
	)
	return s.core.text(ctx, system, history)
}

type triageImpl struct {
	core *bankerCore
}

func (t *triageImpl) CollectCPF(ctx context.Context, history []*schema.Message) (contractx.ModelReply, error) {
	system := promptx.Compose(t.core.prompts.Persona, t.core.prompts.TriageCPF, t.core.prompts.Closing)
	return t.core.reply(ctx, system, history)
}

func (t *triageImpl) CollectBirthDate(ctx context.Context, cpf string, history []*schema.Message) (contractx.ModelReply, error) {
	system := promptx.Compose(
		t.core.prompts.Persona,
		promptx.Fill(t.core.prompts.TriageBirth, map[string]string{"cpf": cpf}),
		t.core.prompts.Closing,
	)
	return t.core.reply(ctx, system, history)
}

func (t *triageImpl) Confirm(ctx context.Context, step contractx.ConfirmStep, history []*schema.Message) (string, error) {
	var section string
	switch step {
	case contractx.ConfirmCPFInvalid:
		section = t.core.prompts.TriageCPFInvalid
	case contractx.ConfirmCPFSaved:
		section = t.core.prompts.TriageCPFSaved
	case contractx.ConfirmDateInvalid:
		section = t.core.prompts.TriageDateInvalid
	case contractx.ConfirmAuthOK:
		section = t.core.prompts.TriageAuthOK
	default:
		return "", fmt.Errorf("%w: unknown confirm step %q", contractx.ErrValidation, step)
	}
	system := promptx.Compose(t.core.prompts.Persona, section, t.core.prompts.Closing)
	return t.core.text(ctx, system, history)
}

type currencyImpl struct {
	core *bankerCore
}

func (c *currencyImpl) Quote(ctx context.Context, history []*schema.Message) (contractx.ModelReply, error) {
	system := promptx.Compose(c.core.prompts.Persona, c.core.prompts.Currency, c.core.prompts.Closing)
	return c.core.reply(ctx, system, history)
}

type creditImpl struct {
	core *bankerCore
}

func (c *creditImpl) Advise(ctx context.Context, client contractx.Client, history []*schema.Message) (contractx.ModelReply, error) {
	clientContext := fmt.Sprintf(
		"Name: %s\nCPF: %s\nCurrent score: %d\nCurrent limit: R$ %.2f",
		client.Name, client.CPF, client.Score, client.CreditLimit,
	)
	system := promptx.Compose(
		c.core.prompts.Persona,
		promptx.Fill(c.core.prompts.Credit, map[string]string{"client_context": clientContext}),
		c.core.prompts.Closing,
	)
	return c.core.reply(ctx, system, history)
}

func (c *creditImpl) Outcome(ctx context.Context, rejected bool, history []*schema.Message) (string, error) {
	section := c.core.prompts.CreditApproved
	if rejected {
		section = c.core.prompts.CreditRejected
	}
	system := promptx.Compose(c.core.prompts.Persona, section, c.core.prompts.Closing)
	return c.core.text(ctx, system, history)
}

type interviewImpl struct {
	core *bankerCore
}

func (i *interviewImpl) Elicit(ctx context.Context, cpf string, history []*schema.Message) (contractx.ModelReply, error) {
	system := promptx.Compose(
		i.core.prompts.Persona,
		promptx.Fill(i.core.prompts.Interview, map[string]string{"cpf": cpf}),
		i.core.prompts.Closing,
	)
	return i.core.reply(ctx, system, history)
}

func (i *interviewImpl) WrapUp(ctx context.Context, newScore string, history []*schema.Message) (string, error) {
	system := promptx.Compose(
		i.core.prompts.Persona,
		promptx.Fill(i.core.prompts.InterviewDone, map[string]string{"new_score": newScore}),
		i.core.prompts.Closing,
	)
	return i.core.text(ctx, system, history)
}
