// Package router drives one conversation turn through the compiled agent
// graph: supervisor first, then the selected agent, with tool-execution
// nodes looping back until the agent's reply carries no further calls.
package router

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/ritobank/assistant/agent/contract"
	nodex "github.com/ritobank/assistant/agent/nodes"
	statex "github.com/ritobank/assistant/agent/state"
)

// sessionLockShards sizes the fixed lock pool that serializes turns per
// session. Hashing the id into a bounded pool keeps memory flat no matter how
// many session ids come and go; unrelated sessions may occasionally share a
// lock.
const sessionLockShards = 64

type Router struct {
	store  statex.Store
	models contractx.Registry
	tools  contractx.ToolGateway
	bank   contractx.Bank

	runner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	locks [sessionLockShards]sync.Mutex

	now func() time.Time
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	bank contractx.Bank,
) (*Router, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if bank == nil {
		return nil, errors.New("bank is required")
	}

	r := &Router{
		store:  store,
		models: models,
		tools:  tools,
		bank:   bank,
		now:    time.Now,
	}

	runner, err := r.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.runner = runner
	return r, nil
}

// HandleMessage runs one turn and returns the assistant-visible reply.
func (r *Router) HandleMessage(ctx context.Context, sessionID string, text string) (string, error) {
	mu := r.sessionMutex(sessionID)
	mu.Lock()
	defer mu.Unlock()

	out, err := r.runner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (r *Router) sessionMutex(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &r.locks[h.Sum32()%sessionLockShards]
}
