package router

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/ritobank/assistant/agent/contract"
	nodex "github.com/ritobank/assistant/agent/nodes"
)

const (
	nodeValidateRequest = "validate_request"
	nodeLoadSession     = "load_session"
	nodeSupervisor      = "supervisor"
	nodeTriage          = "triage"
	nodeCurrency        = "currency"
	nodeCurrencyTools   = "currency_tools"
	nodeCredit          = "credit"
	nodeCreditTools     = "credit_tools"
	nodeInterview       = "interview"
	nodeInterviewTools  = "interview_tools"
	nodeSaveSession     = "save_session"
	nodeFinalizeReply   = "finalize_reply"
)

// maxRunSteps bounds total node executions per turn; the per-turn tool loop
// bound trips first, this is the engine-level backstop.
const maxRunSteps = 40

func (r *Router) compileTurnGraph(ctx context.Context) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	lambdas := map[string]func(context.Context, *nodex.GraphState) (*nodex.GraphState, error){
		nodeLoadSession: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, r.store)
		},
		nodeSupervisor: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Supervise(ctx, in, r.models.Supervisor())
		},
		nodeTriage: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Triage(ctx, in, r.models.Triage(), r.tools, r.bank)
		},
		nodeCurrency: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Currency(ctx, in, r.models.Currency())
		},
		nodeCurrencyTools: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecuteTools(ctx, in, r.tools, contractx.AgentTypeCurrency, contractx.RouteCurrency)
		},
		nodeCredit: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Credit(ctx, in, r.models.Credit(), r.bank)
		},
		nodeCreditTools: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecuteTools(ctx, in, r.tools, contractx.AgentTypeCredit, contractx.RouteCredit)
		},
		nodeInterview: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Interview(ctx, in, r.models.Interview())
		},
		nodeInterviewTools: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecuteTools(ctx, in, r.tools, contractx.AgentTypeInterview, contractx.RouteInterview)
		},
		nodeSaveSession: func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveState(ctx, in, r.store)
		},
	}

	if err := graph.AddLambdaNode(nodeValidateRequest,
		compose.InvokableLambda(func(_ context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, r.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeValidateRequest, err)
	}

	for name, fn := range lambdas {
		fn := fn
		if err := graph.AddLambdaNode(name, compose.InvokableLambda(fn)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}

	if err := graph.AddLambdaNode(nodeFinalizeReply,
		compose.InvokableLambda(func(_ context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFinalizeReply, err)
	}

	edges := [][2]string{
		{compose.START, nodeValidateRequest},
		{nodeValidateRequest, nodeLoadSession},
		{nodeLoadSession, nodeSupervisor},
		{nodeTriage, nodeSaveSession},
		{nodeSaveSession, nodeFinalizeReply},
		{nodeFinalizeReply, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	branches := []struct {
		from    string
		targets map[contractx.Route]string
	}{
		{
			from: nodeSupervisor,
			targets: map[contractx.Route]string{
				contractx.RouteTriage:    nodeTriage,
				contractx.RouteCurrency:  nodeCurrency,
				contractx.RouteCredit:    nodeCredit,
				contractx.RouteInterview: nodeInterview,
				contractx.RouteEnd:       nodeSaveSession,
			},
		},
		{
			from: nodeCurrency,
			targets: map[contractx.Route]string{
				contractx.RouteCurrencyTools: nodeCurrencyTools,
				contractx.RouteEnd:           nodeSaveSession,
			},
		},
		{
			from: nodeCredit,
			targets: map[contractx.Route]string{
				contractx.RouteCreditTools: nodeCreditTools,
				contractx.RouteInterview:   nodeInterview,
				contractx.RouteEnd:         nodeSaveSession,
			},
		},
		{
			from: nodeInterview,
			targets: map[contractx.Route]string{
				contractx.RouteInterviewTools: nodeInterviewTools,
				contractx.RouteEnd:            nodeSaveSession,
			},
		},
		// Tool nodes loop back to their agent on success but must still be
		// able to end the turn when the loop bound trips.
		{
			from: nodeCurrencyTools,
			targets: map[contractx.Route]string{
				contractx.RouteCurrency: nodeCurrency,
				contractx.RouteEnd:      nodeSaveSession,
			},
		},
		{
			from: nodeCreditTools,
			targets: map[contractx.Route]string{
				contractx.RouteCredit: nodeCredit,
				contractx.RouteEnd:    nodeSaveSession,
			},
		},
		{
			from: nodeInterviewTools,
			targets: map[contractx.Route]string{
				contractx.RouteInterview: nodeInterview,
				contractx.RouteEnd:       nodeSaveSession,
			},
		},
	}

	for _, b := range branches {
		b := b
		endNodes := make(map[string]bool, len(b.targets))
		for _, node := range b.targets {
			endNodes[node] = true
		}
		branch := compose.NewGraphBranch(
			func(_ context.Context, in *nodex.GraphState) (string, error) {
				if in == nil || in.Session == nil {
					return "", fmt.Errorf("%w: graph state has no session", contractx.ErrValidation)
				}
				node, ok := b.targets[in.Session.PendingRoute]
				if !ok {
					return "", fmt.Errorf("%w: no edge from %s for route %q", contractx.ErrValidation, b.from, in.Session.PendingRoute)
				}
				return node, nil
			},
			endNodes,
		)
		if err := graph.AddBranch(b.from, branch); err != nil {
			return nil, fmt.Errorf("add branch from %s: %w", b.from, err)
		}
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName("router.turn_graph"),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile router graph: %w", err)
	}
	return runner, nil
}
