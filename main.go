package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ritobank/assistant/agent/agents/bankers"
	auditx "github.com/ritobank/assistant/agent/audit"
	bankx "github.com/ritobank/assistant/agent/bank"
	contractx "github.com/ritobank/assistant/agent/contract"
	llmx "github.com/ritobank/assistant/agent/llm"
	ratesx "github.com/ritobank/assistant/agent/rates"
	routerx "github.com/ritobank/assistant/agent/router"
	statex "github.com/ritobank/assistant/agent/state"
	toolx "github.com/ritobank/assistant/agent/tool"
	configx "github.com/ritobank/assistant/pkg/config"
	_ "github.com/ritobank/assistant/pkg/logger/autoload"
	openrouterx "github.com/ritobank/assistant/pkg/openrouter"
	redisx "github.com/ritobank/assistant/pkg/redis"
)

type AppConfig struct {
	HTTPAddr       string `envconfig:"HTTP_ADDR" split_words:"true" default:":8000"`
	StateBackend   string `envconfig:"STATE_BACKEND" split_words:"true" default:"memory"`
	AuditBackend   string `envconfig:"AUDIT_BACKEND" split_words:"true" default:"csv"`
	DataDir        string `envconfig:"DATA_DIR" split_words:"true" default:"data"`
	DefaultSession string `envconfig:"DEFAULT_SESSION" split_words:"true" default:"default"`
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.AgentTypeSupervisor)) == nil {
		log.Fatal().Msg("initialize openrouter client")
	}
	registry, err := bankers.NewRegistry(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize agent registry")
	}

	clients, err := bankx.NewClientStore(filepath.Join(appCfg.DataDir, "clients.csv"))
	if err != nil {
		log.Fatal().Err(err).Msg("load client records")
	}
	rules, err := bankx.NewRuleTable(filepath.Join(appCfg.DataDir, "score_limit.csv"))
	if err != nil {
		log.Fatal().Err(err).Msg("load score rule table")
	}
	sink := newAuditSink(ctx, appCfg)
	credit, err := bankx.NewCreditService(clients, rules, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize credit service")
	}

	ratesCfg := configx.MustNew[ratesx.Config]("RATES")
	rates, err := ratesx.NewClient(*ratesCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize exchange rate client")
	}

	gateway, err := toolx.NewGateway(rates, credit, clients)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize tool gateway")
	}

	router, err := routerx.New(newStateStore(appCfg), registry, gateway, clients)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize router")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/message", chatHandler(router, appCfg.DefaultSession))

	server := &http.Server{
		Addr:         appCfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.HTTPAddr).Msg("assistant listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown http server")
	}
	if closer, ok := sink.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("close audit sink")
		}
	}
}

func newStateStore(cfg *AppConfig) statex.Store {
	switch strings.ToLower(cfg.StateBackend) {
	case "redis":
		redisCfg := configx.MustNew[redisx.Config]("REDIS")
		sessionCfg := configx.MustNew[statex.RedisConfig]("SESSION")
		return statex.NewRedisStore(redisCfg.MustNew(), *sessionCfg)
	case "", "memory":
		return statex.NewMemoryStore()
	default:
		log.Fatal().Str("backend", cfg.StateBackend).Msg("unknown state backend")
		return nil
	}
}

func newAuditSink(ctx context.Context, cfg *AppConfig) auditx.Sink {
	switch strings.ToLower(cfg.AuditBackend) {
	case "postgres":
		pgCfg := configx.MustNew[auditx.PostgresConfig]("AUDIT_POSTGRES")
		sink, err := auditx.NewPostgresSink(ctx, *pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize postgres audit sink")
		}
		return sink
	case "", "csv":
		return auditx.NewCSVSink(filepath.Join(cfg.DataDir, "increase_limits_request.csv"))
	default:
		log.Fatal().Str("backend", cfg.AuditBackend).Msg("unknown audit backend")
		return nil
	}
}

func chatHandler(router *routerx.Router, defaultSession string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			sessionID = defaultSession
		}

		reply, err := router.HandleMessage(r.Context(), sessionID, req.Query)
		if err != nil {
			if errors.Is(err, contractx.ErrValidation) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Error().Err(err).Str("session_id", sessionID).Msg("handle chat message")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chatResponse{Response: reply}); err != nil {
			log.Error().Err(err).Msg("encode chat response")
		}
	}
}
