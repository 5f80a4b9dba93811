// Package httpapi exposes the agent over HTTP: the invoke proxy endpoint
// the frontend talks to, memory inspection endpoints, and a websocket chat
// channel.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/irisfin/riskagent/internal/agent"
	"github.com/irisfin/riskagent/internal/config"
	"github.com/irisfin/riskagent/internal/memory"
	"github.com/irisfin/riskagent/internal/model"
	"github.com/irisfin/riskagent/internal/observability"
)

// Runner executes one agent turn.
type Runner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (agent.TurnResponse, error)
}

type Server struct {
	cfg      config.Config
	store    memory.Store
	runner   Runner
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, store memory.Store, runner Runner, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the chat socket
				// unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/agent/invoke", s.handleInvoke)
	r.Get("/api/chat/ws", s.handleChatWS)

	r.Get("/api/memory/user/{userID}", s.handleUserMemory)
	r.Post("/api/memory/user/{userID}/clear", s.handleClearMemory)
	r.Get("/api/memory/user/{userID}/threads", s.handleListThreads)
	r.Get("/api/memory/thread/{threadID}", s.handleThreadHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"memory_enabled": true,
		"memory_storage": s.store.Backend(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"memory_storage": s.store.Backend(),
	})
}

type customInputs struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeRequest struct {
	CustomInputs customInputs   `json:"custom_inputs"`
	Input        []inputMessage `json:"input"`
}

type outputText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputItem struct {
	Type    string       `json:"type"`
	Role    string       `json:"role"`
	Content []outputText `json:"content"`
}

type invokeResponse struct {
	Output        []outputItem   `json:"output"`
	CustomOutputs map[string]any `json:"custom_outputs"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Input) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}

	turnReq := agent.TurnRequest{
		UserID:   req.CustomInputs.UserID,
		ThreadID: req.CustomInputs.ThreadID,
		Input:    toModelMessages(req.Input),
	}

	resp, err := s.runner.RunTurn(r.Context(), turnReq)
	if err != nil {
		log.Printf("httpapi: turn failed: %v", err)
		respondError(w, http.StatusBadGateway, "model_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, invokeResponse{
		Output: []outputItem{{
			Type:    "message",
			Role:    "assistant",
			Content: []outputText{{Type: "output_text", Text: resp.Reply}},
		}},
		CustomOutputs: map[string]any{
			"thread_id":      resp.ThreadID,
			"user_id":        resp.UserID,
			"memory_enabled": resp.MemoryEnabled,
			"memory_storage": resp.MemoryStorage,
		},
	})
}

func (s *Server) handleUserMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	memories, err := s.store.Memories(r.Context(), userID, "")
	if err != nil {
		log.Printf("httpapi: read memories failed: %v", err)
	}
	summaries, err := s.store.RecentSummaries(r.Context(), userID, s.cfg.SummaryLimit)
	if err != nil {
		log.Printf("httpapi: read summaries failed: %v", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"memories":      emptyIfNilMemories(memories),
		"conversations": emptyIfNilSummaries(summaries),
		"storage":       s.store.Backend(),
	})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	if err := s.store.ClearUserMemories(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	log.Printf("httpapi: cleared long-term memories for user %s (turn history preserved)", userID)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "cleared",
		"user_id":           userID,
		"history_preserved": true,
	})
}

func (s *Server) handleThreadHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if strings.TrimSpace(threadID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_thread_id", "missing thread id")
		return
	}

	turns, err := s.store.ThreadTurns(r.Context(), threadID, s.cfg.ThreadHistoryLimit)
	if err != nil {
		log.Printf("httpapi: read thread turns failed: %v", err)
	}

	messages := make([]inputMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, inputMessage{Role: t.Role, Content: t.Content})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"messages":  messages,
	})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	threads, err := s.store.ListThreads(r.Context(), userID, 20)
	if err != nil {
		log.Printf("httpapi: list threads failed: %v", err)
	}
	if threads == nil {
		threads = []memory.ThreadInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"threads": threads,
	})
}

func toModelMessages(input []inputMessage) []model.Message {
	out := make([]model.Message, 0, len(input))
	for _, m := range input {
		role := m.Role
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, model.Message{Role: role, Content: m.Content})
	}
	return out
}

func emptyIfNilMemories(in []memory.MemoryRecord) []memory.MemoryRecord {
	if in == nil {
		return []memory.MemoryRecord{}
	}
	return in
}

func emptyIfNilSummaries(in []memory.ConversationSummary) []memory.ConversationSummary {
	if in == nil {
		return []memory.ConversationSummary{}
	}
	return in
}
