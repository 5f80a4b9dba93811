package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irisfin/riskagent/internal/agent"
	"github.com/irisfin/riskagent/internal/config"
	"github.com/irisfin/riskagent/internal/memory"
	"github.com/irisfin/riskagent/internal/observability"
)

type stubRunner struct {
	resp agent.TurnResponse
	err  error
	last agent.TurnRequest
}

func (r *stubRunner) RunTurn(_ context.Context, req agent.TurnRequest) (agent.TurnResponse, error) {
	r.last = req
	if r.err != nil {
		return agent.TurnResponse{}, r.err
	}
	resp := r.resp
	if resp.ThreadID == "" {
		resp.ThreadID = req.ThreadID
	}
	if resp.UserID == "" {
		resp.UserID = req.UserID
	}
	return resp, nil
}

func newTestServer(t *testing.T, store memory.Store, runner Runner) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		ThreadHistoryLimit: 10,
		SummaryLimit:       5,
		AllowAnyOrigin:     true,
	}
	metrics := observability.NewMetrics(fmt.Sprintf("riskagent_test_httpapi_%d", time.Now().UnixNano()))
	srv := New(cfg, store, runner, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, memory.NewInMemoryStore(), &stubRunner{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		resp.Body.Close()
		if body["memory_storage"] != "memory" {
			t.Fatalf("%s memory_storage = %v, want memory", path, body["memory_storage"])
		}
	}
}

func TestInvoke(t *testing.T) {
	runner := &stubRunner{resp: agent.TurnResponse{
		Reply:         "Customer 93486 is high credit risk.",
		MemoryEnabled: true,
		MemoryStorage: "memory",
	}}
	ts := newTestServer(t, memory.NewInMemoryStore(), runner)

	payload := `{
		"custom_inputs": {"user_id": "u1", "thread_id": "t1"},
		"input": [{"role": "user", "content": "analyze customer 93486"}]
	}`
	resp, err := http.Post(ts.URL+"/api/agent/invoke", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Output) != 1 || len(body.Output[0].Content) != 1 {
		t.Fatalf("output shape = %+v", body.Output)
	}
	if body.Output[0].Role != "assistant" || body.Output[0].Type != "message" {
		t.Fatalf("output item = %+v", body.Output[0])
	}
	if got := body.Output[0].Content[0].Text; got != "Customer 93486 is high credit risk." {
		t.Fatalf("text = %q", got)
	}
	if body.CustomOutputs["thread_id"] != "t1" || body.CustomOutputs["user_id"] != "u1" {
		t.Fatalf("custom_outputs = %+v", body.CustomOutputs)
	}
	if body.CustomOutputs["memory_enabled"] != true {
		t.Fatalf("memory_enabled = %v", body.CustomOutputs["memory_enabled"])
	}

	if runner.last.UserID != "u1" || runner.last.ThreadID != "t1" {
		t.Fatalf("runner request = %+v", runner.last)
	}
	if len(runner.last.Input) != 1 || runner.last.Input[0].Content != "analyze customer 93486" {
		t.Fatalf("runner input = %+v", runner.last.Input)
	}
}

func TestInvokeRejectsEmptyInput(t *testing.T) {
	ts := newTestServer(t, memory.NewInMemoryStore(), &stubRunner{})

	for name, payload := range map[string]string{
		"empty body":  "",
		"empty input": `{"custom_inputs": {"user_id": "u1"}, "input": []}`,
	} {
		resp, err := http.Post(ts.URL+"/api/agent/invoke", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("%s: POST error = %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestInvokeModelErrorIsBadGateway(t *testing.T) {
	runner := &stubRunner{err: errors.New("model call failed: connection refused")}
	ts := newTestServer(t, memory.NewInMemoryStore(), runner)

	payload := `{"input": [{"role": "user", "content": "hi"}]}`
	resp, err := http.Post(ts.URL+"/api/agent/invoke", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "model_error" {
		t.Fatalf("code = %q, want model_error", body.Code)
	}
}

func TestUserMemoryEndpoint(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.StoreMemory(ctx, "u1", "risk_assessments", "customer_93486", "HIGH_RISK"); err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}
	if err := store.StoreSummary(ctx, "u1", "t1", "Analyzed customers: 93486", []string{"93486"}); err != nil {
		t.Fatalf("StoreSummary() error = %v", err)
	}
	ts := newTestServer(t, store, &stubRunner{})

	resp, err := http.Get(ts.URL + "/api/memory/user/u1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		UserID        string                       `json:"user_id"`
		Memories      []memory.MemoryRecord        `json:"memories"`
		Conversations []memory.ConversationSummary `json:"conversations"`
		Storage       string                       `json:"storage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "u1" || body.Storage != "memory" {
		t.Fatalf("body = %+v", body)
	}
	if len(body.Memories) != 1 || body.Memories[0].Value != "HIGH_RISK" {
		t.Fatalf("memories = %+v", body.Memories)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].ThreadID != "t1" {
		t.Fatalf("conversations = %+v", body.Conversations)
	}
}

func TestUserMemoryEndpointEmptyUser(t *testing.T) {
	ts := newTestServer(t, memory.NewInMemoryStore(), &stubRunner{})

	resp, err := http.Get(ts.URL + "/api/memory/user/unknown")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Memories      []memory.MemoryRecord        `json:"memories"`
		Conversations []memory.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Arrays must be present and empty, never null.
	if body.Memories == nil || body.Conversations == nil {
		t.Fatalf("memories/conversations missing: %+v", body)
	}
}

func TestClearMemoryPreservesHistory(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.StoreMemory(ctx, "u1", "risk_assessments", "customer_93486", "HIGH_RISK"); err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}
	if err := store.AppendTurn(ctx, memory.TurnRecord{ThreadID: "t1", UserID: "u1", Role: memory.RoleUser, Content: "analyze 93486"}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	ts := newTestServer(t, store, &stubRunner{})

	resp, err := http.Post(ts.URL+"/api/memory/user/u1/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "cleared" || body["history_preserved"] != true {
		t.Fatalf("body = %+v", body)
	}

	records, _ := store.Memories(ctx, "u1", "")
	if len(records) != 0 {
		t.Fatalf("records after clear = %+v", records)
	}
	turns, _ := store.ThreadTurns(ctx, "t1", 10)
	if len(turns) != 1 {
		t.Fatalf("turns after clear = %d, want 1", len(turns))
	}
}

func TestThreadHistoryEndpoint(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	for i, content := range []string{"question", "answer"} {
		role := memory.RoleUser
		if i == 1 {
			role = memory.RoleAssistant
		}
		err := store.AppendTurn(ctx, memory.TurnRecord{
			ThreadID: "t1", UserID: "u1", Role: role,
			Content: content, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}
	ts := newTestServer(t, store, &stubRunner{})

	resp, err := http.Get(ts.URL + "/api/memory/thread/t1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		ThreadID string         `json:"thread_id"`
		Messages []inputMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ThreadID != "t1" || len(body.Messages) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Messages[0].Role != "user" || body.Messages[0].Content != "question" {
		t.Fatalf("messages[0] = %+v", body.Messages[0])
	}
}

func TestListThreadsEndpoint(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.AppendTurn(ctx, memory.TurnRecord{ThreadID: "t1", UserID: "u1", Role: memory.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	ts := newTestServer(t, store, &stubRunner{})

	resp, err := http.Get(ts.URL + "/api/memory/user/u1/threads")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		UserID  string              `json:"user_id"`
		Threads []memory.ThreadInfo `json:"threads"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Threads) != 1 || body.Threads[0].ThreadID != "t1" {
		t.Fatalf("threads = %+v", body.Threads)
	}
	if body.Threads[0].FirstMessage != "hello" || body.Threads[0].MessageCount != 1 {
		t.Fatalf("thread info = %+v", body.Threads[0])
	}
}

func TestChatWebSocket(t *testing.T) {
	runner := &stubRunner{resp: agent.TurnResponse{
		Reply:         "Hello there.",
		ThreadID:      "t-ws",
		UserID:        "u1",
		MemoryStorage: "memory",
	}}
	ts := newTestServer(t, memory.NewInMemoryStore(), runner)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(chatMessage{UserID: "u1", Content: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply chatReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "reply" || reply.Reply != "Hello there." || reply.ThreadID != "t-ws" {
		t.Fatalf("reply = %+v", reply)
	}

	// Empty content is rejected without closing the connection.
	if err := conn.WriteJSON(chatMessage{UserID: "u1", Content: "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "error" || reply.Code != "invalid_message" {
		t.Fatalf("reply = %+v", reply)
	}
}
