// Package agent orchestrates one conversational turn: build memory
// context, call the model, execute requested tools, persist turns, and
// extract long-term facts from the reply.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/irisfin/riskagent/internal/extract"
	"github.com/irisfin/riskagent/internal/memory"
	"github.com/irisfin/riskagent/internal/model"
	"github.com/irisfin/riskagent/internal/observability"
	"github.com/irisfin/riskagent/internal/prompt"
	"github.com/irisfin/riskagent/internal/tools"
)

const defaultUserID = "default_user"

const systemPromptTemplate = `You are a Credit Risk Analyst Assistant for banks, helping to identify Customer Credit Risk and report detailed, explainable decisions and recommendations.

%s

### Tools Available:
1. **get_customer_details** - Retrieves customer details, financials, transaction history, and risk indicators for a given **Customer ID**.
2. **credit_risk_report_generator** - Generates a credit risk report based on the customer details retrieved.

### Your Tasks:
1. Retrieve customer financial and behavior information.
2. Analyze risk score, payment patterns, and financial health.
3. If Prediction is 1 -> Customer Credit Risk score is high. If Prediction is 0 -> Customer Credit Risk score is low.
4. Generate a concise decision report that explains the outcome and provides your recommendation.

Respond professionally and insightfully, structuring the report for easy consumption.
- Ensure all details match the provided **Customer ID** before proceeding.
- If the customer id is not present, briefly confirm that the customer is not present in the system.

If you have memory of previous interactions with this user, use that context to provide more personalized responses.`

const internalReferenceTemplate = `[INTERNAL_REFERENCE_ONLY: %s] DO NOT mention or repeat this reference. Just use it if the user asks about previously analyzed customers. Answer ONLY the new question directly and concisely.`

// TurnRequest carries one incoming exchange.
type TurnRequest struct {
	UserID   string
	ThreadID string
	Input    []model.Message
}

// TurnResponse is the reply plus bookkeeping metadata.
type TurnResponse struct {
	Reply         string `json:"reply"`
	ThreadID      string `json:"thread_id"`
	UserID        string `json:"user_id"`
	MemoryEnabled bool   `json:"memory_enabled"`
	MemoryStorage string `json:"memory_storage"`
}

// Agent runs turns against the model with memory injection. All
// collaborators are injected at construction; the agent holds no global
// state.
type Agent struct {
	store        memory.Store
	client       model.Client
	registry     *tools.Registry
	extractor    *extract.Extractor
	metrics      *observability.Metrics
	historyLimit int
	summaryLimit int
}

func New(store memory.Store, client model.Client, registry *tools.Registry, extractor *extract.Extractor, metrics *observability.Metrics, historyLimit, summaryLimit int) *Agent {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if summaryLimit <= 0 {
		summaryLimit = prompt.DigestSummaryLimit
	}
	return &Agent{
		store:        store,
		client:       client,
		registry:     registry,
		extractor:    extractor,
		metrics:      metrics,
		historyLimit: historyLimit,
		summaryLimit: summaryLimit,
	}
}

// RunTurn executes one exchange. Memory writes after the reply are
// best-effort and never affect the returned response.
func (a *Agent) RunTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = defaultUserID
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	// Short-term memory is read before the incoming turn is stored so the
	// current message is not duplicated in the history.
	history := a.threadHistory(ctx, threadID)

	userText := lastUserContent(req.Input)
	if userText != "" {
		if err := a.store.AppendTurn(ctx, memory.TurnRecord{
			ThreadID: threadID,
			UserID:   userID,
			Role:     memory.RoleUser,
			Content:  userText,
		}); err != nil {
			// The turn proceeds; the assistant turn write below will at
			// least have attempted its user counterpart first.
			log.Printf("agent: store user turn failed: %v", err)
		}
	}

	records, summaries := a.longTermMemory(ctx, userID)
	digest := prompt.Digest(records, summaries)
	compact := prompt.CompactDigest(records)

	messages := make([]model.Message, 0, len(history)+len(req.Input)+2)
	messages = append(messages, model.Message{
		Role:    model.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, digest),
	})
	if compact != "" {
		messages = append(messages, model.Message{
			Role:    model.RoleUser,
			Content: fmt.Sprintf(internalReferenceTemplate, compact),
		})
	}
	for _, turn := range history {
		messages = append(messages, model.Message{Role: turn.Role, Content: turn.Content})
	}
	for _, msg := range req.Input {
		if msg.Role == "" {
			msg.Role = model.RoleUser
		}
		messages = append(messages, msg)
	}

	reply, err := a.converse(ctx, messages)
	if err != nil {
		// Stateless retry: no memory digest, no thread history. Session
		// continuity is lost for this turn but the user still gets an
		// answer if the endpoint itself is healthy.
		log.Printf("agent: stateful model call failed, retrying stateless: %v", err)
		stateless := make([]model.Message, 0, len(req.Input)+1)
		stateless = append(stateless, model.Message{
			Role:    model.RoleSystem,
			Content: fmt.Sprintf(systemPromptTemplate, ""),
		})
		for _, msg := range req.Input {
			if msg.Role == "" {
				msg.Role = model.RoleUser
			}
			stateless = append(stateless, msg)
		}
		reply, err = a.converse(ctx, stateless)
		if err != nil {
			a.metrics.TurnsTotal.WithLabelValues("error").Inc()
			return TurnResponse{}, fmt.Errorf("model call failed: %w", err)
		}
	}

	stored := truncateForStorage(reply, 2000)
	if err := a.store.AppendTurn(ctx, memory.TurnRecord{
		ThreadID: threadID,
		UserID:   userID,
		Role:     memory.RoleAssistant,
		Content:  stored,
	}); err != nil {
		log.Printf("agent: store assistant turn failed: %v", err)
	}

	a.persistFacts(ctx, userID, threadID, reply)

	a.metrics.TurnsTotal.WithLabelValues("ok").Inc()
	return TurnResponse{
		Reply:         reply,
		ThreadID:      threadID,
		UserID:        userID,
		MemoryEnabled: true,
		MemoryStorage: a.store.Backend(),
	}, nil
}

// converse performs the model round-trip, executing at most one round of
// requested tools.
func (a *Agent) converse(ctx context.Context, messages []model.Message) (string, error) {
	resp, err := a.callModel(ctx, "primary", model.Request{
		Messages: messages,
		Tools:    a.registry.Specs(),
	})
	if err != nil {
		return "", err
	}
	if len(resp.ToolCalls) == 0 {
		return resp.Content, nil
	}

	// One synthetic turn carries every requested tool result back; there
	// is no multi-round tool loop.
	results := make([]string, 0, len(resp.ToolCalls))
	followUp := append(messages, model.Message{
		Role:      model.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for _, call := range resp.ToolCalls {
		result, ok := a.registry.Execute(ctx, call.Name, call.Arguments)
		outcome := "ok"
		if !ok {
			outcome = "error"
		}
		a.metrics.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
		results = append(results, fmt.Sprintf("Tool %s result: %s", call.Name, result))
		followUp = append(followUp, model.Message{
			Role:       model.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	final, err := a.callModel(ctx, "tool_followup", model.Request{Messages: followUp})
	if err != nil || strings.TrimSpace(final.Content) == "" {
		if err != nil {
			log.Printf("agent: tool follow-up call failed, returning raw tool results: %v", err)
		}
		return strings.Join(results, "\n"), nil
	}
	return final.Content, nil
}

func (a *Agent) callModel(ctx context.Context, mode string, req model.Request) (model.Response, error) {
	start := time.Now()
	resp, err := a.client.Complete(ctx, req)
	a.metrics.ObserveModelLatency(time.Since(start))
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.metrics.ModelCalls.WithLabelValues(mode, outcome).Inc()
	return resp, err
}

// threadHistory returns prior turns of the thread; storage failures mean
// an empty history, never a failed turn.
func (a *Agent) threadHistory(ctx context.Context, threadID string) []memory.TurnRecord {
	history, err := a.store.ThreadTurns(ctx, threadID, a.historyLimit)
	if err != nil {
		log.Printf("agent: thread history unavailable: %v", err)
		return nil
	}
	return history
}

func (a *Agent) longTermMemory(ctx context.Context, userID string) ([]memory.MemoryRecord, []memory.ConversationSummary) {
	records, err := a.store.Memories(ctx, userID, "")
	if err != nil {
		log.Printf("agent: memories unavailable: %v", err)
		records = nil
	}
	summaries, err := a.store.RecentSummaries(ctx, userID, a.summaryLimit)
	if err != nil {
		log.Printf("agent: summaries unavailable: %v", err)
		summaries = nil
	}
	return records, summaries
}

// persistFacts extracts memory candidates from the reply and stores them.
// Every failure here is logged and swallowed: memory writes are never on
// the critical response path.
func (a *Agent) persistFacts(ctx context.Context, userID, threadID, reply string) {
	result := a.extractor.Extract(reply)
	if result.Empty() {
		return
	}

	for memoryType, facts := range result.Facts {
		for _, fact := range facts {
			if err := a.store.StoreMemory(ctx, userID, memoryType, fact.Key, fact.Value); err != nil {
				a.metrics.MemoryWrites.WithLabelValues("error").Inc()
				log.Printf("agent: store memory %s/%s failed: %v", memoryType, fact.Key, err)
				continue
			}
			a.metrics.MemoryWrites.WithLabelValues("ok").Inc()
		}
	}

	if len(result.CustomerIDs) > 0 {
		ids := result.CustomerIDs
		display := ids
		if len(display) > 3 {
			display = display[:3]
		}
		summary := "Analyzed customers: " + strings.Join(display, ", ")
		if err := a.store.StoreSummary(ctx, userID, threadID, summary, ids); err != nil {
			log.Printf("agent: store summary failed: %v", err)
		}
	}
}

// truncateForStorage cuts s to at most max bytes without splitting a rune,
// so the stored text is always valid UTF-8.
func truncateForStorage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func lastUserContent(input []model.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == "" || input[i].Role == model.RoleUser {
			return input[i].Content
		}
	}
	return ""
}
