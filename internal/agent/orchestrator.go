// Package agent implements the tool-calling orchestration loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soferos/govpulse/internal/llm"
	"github.com/soferos/govpulse/internal/redact"
	"github.com/soferos/govpulse/internal/tools"
)

// systemDirective pins the assistant to its domain. It is the first
// message of every conversation and is never exposed to callers.
const systemDirective = "You are an expert Government data assistant. " +
	"1. Answer ONLY questions about Scottish Deprivation or UK Industrial Strategy.\n" +
	"2. REFUSE questions about foreign countries or unrelated topics.\n" +
	"3. Use 'get_ranking' for lists, 'lookup_neighborhood' for places, 'query_policy_documents' for text."

// DefaultMaxIterations bounds the model/tool round trips for one query.
const DefaultMaxIterations = 5

// Answer is the result of one query through the orchestrator. The
// original query is preserved verbatim; everything downstream of the
// redactor only ever saw RedactedQuery.
type Answer struct {
	OriginalQuery string `json:"original_query"`
	RedactedQuery string `json:"redacted_query"`
	Response      string `json:"response"`
	Status        string `json:"status"`
}

// Answer statuses. Internal failure detail stays in logs; callers see
// only success or error.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrIterationLimit is returned when a query exhausts its round-trip
// budget without the model producing a final text response.
var ErrIterationLimit = errors.New("iteration limit exceeded")

// Orchestrator drives the conversation between the model and the tool
// registry. It is stateless across queries: each Ask builds a fresh
// message history, so one Orchestrator serves concurrent callers.
type Orchestrator struct {
	logger        *slog.Logger
	llm           llm.Client
	registry      *tools.Registry
	model         string
	maxIterations int
}

// New creates an orchestrator. maxIterations values below 1 fall back
// to DefaultMaxIterations.
func New(logger *slog.Logger, client llm.Client, registry *tools.Registry, model string, maxIterations int) *Orchestrator {
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		logger:        logger,
		llm:           client,
		registry:      registry,
		model:         model,
		maxIterations: maxIterations,
	}
}

// Ask answers a natural-language query. The query is redacted before
// the model or any tool sees it. Errors are returned for the caller's
// logs; the Answer carries only a generic status so internal detail
// never leaks to end users.
func (o *Orchestrator) Ask(ctx context.Context, query string) (*Answer, error) {
	redacted := redact.Redact(query)
	answer := &Answer{
		OriginalQuery: query,
		RedactedQuery: redacted,
	}

	o.logger.Info("query received",
		"length", len(redacted),
		"redacted", redacted != query,
	)

	response, err := o.run(ctx, redacted)
	if err != nil {
		o.logger.Error("query failed", "error", err)
		answer.Status = StatusError
		answer.Response = "Internal Server Error"
		return answer, err
	}

	answer.Status = StatusSuccess
	answer.Response = response
	return answer, nil
}

// run executes the bounded model/tool loop and returns the model's
// final text.
func (o *Orchestrator) run(ctx context.Context, query string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemDirective},
		{Role: "user", Content: query},
	}
	toolDefs := o.registry.List()

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("query cancelled: %w", err)
		}

		resp, err := o.llm.Chat(ctx, o.model, messages, toolDefs)
		if err != nil {
			return "", fmt.Errorf("model request: %w", err)
		}

		if len(resp.Message.ToolCalls) == 0 {
			o.logger.Debug("final response",
				"iterations", iteration,
				"length", len(resp.Message.Content),
			)
			return strings.TrimSpace(resp.Message.Content), nil
		}

		messages = append(messages, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			messages = append(messages, o.executeCall(ctx, iteration, call))
		}
	}

	return "", fmt.Errorf("%w: no final response after %d iterations", ErrIterationLimit, o.maxIterations)
}

// executeCall runs one tool call and wraps its result as a tool
// message. Unknown tool names and handler errors become textual
// results so the model can recover on the next iteration.
func (o *Orchestrator) executeCall(ctx context.Context, iteration int, call llm.ToolCall) llm.Message {
	name := call.Function.Name
	o.logger.Info("tool call",
		"iteration", iteration,
		"tool", name,
	)

	result, err := o.registry.Execute(ctx, name, call.Function.Arguments)
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			result = fmt.Sprintf("Error: %v", err)
		} else {
			o.logger.Warn("tool execution failed", "tool", name, "error", err)
			result = fmt.Sprintf("Error: tool %s failed: %v", name, err)
		}
	}

	return llm.Message{
		Role:    "tool",
		Content: result,
	}
}
