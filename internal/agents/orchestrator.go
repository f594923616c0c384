package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sourcegraph/conc/iter"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/logging"
	"ohlcv-analyst/internal/security"
	"ohlcv-analyst/pkg/utils"
)

// Phase names used in logs and errors.
const (
	PhasePlanning  = "planning"
	PhaseSynthesis = "synthesis"
)

// OrchestratorConfig controls retries and prompts.
type OrchestratorConfig struct {
	// Attempts is the total number of tries per reasoning phase.
	Attempts    int
	CallTimeout time.Duration
	RetryDelay  time.Duration
	// DatasetSummary describes the loaded data to the model, e.g. symbol and date range.
	DatasetSummary string
}

// DefaultOrchestratorConfig returns three attempts with a 30s per-call timeout.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Attempts:    3,
		CallTimeout: 30 * time.Second,
		RetryDelay:  500 * time.Millisecond,
	}
}

// ToolCallLog records one executed tool call.
type ToolCallLog struct {
	ID        string `json:"id"`
	ToolName  string `json:"tool"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// ChainOfThought captures how a question was answered.
type ChainOfThought struct {
	RequestID string        `json:"request_id"`
	Query     string        `json:"query"`
	ToolCalls []ToolCallLog `json:"tool_calls"`
	Response  string        `json:"response"`
}

// Orchestrator answers questions in two reasoning phases: planning, where the
// model selects tool calls, and synthesis, where it writes the answer from
// the tool results. It keeps no state between requests.
type Orchestrator struct {
	reasoner Reasoner
	registry *Registry
	catalog  []openai.Tool
	config   OrchestratorConfig
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(reasoner Reasoner, registry *Registry, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Orchestrator{
		reasoner: reasoner,
		registry: registry,
		catalog:  registry.OpenAITools(),
		config:   cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Registry returns the tool registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Ask answers query. Individual tool failures are folded into the
// conversation; only exhausted reasoning phases and cancellation fail.
func (o *Orchestrator) Ask(ctx context.Context, query string) (*ChainOfThought, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewValidationError("query", query, "must not be empty")
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	logger := o.logger.With().Str("request_id", requestID).Logger()
	ctx = logging.WithLogger(ctx, logger)
	start := time.Now()

	cot := &ChainOfThought{
		RequestID: requestID,
		Query:     query,
		ToolCalls: make([]ToolCallLog, 0),
	}

	planMessages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: o.planningPrompt()},
		{Role: openai.ChatMessageRoleUser, Content: query},
	}
	plan, err := o.complete(ctx, logger, PhasePlanning, apperrors.ErrPlanningUnavailable, planMessages, o.catalog, validatePlan)
	if err != nil {
		return nil, err
	}

	calls := normalizeCalls(plan.ToolCalls)
	plan.ToolCalls = toOpenAICalls(calls)
	logger.Debug().Int("tool_calls", len(calls)).Msg("Plan received")

	results, err := o.execute(ctx, logger, calls)
	if err != nil {
		return nil, err
	}

	synthMessages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: synthesisPrompt},
		{Role: openai.ChatMessageRoleUser, Content: query},
	}
	if len(calls) > 0 {
		synthMessages = append(synthMessages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   plan.Content,
			ToolCalls: plan.ToolCalls,
		})
		for _, c := range calls {
			r := results[c.ID]
			synthMessages = append(synthMessages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    r.Text(),
				ToolCallID: c.ID,
			})
			cot.ToolCalls = append(cot.ToolCalls, ToolCallLog{
				ID:        c.ID,
				ToolName:  c.Name,
				Arguments: c.Arguments,
				Result:    r.Text(),
				IsError:   r.Err != nil,
			})
		}
	}

	answer, err := o.complete(ctx, logger, PhaseSynthesis, apperrors.ErrSynthesisUnavailable, synthMessages, nil, validateAnswer)
	if err != nil {
		return nil, err
	}
	cot.Response = answer.Content

	logger.Info().
		Int("tool_calls", len(cot.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("Query answered")
	return cot, nil
}

// execute runs all calls concurrently and returns results keyed by call ID.
func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, calls []ToolCall) (map[string]ToolResult, error) {
	results := iter.Map(calls, func(c *ToolCall) ToolResult {
		if err := ctx.Err(); err != nil {
			return ToolResult{CallID: c.ID, Tool: c.Name, Arguments: c.Arguments, Err: err}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		defer cancel()
		r := o.registry.Execute(callCtx, *c)
		logging.LogToolCall(logger, r.CallID, r.Tool, r.Duration, r.Err)
		return r
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]ToolResult, len(results))
	for _, r := range results {
		byID[r.CallID] = r
	}
	return byID, nil
}

// complete runs one reasoning phase with bounded retries. Each attempt has
// its own timeout. Exhaustion yields an AgentError carrying sentinel.
func (o *Orchestrator) complete(
	ctx context.Context,
	logger zerolog.Logger,
	phase string,
	sentinel error,
	messages []openai.ChatCompletionMessage,
	tools []openai.Tool,
	validate func(openai.ChatCompletionMessage) error,
) (openai.ChatCompletionMessage, error) {
	phaseLogger := logging.WithPhase(logger, phase)
	cfg := utils.RetryConfig{
		MaxAttempts:   o.config.Attempts,
		InitialDelay:  o.config.RetryDelay,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		OnFailure: func(attempt int, err error) {
			phaseLogger.Warn().Str("error", security.MaskSecrets(err.Error())).Int("attempt", attempt).Int("max_attempts", o.config.Attempts).Msg("Reasoning call failed")
		},
	}

	attempt := 0
	msg, attempts, err := utils.RetryWithResult(ctx, cfg, func(ctx context.Context) (openai.ChatCompletionMessage, error) {
		attempt++
		callCtx := ctx
		if o.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.config.CallTimeout)
			defer cancel()
		}

		start := time.Now()
		msg, err := o.reasoner.Chat(callCtx, messages, tools)
		if err == nil {
			err = validate(msg)
		}
		logging.LogAPICall(phaseLogger, phase, attempt, time.Since(start), err)
		return msg, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("%s aborted: %w", phase, ctxErr)
		}
		phaseLogger.Error().Str("error", security.MaskSecrets(err.Error())).Int("attempts", attempts).Msg("Reasoning phase unavailable")
		return openai.ChatCompletionMessage{}, apperrors.NewAgentError(phase, attempts, sentinel, err)
	}
	return msg, nil
}

func validatePlan(msg openai.ChatCompletionMessage) error {
	for i, tc := range msg.ToolCalls {
		if strings.TrimSpace(tc.Function.Name) == "" {
			return fmt.Errorf("%w: tool call %d has no function name", apperrors.ErrMalformedResponse, i)
		}
	}
	return nil
}

func validateAnswer(msg openai.ChatCompletionMessage) error {
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: empty answer", apperrors.ErrMalformedResponse)
	}
	return nil
}

// normalizeCalls converts model tool calls, giving every call a unique ID.
func normalizeCalls(tcs []openai.ToolCall) []ToolCall {
	calls := make([]ToolCall, len(tcs))
	seen := make(map[string]bool, len(tcs))
	for i, tc := range tcs {
		id := strings.TrimSpace(tc.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("call_%d", i)
		}
		for seen[id] {
			id += "_"
		}
		seen[id] = true
		calls[i] = ToolCall{ID: id, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return calls
}

func toOpenAICalls(calls []ToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openai.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = openai.ToolCall{
			ID:   c.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		}
	}
	return out
}

func (o *Orchestrator) planningPrompt() string {
	var b strings.Builder
	b.WriteString("You are a financial data analyst answering questions about a single instrument's daily price history.\n")
	if o.config.DatasetSummary != "" {
		b.WriteString("Dataset: ")
		b.WriteString(o.config.DatasetSummary)
		b.WriteString("\n")
	}
	b.WriteString("Use the provided tools to compute facts from the dataset instead of guessing. ")
	b.WriteString("Request every tool call you need at once. Dates use the YYYY-MM-DD format. ")
	b.WriteString("If the question needs no data, answer without calling tools.")
	return b.String()
}

const synthesisPrompt = "You are a financial data analyst. Answer the user's question using the tool results in this conversation. " +
	"A result of NaN or a 'No data' notice means the dataset has no bars for that selection; say so rather than inventing numbers. " +
	"If a tool reported an error, explain what could not be computed. Be concise."
