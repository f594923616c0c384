// Package agents turns natural-language questions into tool calls against the
// query engine and synthesizes the results with a language model.
package agents

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/tidwall/gjson"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/logging"
	"ohlcv-analyst/internal/models"
	"ohlcv-analyst/internal/query"
	"ohlcv-analyst/pkg/utils"
)

// ParamType is the semantic type of a tool parameter.
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamDate    ParamType = "date"
	ParamText    ParamType = "text"
)

// ParamSpec describes one tool parameter. All parameters are required.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Description string
}

// ToolSpec describes a tool to the reasoning component.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
}

// Handler executes a tool with coerced arguments.
type Handler func(ctx context.Context, args Args) (Value, error)

// Tool couples a spec with its handler.
type Tool struct {
	Spec ToolSpec
	// Grounded tools read the dataset; ungrounded ones answer from general knowledge.
	Grounded bool
	handler  Handler
}

// NewTool creates a tool.
func NewTool(spec ToolSpec, grounded bool, handler Handler) Tool {
	return Tool{Spec: spec, Grounded: grounded, handler: handler}
}

// ValueKind identifies the shape of a tool result.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindInteger
	KindText
)

// Value is the successful output of a tool.
type Value struct {
	Kind ValueKind
	Num  float64
	Int  int
	Text string
}

// NumberValue wraps a decimal result. NaN marks an empty selection.
func NumberValue(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// IntValue wraps a count.
func IntValue(v int) Value { return Value{Kind: KindInteger, Int: v} }

// TextValue wraps a report or free text.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// String renders the value as plain text for the conversation.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return utils.FormatNumber(v.Num)
	case KindInteger:
		return strconv.Itoa(v.Int)
	default:
		return v.Text
	}
}

// ToolCall is a requested invocation with raw JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	CallID    string
	Tool      string
	Arguments string
	Value     Value
	Err       error
	Duration  time.Duration
}

// Text renders the result, or the error, for the next conversation turn.
func (r ToolResult) Text() string {
	if r.Err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", r.Tool, r.Err)
	}
	return r.Value.String()
}

// Args holds coerced tool arguments keyed by parameter name.
type Args struct {
	values map[string]interface{}
}

// Int returns an integer argument.
func (a Args) Int(name string) int {
	v, _ := a.values[name].(int)
	return v
}

// Date returns a date argument.
func (a Args) Date(name string) time.Time {
	v, _ := a.values[name].(time.Time)
	return v
}

// Text returns a text argument.
func (a Args) Text(name string) string {
	v, _ := a.values[name].(string)
	return v
}

// Knowledge answers free-text questions without the dataset.
type Knowledge interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Registry is the fixed set of tools offered to the reasoning component.
// It is built once and only read afterwards.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistryFromTools builds a registry from tools in order. Names are
// matched case-insensitively and must be unique.
func NewRegistryFromTools(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(tools))}
	for _, t := range tools {
		key := strings.ToLower(t.Spec.Name)
		if key == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Spec.Name)
		}
		if t.handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", t.Spec.Name)
		}
		r.byName[key] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// NewRegistry registers the dataset tools of engine. When knowledge is non-nil
// the ungrounded search_context tool is registered too.
func NewRegistry(engine *query.Engine, knowledge Knowledge) *Registry {
	tools := DatasetTools(engine)
	if knowledge != nil {
		tools = append(tools, SearchContextTool(knowledge))
	}
	r, err := NewRegistryFromTools(tools...)
	if err != nil {
		// Built-in names are static and unique.
		panic(err)
	}
	return r
}

// Describe returns the tool specs in registration order.
func (r *Registry) Describe() []ToolSpec {
	specs := make([]ToolSpec, len(r.tools))
	for i, t := range r.tools {
		specs[i] = t.Spec
		specs[i].Params = append([]ParamSpec(nil), t.Spec.Params...)
	}
	return specs
}

// Lookup finds a tool by name, case-insensitively.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// OpenAITools derives the function-calling catalog from the tool specs.
func (r *Registry) OpenAITools() []openai.Tool {
	out := make([]openai.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		props := make(map[string]jsonschema.Definition, len(t.Spec.Params))
		required := make([]string, 0, len(t.Spec.Params))
		for _, p := range t.Spec.Params {
			props[p.Name] = paramSchema(p)
			required = append(required, p.Name)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Spec.Name,
				Description: t.Spec.Description,
				Parameters: jsonschema.Definition{
					Type:       jsonschema.Object,
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}

func paramSchema(p ParamSpec) jsonschema.Definition {
	switch p.Type {
	case ParamInteger:
		return jsonschema.Definition{Type: jsonschema.Integer, Description: p.Description}
	case ParamDate:
		return jsonschema.Definition{Type: jsonschema.String, Description: p.Description + " (format: YYYY-MM-DD)"}
	default:
		return jsonschema.Definition{Type: jsonschema.String, Description: p.Description}
	}
}

// Execute resolves and runs one call. Failures are reported in the result,
// never returned, so one bad call cannot abort a conversation.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (res ToolResult) {
	start := time.Now()
	res = ToolResult{CallID: call.ID, Tool: call.Name, Arguments: call.Arguments}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("tool %s panicked: %v", call.Name, p)
			logger := logging.FromContext(ctx)
			logger.Error().Str("call_id", call.ID).Str("tool", call.Name).Interface("panic", p).Msg("Tool panicked")
		}
		res.Duration = time.Since(start)
	}()

	tool, ok := r.Lookup(call.Name)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", apperrors.ErrUnknownTool, call.Name)
		return res
	}
	res.Tool = tool.Spec.Name

	args, err := CoerceArgs(tool.Spec.Params, call.Arguments)
	if err != nil {
		res.Err = err
		return res
	}

	res.Value, res.Err = tool.handler(ctx, args)
	return res
}

// CoerceArgs validates raw JSON arguments against params.
func CoerceArgs(params []ParamSpec, raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		raw = "{}"
	}
	if !gjson.Valid(raw) {
		return Args{}, apperrors.NewValidationError("arguments", raw, "not valid JSON")
	}
	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return Args{}, apperrors.NewValidationError("arguments", raw, "must be a JSON object")
	}

	values := make(map[string]interface{}, len(params))
	for _, p := range params {
		field := obj.Get(gjsonKey(p.Name))
		if !field.Exists() || field.Type == gjson.Null {
			return Args{}, apperrors.NewValidationError(p.Name, nil, "is required")
		}
		v, err := coerce(p, field)
		if err != nil {
			return Args{}, err
		}
		values[p.Name] = v
	}
	return Args{values: values}, nil
}

func coerce(p ParamSpec, field gjson.Result) (interface{}, error) {
	switch p.Type {
	case ParamInteger:
		return coerceInt(p.Name, field)
	case ParamDate:
		if field.Type != gjson.String {
			return nil, apperrors.NewValidationError(p.Name, field.Raw, "must be a date string in YYYY-MM-DD format")
		}
		return parseDate(p.Name, field.Str)
	default:
		if field.Type != gjson.String || strings.TrimSpace(field.Str) == "" {
			return nil, apperrors.NewValidationError(p.Name, field.Raw, "must be a non-empty string")
		}
		return field.Str, nil
	}
}

func coerceInt(name string, field gjson.Result) (int, error) {
	switch field.Type {
	case gjson.Number:
		if n, err := strconv.Atoi(field.Raw); err == nil {
			return n, nil
		}
		f := field.Num
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, apperrors.NewValidationError(name, field.Raw, "must be an integer")
		}
		return int(f), nil
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(field.Str))
		if err != nil {
			return 0, apperrors.NewValidationError(name, field.Str, "must be an integer")
		}
		return n, nil
	default:
		return 0, apperrors.NewValidationError(name, field.Raw, "must be an integer")
	}
}

func parseDate(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return models.TruncateDate(t), nil
	}
	return time.Time{}, apperrors.NewValidationError(name, s, "must be a date in YYYY-MM-DD format")
}

// gjsonKey escapes path metacharacters so a parameter name is read literally.
func gjsonKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DatasetTools returns the grounded tools backed by engine.
func DatasetTools(engine *query.Engine) []Tool {
	year := ParamSpec{Name: "year", Type: ParamInteger, Description: "Calendar year, e.g. 2023"}

	return []Tool{
		NewTool(ToolSpec{
			Name:        "count_bullish_days",
			Description: "Count days where close > open for a given year.",
			Params:      []ParamSpec{year},
		}, true, func(_ context.Context, a Args) (Value, error) {
			n, err := engine.CountBullishDays(a.Int("year"))
			return IntValue(n), err
		}),
		NewTool(ToolSpec{
			Name:        "max_closing_price",
			Description: "Get the highest closing price in a given year. Returns NaN if the year has no data.",
			Params:      []ParamSpec{year},
		}, true, func(_ context.Context, a Args) (Value, error) {
			v, err := engine.MaxClosingPrice(a.Int("year"))
			return NumberValue(v), err
		}),
		NewTool(ToolSpec{
			Name:        "min_opening_price",
			Description: "Get the lowest opening price in a given month and year. Returns NaN if the month has no data.",
			Params: []ParamSpec{
				year,
				{Name: "month", Type: ParamInteger, Description: "Month number, 1-12"},
			},
		}, true, func(_ context.Context, a Args) (Value, error) {
			v, err := engine.MinOpeningPrice(a.Int("year"), a.Int("month"))
			return NumberValue(v), err
		}),
		NewTool(ToolSpec{
			Name:        "average_closing_price",
			Description: "Calculate the average closing price between two dates, both inclusive.",
			Params: []ParamSpec{
				{Name: "start_date", Type: ParamDate, Description: "First date of the range"},
				{Name: "end_date", Type: ParamDate, Description: "Last date of the range"},
			},
		}, true, func(_ context.Context, a Args) (Value, error) {
			return NumberValue(engine.AverageClosingPrice(a.Date("start_date"), a.Date("end_date"))), nil
		}),
		NewTool(ToolSpec{
			Name:        "total_volume",
			Description: "Calculate the total trading volume for a given year.",
			Params:      []ParamSpec{year},
		}, true, func(_ context.Context, a Args) (Value, error) {
			v, err := engine.TotalVolume(a.Int("year"))
			return NumberValue(v), err
		}),
		NewTool(ToolSpec{
			Name:        "percentage_change",
			Description: "Calculate the percentage change in closing price between two dates. Both dates must be trading days in the dataset, otherwise NaN.",
			Params: []ParamSpec{
				{Name: "start_date", Type: ParamDate, Description: "Trading day to measure from"},
				{Name: "end_date", Type: ParamDate, Description: "Trading day to measure to"},
			},
		}, true, func(_ context.Context, a Args) (Value, error) {
			return NumberValue(engine.PercentageChange(a.Date("start_date"), a.Date("end_date"))), nil
		}),
		NewTool(ToolSpec{
			Name:        "top_volume_days",
			Description: "Get the top N days with the highest trading volume in a given year, one 'date: volume' line per day.",
			Params: []ParamSpec{
				{Name: "n", Type: ParamInteger, Description: "Number of days to return"},
				year,
			},
		}, true, func(_ context.Context, a Args) (Value, error) {
			report, err := engine.TopVolumeDays(a.Int("n"), a.Int("year"))
			return TextValue(report), err
		}),
	}
}

// SearchContextTool answers from general knowledge; it never reads the dataset.
func SearchContextTool(knowledge Knowledge) Tool {
	return NewTool(ToolSpec{
		Name:        "search_context",
		Description: "Answer a general financial question from background knowledge. Does not use the price dataset; prefer the dataset tools for anything about prices or volume.",
		Params: []ParamSpec{
			{Name: "query", Type: ParamText, Description: "The question to research"},
		},
	}, false, func(ctx context.Context, a Args) (Value, error) {
		answer, err := knowledge.Answer(ctx, a.Text("query"))
		if err != nil {
			return Value{}, err
		}
		return TextValue(answer), nil
	})
}
