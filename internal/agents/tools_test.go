package agents

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
	"ohlcv-analyst/internal/query"
	"ohlcv-analyst/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testEngine() *query.Engine {
	return query.NewEngine(store.NewDataset([]models.Bar{
		models.NewBar(day("2024-01-01"), 100, 115, 95, 110, 1000),
		models.NewBar(day("2024-01-02"), 110, 112, 88, 90, 3000),
		models.NewBar(day("2024-02-01"), 95, 99, 90, 96, 2000),
	}))
}

type stubKnowledge struct {
	answer string
	err    error
}

func (k stubKnowledge) Answer(_ context.Context, q string) (string, error) {
	return k.answer + q, k.err
}

func TestRegistry_DescribeOrderIsStable(t *testing.T) {
	want := []string{
		"count_bullish_days",
		"max_closing_price",
		"min_opening_price",
		"average_closing_price",
		"total_volume",
		"percentage_change",
		"top_volume_days",
		"search_context",
	}

	r := NewRegistry(testEngine(), stubKnowledge{})
	for round := 0; round < 3; round++ {
		specs := r.Describe()
		if len(specs) != len(want) {
			t.Fatalf("Expected %d tools, got %d", len(want), len(specs))
		}
		for i, s := range specs {
			if s.Name != want[i] {
				t.Errorf("Tool %d: expected %s, got %s", i, want[i], s.Name)
			}
		}
	}

	tools := r.OpenAITools()
	if len(tools) != len(want) {
		t.Fatalf("Expected %d OpenAI tools, got %d", len(want), len(tools))
	}
	for i, tool := range tools {
		if tool.Function == nil || tool.Function.Name != want[i] {
			t.Errorf("OpenAI tool %d does not match catalog order", i)
		}
	}
}

func TestRegistry_WithoutKnowledgeOmitsSearchContext(t *testing.T) {
	r := NewRegistry(testEngine(), nil)
	if _, ok := r.Lookup("search_context"); ok {
		t.Error("search_context should not be registered without a knowledge source")
	}
	if len(r.Describe()) != 7 {
		t.Errorf("Expected 7 dataset tools, got %d", len(r.Describe()))
	}
}

func TestNewRegistryFromTools_RejectsDuplicates(t *testing.T) {
	h := func(context.Context, Args) (Value, error) { return IntValue(1), nil }
	_, err := NewRegistryFromTools(
		NewTool(ToolSpec{Name: "echo"}, true, h),
		NewTool(ToolSpec{Name: "ECHO"}, true, h),
	)
	if err == nil {
		t.Fatal("Expected duplicate name error")
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(testEngine(), stubKnowledge{answer: "advice: "})
	ctx := context.Background()

	tests := []struct {
		name    string
		call    ToolCall
		want    string
		wantErr error
	}{
		{"count bullish", ToolCall{Name: "count_bullish_days", Arguments: `{"year": 2024}`}, "2", nil},
		{"case insensitive name", ToolCall{Name: "Count_Bullish_Days", Arguments: `{"year": 2024}`}, "2", nil},
		{"integral float year", ToolCall{Name: "count_bullish_days", Arguments: `{"year": 2024.0}`}, "2", nil},
		{"string year", ToolCall{Name: "count_bullish_days", Arguments: `{"year": "2024"}`}, "2", nil},
		{"max close", ToolCall{Name: "max_closing_price", Arguments: `{"year": 2024}`}, "110", nil},
		{"max close empty year", ToolCall{Name: "max_closing_price", Arguments: `{"year": 1990}`}, "NaN", nil},
		{"min open", ToolCall{Name: "min_opening_price", Arguments: `{"year": 2024, "month": 1}`}, "100", nil},
		{"average close", ToolCall{Name: "average_closing_price", Arguments: `{"start_date": "2024-01-01", "end_date": "2024-01-02"}`}, "100", nil},
		{"total volume", ToolCall{Name: "total_volume", Arguments: `{"year": 2024}`}, "6000", nil},
		{"top volume", ToolCall{Name: "top_volume_days", Arguments: `{"n": 2, "year": 2024}`}, "2024-01-02: 3000\n2024-02-01: 2000", nil},
		{"top volume empty year", ToolCall{Name: "top_volume_days", Arguments: `{"n": 2, "year": 1990}`}, query.NoYearData, nil},
		{"search context", ToolCall{Name: "search_context", Arguments: `{"query": "what is a dividend"}`}, "advice: what is a dividend", nil},
		{"unknown tool", ToolCall{Name: "predict_price", Arguments: `{}`}, "", apperrors.ErrUnknownTool},
		{"missing arg", ToolCall{Name: "total_volume", Arguments: `{}`}, "", apperrors.ErrInvalidArgument},
		{"null arg", ToolCall{Name: "total_volume", Arguments: `{"year": null}`}, "", apperrors.ErrInvalidArgument},
		{"fractional year", ToolCall{Name: "total_volume", Arguments: `{"year": 2024.5}`}, "", apperrors.ErrInvalidArgument},
		{"bad month", ToolCall{Name: "min_opening_price", Arguments: `{"year": 2024, "month": 13}`}, "", apperrors.ErrInvalidArgument},
		{"bad date", ToolCall{Name: "average_closing_price", Arguments: `{"start_date": "01/02/2024", "end_date": "2024-01-02"}`}, "", apperrors.ErrInvalidArgument},
		{"negative n", ToolCall{Name: "top_volume_days", Arguments: `{"n": -1, "year": 2024}`}, "", apperrors.ErrInvalidArgument},
		{"invalid json", ToolCall{Name: "total_volume", Arguments: `{"year":`}, "", apperrors.ErrInvalidArgument},
		{"non-object json", ToolCall{Name: "total_volume", Arguments: `[2024]`}, "", apperrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.call.ID = "call_x"
			res := r.Execute(ctx, tt.call)
			if res.CallID != "call_x" {
				t.Errorf("Expected call ID to be preserved, got %q", res.CallID)
			}
			if tt.wantErr != nil {
				if !errors.Is(res.Err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, res.Err)
				}
				if !strings.HasPrefix(res.Text(), "Error executing tool") {
					t.Errorf("Error result should render as an error message, got %q", res.Text())
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("Unexpected error: %v", res.Err)
			}
			if got := res.Text(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRegistry_PercentageChange(t *testing.T) {
	r := NewRegistry(testEngine(), nil)
	res := r.Execute(context.Background(), ToolCall{
		ID:        "1",
		Name:      "percentage_change",
		Arguments: `{"start_date": "2024-01-01", "end_date": "2024-01-02"}`,
	})
	if res.Err != nil {
		t.Fatalf("Unexpected error: %v", res.Err)
	}
	got, err := strconv.ParseFloat(res.Text(), 64)
	if err != nil {
		t.Fatalf("Result is not a number: %q", res.Text())
	}
	if math.Abs(got-(-18.18)) > 0.01 {
		t.Errorf("Expected about -18.18, got %v", got)
	}

	// Missing start date yields NaN rather than an error.
	res = r.Execute(context.Background(), ToolCall{
		ID:        "2",
		Name:      "percentage_change",
		Arguments: `{"start_date": "2024-01-03", "end_date": "2024-01-02"}`,
	})
	if res.Err != nil || res.Text() != "NaN" {
		t.Errorf("Expected NaN, got %q (%v)", res.Text(), res.Err)
	}
}

func TestRegistry_ExecuteRecoversPanics(t *testing.T) {
	r, err := NewRegistryFromTools(NewTool(ToolSpec{Name: "boom"}, true, func(context.Context, Args) (Value, error) {
		panic("kaboom")
	}))
	if err != nil {
		t.Fatal(err)
	}
	res := r.Execute(context.Background(), ToolCall{ID: "1", Name: "boom"})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "kaboom") {
		t.Errorf("Expected panic to be reported as an error, got %v", res.Err)
	}
}

func TestRegistry_SearchContextError(t *testing.T) {
	r := NewRegistry(testEngine(), stubKnowledge{err: errors.New("offline")})
	res := r.Execute(context.Background(), ToolCall{ID: "1", Name: "search_context", Arguments: `{"query": "x"}`})
	if res.Err == nil {
		t.Fatal("Expected knowledge error to surface in the result")
	}
}

func TestCoerceArgs_DateAcceptsTimestamp(t *testing.T) {
	params := []ParamSpec{{Name: "d", Type: ParamDate}}
	args, err := CoerceArgs(params, `{"d": "2024-03-05T15:04:05Z"}`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := args.Date("d"); !got.Equal(day("2024-03-05")) {
		t.Errorf("Expected 2024-03-05, got %v", got)
	}
}

func TestValue_String(t *testing.T) {
	if got := NumberValue(math.NaN()).String(); got != "NaN" {
		t.Errorf("Expected NaN, got %s", got)
	}
	if got := IntValue(7).String(); got != "7" {
		t.Errorf("Expected 7, got %s", got)
	}
	if got := NumberValue(110.5).String(); got != "110.5" {
		t.Errorf("Expected 110.5, got %s", got)
	}
}

// Feature: ohlcv-analyst, Property 1: Integer coercion accepts ints, integral floats and numeric strings
//
// Property: For any integer, the JSON int, the JSON float with a zero fraction
// and the quoted decimal string all coerce to that integer.
func TestProperty_IntegerCoercion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	params := []ParamSpec{{Name: "n", Type: ParamInteger}}

	properties.Property("all integer spellings coerce to the same value", prop.ForAll(
		func(n int) bool {
			s := itoa(n)
			for _, raw := range []string{
				`{"n": ` + s + `}`,
				`{"n": ` + s + `.0}`,
				`{"n": "` + s + `"}`,
			} {
				args, err := CoerceArgs(params, raw)
				if err != nil || args.Int("n") != n {
					return false
				}
			}
			return true
		},
		gen.IntRange(-100000, 100000),
	))

	properties.TestingRun(t)
}

// Feature: ohlcv-analyst, Property 2: Tool execution is deterministic
//
// Property: Executing the same dataset tool call twice yields the same text.
func TestProperty_ToolExecutionIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	r := NewRegistry(testEngine(), nil)

	properties.Property("same call, same result", prop.ForAll(
		func(year, n int) bool {
			calls := []ToolCall{
				{Name: "count_bullish_days", Arguments: `{"year": ` + itoa(year) + `}`},
				{Name: "total_volume", Arguments: `{"year": ` + itoa(year) + `}`},
				{Name: "top_volume_days", Arguments: `{"n": ` + itoa(n) + `, "year": ` + itoa(year) + `}`},
			}
			for _, c := range calls {
				a := r.Execute(context.Background(), c)
				b := r.Execute(context.Background(), c)
				if a.Text() != b.Text() {
					return false
				}
			}
			return true
		},
		gen.IntRange(2020, 2026),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
