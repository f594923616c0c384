package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"ohlcv-analyst/internal/agents"
	"ohlcv-analyst/internal/server"
)

func newAskCmd(app *App) *cobra.Command {
	var (
		serverURL string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the dataset",
		Long: `Ask a natural-language question about the dataset.

By default the question is answered in-process. With --server the question
is sent to a running 'analyst serve' instance instead.`,
		Example: `  analyst ask "How many bullish days were there in 2023?"
  analyst ask "Top 5 volume days in 2022" --verbose
  analyst ask "Average close in March 2024" --server http://localhost:8000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			question := strings.TrimSpace(strings.Join(args, " "))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			start := time.Now()
			var (
				cot *agents.ChainOfThought
				err error
			)
			if serverURL != "" {
				cot, err = askRemote(ctx, serverURL, question, app.Config.Server.RequestTimeout)
			} else {
				cot, err = askLocal(ctx, app, question)
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(cot)
			}
			printAnswer(output, cot, verbose, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "base URL of a running analyst server")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the tool calls behind the answer")

	return cmd
}

func askLocal(ctx context.Context, app *App, question string) (*agents.ChainOfThought, error) {
	ds, err := app.loadDataset(ctx)
	if err != nil {
		return nil, err
	}
	orchestrator, _, err := app.newOrchestrator(ds)
	if err != nil {
		return nil, err
	}
	return orchestrator.Ask(ctx, question)
}

func askRemote(ctx context.Context, baseURL, question string, timeout time.Duration) (*agents.ChainOfThought, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	var (
		result server.ChatResponse
		apiErr server.ErrorResponse
	)
	resp, err := client.R().
		SetContext(ctx).
		SetBody(server.ChatRequest{Message: question}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return nil, fmt.Errorf("server returned %d (%s): %s", resp.StatusCode(), apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode())
	}

	return &agents.ChainOfThought{
		RequestID: result.RequestID,
		Query:     question,
		ToolCalls: result.ToolCalls,
		Response:  result.Response,
	}, nil
}

func printAnswer(output *Output, cot *agents.ChainOfThought, verbose bool, elapsed time.Duration) {
	if verbose && len(cot.ToolCalls) > 0 {
		output.Info("Tool calls")
		table := NewTable(output, "ID", "Tool", "Arguments", "Result")
		for _, tc := range cot.ToolCalls {
			result := TruncateString(oneLine(tc.Result), 60)
			if tc.IsError {
				result = output.Red(result)
			} else {
				result = output.Green(result)
			}
			table.AddRow(tc.ID, output.Cyan(tc.ToolName), TruncateString(tc.Arguments, 50), result)
		}
		table.Render()
		output.Println()
	}

	output.Println(cot.Response)

	if verbose {
		output.Println()
		output.Dim("request %s, %d tool call(s), %s", cot.RequestID, len(cot.ToolCalls), FormatDuration(elapsed))
	}
}
