package cli

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ohlcv-analyst/internal/query"
	"ohlcv-analyst/internal/store"
	"ohlcv-analyst/pkg/utils"
)

func newDatasetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and import the price dataset",
	}

	cmd.AddCommand(newDatasetInfoCmd(app))
	cmd.AddCommand(newDatasetImportCmd(app))
	return cmd
}

type yearSummary struct {
	Year        int     `json:"year"`
	Bars        int     `json:"bars"`
	BullishDays int     `json:"bullish_days"`
	MaxClose    float64 `json:"max_close"`
	TotalVolume float64 `json:"total_volume"`
	// Change is the close-to-close percentage move over the year.
	Change float64 `json:"change_pct"`
}

type datasetInfo struct {
	Source    string        `json:"source"`
	Bars      int           `json:"bars"`
	FirstDate string        `json:"first_date"`
	LastDate  string        `json:"last_date"`
	Warnings  []string      `json:"warnings"`
	Years     []yearSummary `json:"years"`
}

func newDatasetInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the configured dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.loadDataset(cmd.Context())
			if err != nil {
				return err
			}

			info, err := summarize(app.Config.Dataset.Source, ds)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(info)
			}

			output.Box("Dataset", []string{
				fmt.Sprintf("Source:  %s", info.Source),
				fmt.Sprintf("Bars:    %d", info.Bars),
				fmt.Sprintf("Range:   %s to %s", info.FirstDate, info.LastDate),
			})
			output.Println()

			table := NewTable(output, "Year", "Bars", "Bullish", "Max Close", "Volume", "Change")
			for _, y := range info.Years {
				table.AddRow(strconv.Itoa(y.Year), strconv.Itoa(y.Bars), strconv.Itoa(y.BullishDays), FormatPrice(y.MaxClose), FormatVolume(y.TotalVolume), utils.FormatPercent(y.Change))
			}
			table.Render()

			for _, w := range info.Warnings {
				output.Warning("%s", w)
			}
			return nil
		},
	}
}

// summarize reports per-year figures computed through the query engine.
func summarize(source string, ds *store.Dataset) (*datasetInfo, error) {
	engine := query.NewEngine(ds)
	info := &datasetInfo{Source: source, Bars: ds.Len(), Warnings: ds.Warnings()}
	if first, ok := ds.First(); ok {
		info.FirstDate = first.Date()
	}
	if last, ok := ds.Last(); ok {
		info.LastDate = last.Date()
	}

	counts := make(map[int]int)
	firstDay := make(map[int]time.Time)
	lastDay := make(map[int]time.Time)
	for _, b := range ds.Bars() {
		y := b.Timestamp.Year()
		if counts[y] == 0 {
			firstDay[y] = b.Timestamp
		}
		counts[y]++
		lastDay[y] = b.Timestamp
	}
	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, y := range years {
		bullish, err := engine.CountBullishDays(y)
		if err != nil {
			return nil, err
		}
		maxClose, err := engine.MaxClosingPrice(y)
		if err != nil {
			return nil, err
		}
		volume, err := engine.TotalVolume(y)
		if err != nil {
			return nil, err
		}
		change := engine.PercentageChange(firstDay[y], lastDay[y])
		if math.IsNaN(change) || math.IsInf(change, 0) {
			change = 0
		}
		info.Years = append(info.Years, yearSummary{
			Year:        y,
			Bars:        counts[y],
			BullishDays: bullish,
			MaxClose:    maxClose,
			TotalVolume: volume,
			Change:      change,
		})
	}
	return info, nil
}

func newDatasetImportCmd(app *App) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Validate a CSV file and snapshot it into SQLite",
		Long: `Validate a CSV dataset and store it in the SQLite snapshot.

Set dataset.source = "sqlite" to answer questions from the snapshot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			ds, err := store.LoadCSV(args[0])
			if err != nil {
				return err
			}
			for _, w := range ds.Warnings() {
				app.Logger.Warn().Str("source", args[0]).Msg(w)
			}

			if dbPath == "" {
				dbPath = app.Config.Dataset.SQLitePath
			}
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SaveBars(ctx, ds.Bars()); err != nil {
				return err
			}
			total, err := s.Count(ctx)
			if err != nil {
				return err
			}

			app.Logger.Info().Str("csv", args[0]).Str("db", dbPath).Int("bars", ds.Len()).Msg("Dataset imported")
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"csv":      args[0],
					"db":       dbPath,
					"imported": ds.Len(),
					"total":    total,
					"warnings": ds.Warnings(),
				})
			}
			output.Success("Imported %d bars into %s (%d total)", ds.Len(), dbPath, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file (default: dataset.sqlite_path)")
	return cmd
}
