package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ohlcv-analyst/internal/models"
	"ohlcv-analyst/internal/store"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("Invalid JSON %q: %v", out, err)
	}
	if v["version"] != Version {
		t.Errorf("Expected version %s, got %s", Version, v["version"])
	}
}

func TestToolsCommandListsCatalog(t *testing.T) {
	out, err := runCLI(t, "tools", "--json")
	if err != nil {
		t.Fatalf("tools failed: %v", err)
	}
	var tools []toolInfo
	if err := json.Unmarshal([]byte(out), &tools); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(tools) < 7 || tools[0].Name != "count_bullish_days" {
		t.Errorf("Unexpected catalog %+v", tools)
	}
}

func TestConfigInitWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", dir, "config", "init"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("Expected config.toml in %s: %v", dir, err)
	}
}

func TestDatasetImportAndInfo(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "bars.csv")
	csv := "timestamp,open,high,low,close,volume,direction,Support,Resistance\n" +
		"2024-01-01,100,115,95,110,1000,LONG,[90.5],[120]\n" +
		"2024-01-02,110,112,88,90,3000,SHORT,[],[]\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0600); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "bars.db")

	out, err := runCLI(t, "dataset", "import", csvPath, "--db", dbPath, "--json")
	if err != nil {
		t.Fatalf("import failed: %v (%s)", err, out)
	}
	if !strings.Contains(out, `"imported": 2`) {
		t.Errorf("Expected 2 imported bars, got %s", out)
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ds, err := s.LoadDataset(context.Background())
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}

	info, err := summarize("sqlite", ds)
	if err != nil {
		t.Fatal(err)
	}
	if info.Bars != 2 || len(info.Years) != 1 {
		t.Fatalf("Unexpected summary %+v", info)
	}
	y := info.Years[0]
	if y.Year != 2024 || y.BullishDays != 1 || y.MaxClose != 110 || y.TotalVolume != 4000 {
		t.Errorf("Unexpected year summary %+v", y)
	}
	if math.Abs(y.Change-(-200.0/11)) > 1e-9 {
		t.Errorf("Expected a -18.18%% change, got %v", y.Change)
	}
}

func TestDatasetSummary(t *testing.T) {
	ds := store.NewDataset([]models.Bar{
		models.NewBar(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 1, 1, 1, 1, 1),
		models.NewBar(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 1, 1, 1, 1, 1),
	})
	got := datasetSummary("TSLA", ds)
	want := "TSLA daily bars from 2024-01-02 to 2024-03-01 (2 trading days)"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if datasetSummary("TSLA", store.NewDataset(nil)) != "" {
		t.Error("Empty dataset should have no summary")
	}
}
