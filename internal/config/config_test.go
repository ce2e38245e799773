package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	empty := EmptyConfig()

	// Pointer defaults and Get* fallbacks must agree.
	if cfg.GetName() != empty.GetName() {
		t.Errorf("GetName: default %q, empty %q", cfg.GetName(), empty.GetName())
	}
	if cfg.GetOutputFormat() != empty.GetOutputFormat() {
		t.Errorf("GetOutputFormat: default %q, empty %q", cfg.GetOutputFormat(), empty.GetOutputFormat())
	}
	if cfg.GetSearcher() != empty.GetSearcher() {
		t.Errorf("GetSearcher: default %q, empty %q", cfg.GetSearcher(), empty.GetSearcher())
	}
	if cfg.GetNCores() != empty.GetNCores() {
		t.Errorf("GetNCores: default %d, empty %d", cfg.GetNCores(), empty.GetNCores())
	}
	if cfg.GetBatchSize() != empty.GetBatchSize() {
		t.Errorf("GetBatchSize: default %d, empty %d", cfg.GetBatchSize(), empty.GetBatchSize())
	}
	if strings.Join(cfg.GetTruthTypes(), ",") != strings.Join(empty.GetTruthTypes(), ",") {
		t.Errorf("GetTruthTypes: default %v, empty %v", cfg.GetTruthTypes(), empty.GetTruthTypes())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}

	if empty.GetOutputDir() != "." {
		t.Errorf("GetOutputDir() = %q, want .", empty.GetOutputDir())
	}
	if empty.GetRegistryPath() != "" || empty.GetPlotDir() != "" || empty.GetMetricsFile() != "" {
		t.Error("reporting outputs should be disabled by default")
	}
	if empty.GetSummaryUnits() != "arcsec" {
		t.Errorf("GetSummaryUnits() = %q, want arcsec", empty.GetSummaryUnits())
	}
	if len(empty.GetObjectColumns()) != 0 {
		t.Errorf("GetObjectColumns() = %v, want empty", empty.GetObjectColumns())
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "run.json")

	testJSON := `{
  "truth_types": ["truth_", "star_", "sn_", "agn_"],
  "validate": true,
  "name": "dc2",
  "output_format": "sqlite",
  "n_cores": 4,
  "object_columns": {"objectId": "id", "ra": "coord_ra"}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.GetTruthTypes()) != 4 || cfg.GetTruthTypes()[3] != "agn_" {
		t.Errorf("GetTruthTypes() = %v", cfg.GetTruthTypes())
	}
	if !cfg.GetValidate() {
		t.Error("expected validate true")
	}
	if cfg.GetName() != "dc2" {
		t.Errorf("GetName() = %q, want dc2", cfg.GetName())
	}
	if cfg.GetOutputFormat() != FormatSQLite {
		t.Errorf("GetOutputFormat() = %q, want sqlite", cfg.GetOutputFormat())
	}
	if cfg.GetNCores() != 4 {
		t.Errorf("GetNCores() = %d, want 4", cfg.GetNCores())
	}
	if cfg.GetObjectColumns()["ra"] != "coord_ra" {
		t.Errorf("GetObjectColumns() = %v", cfg.GetObjectColumns())
	}

	// Unset fields keep defaults.
	if cfg.GetSearcher() != "kdtree" {
		t.Errorf("GetSearcher() = %q, want kdtree", cfg.GetSearcher())
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "run.yaml")

	testYAML := `name: dc2
searcher: brute
matching_only: true
write_claims: true
plot_dir: plots
summary_units: deg
object_columns:
  objectId: id
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetName() != "dc2" || cfg.GetSearcher() != "brute" {
		t.Errorf("unexpected name/searcher %q/%q", cfg.GetName(), cfg.GetSearcher())
	}
	if !cfg.GetMatchingOnly() || !cfg.GetWriteClaims() {
		t.Error("expected matching_only and write_claims true")
	}
	if cfg.GetPlotDir() != "plots" {
		t.Errorf("GetPlotDir() = %q, want plots", cfg.GetPlotDir())
	}
	if cfg.GetSummaryUnits() != "deg" {
		t.Errorf("GetSummaryUnits() = %q, want deg", cfg.GetSummaryUnits())
	}
	if cfg.GetObjectColumns()["objectId"] != "id" {
		t.Errorf("GetObjectColumns() = %v", cfg.GetObjectColumns())
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad extension", "run.toml", "name = 'x'"},
		{"bad json", "run.json", "{"},
		{"bad yaml", "run.yml", "name: [unterminated"},
		{"bad format", "format.json", `{"output_format": "parquet"}`},
		{"bad searcher", "searcher.json", `{"searcher": "grid"}`},
		{"bad cores", "cores.json", `{"n_cores": 0}`},
		{"bad name", "name.json", `{"name": "a/b"}`},
		{"empty prefix", "types.json", `{"truth_types": ["truth_", ""]}`},
		{"bad units", "units.json", `{"summary_units": "furlong"}`},
		{"bad quantity", "cols.json", `{"object_columns": {"mag": "m"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	data := make([]byte, maxFileSize+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetName() != "truth" {
		t.Errorf("GetName() = %q, want truth", cfg.GetName())
	}
	if cfg.GetOutputFormat() != FormatCSV {
		t.Errorf("GetOutputFormat() = %q, want csv", cfg.GetOutputFormat())
	}
}
