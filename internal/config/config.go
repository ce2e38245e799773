package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/banshee-data/truthmatch/internal/units"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/truthmatch.defaults.json"

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Output formats accepted by output_format.
const (
	FormatCSV    = "csv"
	FormatCSVGz  = "csv.gz"
	FormatSQLite = "sqlite"
)

// PipelineConfig holds the settings of a merge and match run. Every field is
// optional; the Get* methods supply defaults for fields left unset, so a
// partial file is safe. Command-line flags override file values.
type PipelineConfig struct {
	// Merge
	TruthTypes []string `json:"truth_types,omitempty" yaml:"truth_types,omitempty"`
	Validate   *bool    `json:"validate,omitempty" yaml:"validate,omitempty"`

	// Match
	MatchingOnly  *bool             `json:"matching_only,omitempty" yaml:"matching_only,omitempty"`
	Searcher      *string           `json:"searcher,omitempty" yaml:"searcher,omitempty"`
	BatchSize     *int              `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	ObjectColumns map[string]string `json:"object_columns,omitempty" yaml:"object_columns,omitempty"`

	// Output
	Name         *string `json:"name,omitempty" yaml:"name,omitempty"`
	OutputDir    *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	OutputFormat *string `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	WriteClaims  *bool   `json:"write_claims,omitempty" yaml:"write_claims,omitempty"`

	// Runtime
	NCores *int  `json:"n_cores,omitempty" yaml:"n_cores,omitempty"`
	Silent *bool `json:"silent,omitempty" yaml:"silent,omitempty"`

	// Reporting
	RegistryPath *string `json:"registry_path,omitempty" yaml:"registry_path,omitempty"`
	PlotDir      *string `json:"plot_dir,omitempty" yaml:"plot_dir,omitempty"`
	MetricsFile  *string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	SummaryUnits *string `json:"summary_units,omitempty" yaml:"summary_units,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyConfig returns a PipelineConfig with every field unset.
func EmptyConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultConfig returns a PipelineConfig with every field set to its default.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		TruthTypes:   []string{"truth_", "star_", "sn_"},
		Validate:     ptrBool(false),
		MatchingOnly: ptrBool(false),
		Searcher:     ptrString("kdtree"),
		BatchSize:    ptrInt(4096),
		Name:         ptrString("truth"),
		OutputDir:    ptrString("."),
		OutputFormat: ptrString(FormatCSV),
		WriteClaims:  ptrBool(false),
		NCores:       ptrInt(1),
		Silent:       ptrBool(false),
		SummaryUnits: ptrString(units.Arcsec),
	}
}

// LoadConfig loads a PipelineConfig from a .json, .yaml or .yml file under 1MB.
// Fields omitted from the file retain their defaults.
func LoadConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/truthmatch/ and deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	for i, p := range c.TruthTypes {
		if p == "" {
			return fmt.Errorf("truth_types[%d] must not be empty", i)
		}
	}

	if c.OutputFormat != nil {
		switch *c.OutputFormat {
		case FormatCSV, FormatCSVGz, FormatSQLite:
		default:
			return fmt.Errorf("output_format must be one of %s, %s, %s, got %q", FormatCSV, FormatCSVGz, FormatSQLite, *c.OutputFormat)
		}
	}

	if c.Searcher != nil {
		switch *c.Searcher {
		case "kdtree", "brute":
		default:
			return fmt.Errorf("searcher must be kdtree or brute, got %q", *c.Searcher)
		}
	}

	if c.NCores != nil && *c.NCores < 1 {
		return fmt.Errorf("n_cores must be at least 1, got %d", *c.NCores)
	}

	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}

	if c.Name != nil && (*c.Name == "" || strings.ContainsRune(*c.Name, filepath.Separator)) {
		return fmt.Errorf("name must be a non-empty file name, got %q", *c.Name)
	}

	if c.SummaryUnits != nil && !units.IsValid(*c.SummaryUnits) {
		return fmt.Errorf("summary_units must be one of %s, got %q", units.GetValidUnitsString(), *c.SummaryUnits)
	}

	for q := range c.ObjectColumns {
		switch q {
		case "objectId", "ra", "dec", "tract":
		default:
			return fmt.Errorf("object_columns: unknown quantity %q", q)
		}
	}

	return nil
}

// GetTruthTypes returns the truth file prefixes or the default.
func (c *PipelineConfig) GetTruthTypes() []string {
	if len(c.TruthTypes) == 0 {
		return []string{"truth_", "star_", "sn_"}
	}
	return c.TruthTypes
}

// GetValidate returns the validate value or the default.
func (c *PipelineConfig) GetValidate() bool {
	if c.Validate == nil {
		return false
	}
	return *c.Validate
}

// GetMatchingOnly returns the matching_only value or the default.
func (c *PipelineConfig) GetMatchingOnly() bool {
	if c.MatchingOnly == nil {
		return false
	}
	return *c.MatchingOnly
}

// GetSearcher returns the searcher name or the default.
func (c *PipelineConfig) GetSearcher() string {
	if c.Searcher == nil || *c.Searcher == "" {
		return "kdtree"
	}
	return *c.Searcher
}

// GetBatchSize returns the batch_size value or the default.
func (c *PipelineConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 4096
	}
	return *c.BatchSize
}

// GetObjectColumns returns the object quantity to column mapping.
func (c *PipelineConfig) GetObjectColumns() map[string]string {
	if c.ObjectColumns == nil {
		return map[string]string{}
	}
	return c.ObjectColumns
}

// GetName returns the output base name or the default.
func (c *PipelineConfig) GetName() string {
	if c.Name == nil {
		return "truth"
	}
	return *c.Name
}

// GetOutputDir returns the output directory or the default.
func (c *PipelineConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "."
	}
	return *c.OutputDir
}

// GetOutputFormat returns the output format or the default.
func (c *PipelineConfig) GetOutputFormat() string {
	if c.OutputFormat == nil {
		return FormatCSV
	}
	return *c.OutputFormat
}

// GetWriteClaims returns the write_claims value or the default.
func (c *PipelineConfig) GetWriteClaims() bool {
	if c.WriteClaims == nil {
		return false
	}
	return *c.WriteClaims
}

// GetNCores returns the n_cores value or the default.
func (c *PipelineConfig) GetNCores() int {
	if c.NCores == nil {
		return 1
	}
	return *c.NCores
}

// GetSilent returns the silent value or the default.
func (c *PipelineConfig) GetSilent() bool {
	if c.Silent == nil {
		return false
	}
	return *c.Silent
}

// GetRegistryPath returns the run registry path, empty when disabled.
func (c *PipelineConfig) GetRegistryPath() string {
	if c.RegistryPath == nil {
		return ""
	}
	return *c.RegistryPath
}

// GetPlotDir returns the plot directory, empty when disabled.
func (c *PipelineConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}

// GetMetricsFile returns the metrics textfile path, empty when disabled.
func (c *PipelineConfig) GetMetricsFile() string {
	if c.MetricsFile == nil {
		return ""
	}
	return *c.MetricsFile
}

// GetSummaryUnits returns the unit separations are logged in.
func (c *PipelineConfig) GetSummaryUnits() string {
	if c.SummaryUnits == nil {
		return units.Arcsec
	}
	return *c.SummaryUnits
}
