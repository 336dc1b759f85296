package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"research-enricher/internal/llm"
	"research-enricher/internal/oracle"
	"research-enricher/internal/processor"
)

// Config is the enricher configuration
type Config struct {
	InputDir     string `yaml:"input_dir"`
	OutputDir    string `yaml:"output_dir"`
	MaxDocuments int    `yaml:"max_documents"`
	Workers      int    `yaml:"workers"`
	MaxPages     int    `yaml:"max_pages"`
	SectionCap   int    `yaml:"section_cap"`

	Ollama   Ollama      `yaml:"ollama"`
	Models   Models      `yaml:"models"`
	Pricing  llm.Pricing `yaml:"pricing"`
	Output   Output      `yaml:"output"`
	Database Database    `yaml:"database"`
}

// Ollama configures the text-generation service
type Ollama struct {
	Host              string        `yaml:"host"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Temperature       float64       `yaml:"temperature"`
}

// Models names the model used by each oracle call
type Models struct {
	Facts    string `yaml:"facts"`
	Analysis string `yaml:"analysis"`
	Tags     string `yaml:"tags"`
}

// Output names the files written to the output directory
type Output struct {
	Records    string `yaml:"records"`
	RecordsCSV string `yaml:"records_csv"`
	Tags       string `yaml:"tags"`
	TagsCSV    string `yaml:"tags_csv"`
}

// Database configures the optional mirrors
type Database struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		InputDir:   ".",
		OutputDir:  ".",
		Workers:    2,
		MaxPages:   processor.DefaultMaxPages,
		SectionCap: processor.DefaultTotalCap,
		Ollama: Ollama{
			Timeout:           120 * time.Second,
			Retries:           1,
			RequestsPerSecond: 1.0,
			Temperature:       0.1,
		},
		Models: Models{
			Facts:    oracle.DefaultFactsModel,
			Analysis: oracle.DefaultAnalysisModel,
			Tags:     oracle.DefaultAnalysisModel,
		},
		Pricing: llm.Pricing{
			oracle.DefaultFactsModel:    {InputPer1K: 0.000035, OutputPer1K: 0.00014},
			oracle.DefaultAnalysisModel: {InputPer1K: 0.0025, OutputPer1K: 0.0125},
		},
		Output: Output{
			Records:    "research_metadata.json",
			RecordsCSV: "research_metadata.csv",
			Tags:       "tags_metadata.json",
			TagsCSV:    "tags_metadata.csv",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("max_pages must be positive, got %d", c.MaxPages))
	}
	if c.SectionCap <= 0 {
		errs = append(errs, fmt.Errorf("section_cap must be positive, got %d", c.SectionCap))
	}
	if c.MaxDocuments < 0 {
		errs = append(errs, fmt.Errorf("max_documents must not be negative, got %d", c.MaxDocuments))
	}
	if c.Ollama.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ollama.timeout must be positive, got %s", c.Ollama.Timeout))
	}
	if c.Ollama.Retries < 0 {
		errs = append(errs, fmt.Errorf("ollama.retries must not be negative, got %d", c.Ollama.Retries))
	}
	if c.Ollama.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("ollama.requests_per_second must not be negative, got %g", c.Ollama.RequestsPerSecond))
	}
	if c.Models.Facts == "" || c.Models.Analysis == "" {
		errs = append(errs, errors.New("models.facts and models.analysis are required"))
	}
	if c.Output.Records == "" || c.Output.Tags == "" {
		errs = append(errs, errors.New("output.records and output.tags are required"))
	}
	for _, dir := range []struct{ name, path string }{{"input_dir", c.InputDir}, {"output_dir", c.OutputDir}} {
		info, err := os.Stat(dir.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir.name, err))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("%s: %s is not a directory", dir.name, dir.path))
		}
	}
	return errors.Join(errs...)
}

// RecordsPath is the JSON result set
func (c Config) RecordsPath() string { return c.outputPath(c.Output.Records) }

// RecordsCSVPath is the CSV mirror of the result set; empty disables it
func (c Config) RecordsCSVPath() string { return c.outputPath(c.Output.RecordsCSV) }

// TagsPath is the JSON tag registry
func (c Config) TagsPath() string { return c.outputPath(c.Output.Tags) }

// TagsCSVPath is the CSV mirror of the tag registry; empty disables it
func (c Config) TagsCSVPath() string { return c.outputPath(c.Output.TagsCSV) }

func (c Config) outputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}
