package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"research-enricher/internal/config"
	"research-enricher/internal/database"
	"research-enricher/internal/llm"
	"research-enricher/internal/models"
	"research-enricher/internal/oracle"
	"research-enricher/internal/report"
	"research-enricher/internal/store"
	"research-enricher/internal/tags"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to YAML config file")
	outputDir := flag.String("output", "", "Directory holding results and tag registry")
	listTags := flag.Bool("tags", false, "List all tags by usage count")
	tagFilter := flag.String("tag", "", "List records carrying a tag (case-insensitive)")
	exportCSV := flag.Bool("csv", false, "Rewrite the CSV mirrors from the JSON files")
	enhanceTags := flag.Bool("enhance-tags", false, "Synthesize tag definitions from the articles using them")
	minUsage := flag.Int("min-usage", 2, "Minimum usage count for tag enhancement")
	ollamaHost := flag.String("ollama", "", "Ollama host (default uses OLLAMA_HOST env var)")
	model := flag.String("model", "", "Ollama model for tag enhancement")
	pgConnString := flag.String("pg", "", "PostgreSQL mirror to query for -tag")
	sqlitePath := flag.String("sqlite", "", "SQLite mirror to query for -tag")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *ollamaHost != "" {
		cfg.Ollama.Host = *ollamaHost
	}
	if *model != "" {
		cfg.Models.Tags = *model
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := store.Open(cfg.RecordsPath())
	if err != nil {
		log.Fatalf("Failed to load results: %v", err)
	}
	registry, err := tags.Load(cfg.TagsPath(), tags.Config{})
	if err != nil {
		log.Fatalf("Failed to load tag registry: %v", err)
	}

	switch {
	case *listTags:
		printTags(registry.Entries())

	case *tagFilter != "":
		records, err := recordsByTag(ctx, results, *tagFilter, *pgConnString, *sqlitePath)
		if err != nil {
			log.Fatalf("Failed to query tag: %v", err)
		}
		printRecords(*tagFilter, records)

	case *exportCSV:
		if err := results.ExportCSV(cfg.RecordsCSVPath()); err != nil {
			log.Fatalf("Failed to export records CSV: %v", err)
		}
		if err := registry.SaveCSV(cfg.TagsCSVPath()); err != nil {
			log.Fatalf("Failed to export tags CSV: %v", err)
		}
		log.Printf("Exported %d records and %d tags", results.Len(), registry.Len())

	case *enhanceTags:
		llmClient, err := llm.NewOllamaLLM(cfg.Ollama.Host, cfg.Ollama.RequestsPerSecond)
		if err != nil {
			log.Fatalf("Failed to create LLM client: %v", err)
		}
		llmClient.MaxRetries = cfg.Ollama.Retries
		llmClient.Timeout = cfg.Ollama.Timeout
		llmClient.Temperature = cfg.Ollama.Temperature

		orc := oracle.New(llmClient, oracle.Config{
			FactsModel:    cfg.Models.Facts,
			AnalysisModel: cfg.Models.Analysis,
			TagModel:      cfg.Models.Tags,
			Pricing:       cfg.Pricing,
		})

		log.Printf("Enhancing tags used by at least %d articles...", *minUsage)
		res, err := registry.Enhance(ctx, orc, results.Records(), *minUsage)
		if saveErr := registry.Save(cfg.TagsPath()); saveErr != nil {
			log.Fatalf("Failed to save tag registry: %v", saveErr)
		}
		if err != nil {
			log.Printf("Warning: enhancement stopped early: %v", err)
		}
		log.Printf("Enhanced %d/%d tags (%d failed) - Cost: $%.6f", res.Enhanced, res.Considered, res.Failed, res.Usage.Cost)

	default:
		if err := report.Render(os.Stdout, report.Summarize(results.Records(), registry.Len())); err != nil {
			log.Fatalf("Failed to render report: %v", err)
		}
	}
}

// recordsByTag prefers a configured mirror and falls back to the JSON result set
func recordsByTag(ctx context.Context, results *store.Store, tag, pg, sqlitePath string) ([]models.DocumentRecord, error) {
	if pg == "" && sqlitePath == "" {
		return results.WithTag(tag), nil
	}
	mirrors, err := database.Open(ctx, pg, sqlitePath)
	if err != nil {
		return nil, err
	}
	defer mirrors.Close()
	return mirrors.RecordsByTag(ctx, tag)
}

func printTags(entries []models.TagEntry) {
	fmt.Printf("Tags (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %-40s %3d  [%s]\n", e.Canonical, e.UsageCount, e.TagType)
	}
}

func printRecords(tag string, records []models.DocumentRecord) {
	if len(records) == 0 {
		fmt.Printf("No records tagged %q\n", tag)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Records tagged %q (%d):\n", tag, len(records)))
	for i, rec := range records {
		sb.WriteString(fmt.Sprintf("  %d. [%d/10, %s] %s\n", i+1, rec.RelevanceScore, rec.Category(), rec.Citation()))
		sb.WriteString(fmt.Sprintf("     %s\n", rec.Filename))
	}
	fmt.Print(sb.String())
}
