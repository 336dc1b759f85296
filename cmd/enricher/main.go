package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-enricher/internal/batch"
	"research-enricher/internal/config"
	"research-enricher/internal/database"
	"research-enricher/internal/llm"
	"research-enricher/internal/oracle"
	"research-enricher/internal/processor"
	"research-enricher/internal/report"
	"research-enricher/internal/store"
	"research-enricher/internal/tags"
)

func main() {
	// Parse command line flags; set flags override the config file
	configPath := flag.String("config", "", "Path to YAML config file")
	inputDir := flag.String("input", "", "Directory of PDF files")
	outputDir := flag.String("output", "", "Directory for results and tag registry")
	workers := flag.Int("workers", 0, "Maximum documents processed in parallel")
	maxDocs := flag.Int("max", 0, "Maximum documents to process this run (0 = all)")
	ollamaHost := flag.String("ollama", "", "Ollama host (default uses OLLAMA_HOST env var)")
	factsModel := flag.String("facts-model", "", "Ollama model for bibliographic facts")
	analysisModel := flag.String("analysis-model", "", "Ollama model for content analysis and tags")
	pgConnString := flag.String("pg", "", "PostgreSQL connection string for the record mirror")
	sqlitePath := flag.String("sqlite", "", "SQLite file for the record mirror")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	overrideString(&cfg.InputDir, *inputDir)
	overrideString(&cfg.OutputDir, *outputDir)
	overrideString(&cfg.Ollama.Host, *ollamaHost)
	overrideString(&cfg.Models.Facts, *factsModel)
	overrideString(&cfg.Models.Analysis, *analysisModel)
	overrideString(&cfg.Database.PostgresDSN, *pgConnString)
	overrideString(&cfg.Database.SQLitePath, *sqlitePath)
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *maxDocs > 0 {
		cfg.MaxDocuments = *maxDocs
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Processing PDFs in: %s", cfg.InputDir)
	log.Printf("Using models: facts=%s, analysis=%s", cfg.Models.Facts, cfg.Models.Analysis)
	log.Printf("Max concurrent documents: %d", cfg.Workers)

	// Cancel on interrupt so completed work is flushed before exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	registry, err := tags.Load(cfg.TagsPath(), tags.Config{Explainer: orc})
	if err != nil {
		log.Fatalf("Failed to load tag registry: %v", err)
	}
	results, err := store.Open(cfg.RecordsPath())
	if err != nil {
		log.Fatalf("Failed to load results: %v", err)
	}
	log.Printf("Loaded %d existing records and %d tags", results.Len(), registry.Len())

	mirrors, err := database.Open(ctx, cfg.Database.PostgresDSN, cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open database mirror: %v", err)
	}
	defer mirrors.Close()

	extractor := processor.NewSectionExtractor(processor.Config{
		AllowedRoot: cfg.InputDir,
		MaxPages:    cfg.MaxPages,
		TotalCap:    cfg.SectionCap,
	})

	progressFunc := func(p batch.Progress) {
		estimatedTotal := p.Elapsed * time.Duration(p.Total) / time.Duration(p.Done)
		estimatedRemaining := estimatedTotal - p.Elapsed

		suffix := ""
		if p.Status == batch.StatusSkipped {
			suffix = " [skipped: " + p.Reason + "]"
		}
		log.Printf("Progress: %d/%d documents processed (%.1f%%) - %s - Cost so far: $%.6f - Est. remaining: %v%s",
			p.Done, p.Total, float64(p.Done)/float64(p.Total)*100, p.Filename, p.TotalCost,
			estimatedRemaining.Round(time.Second), suffix)
	}

	runCfg := batch.Config{
		Workers:        cfg.Workers,
		MaxDocuments:   cfg.MaxDocuments,
		TagsPath:       cfg.TagsPath(),
		TagsCSVPath:    cfg.TagsCSVPath(),
		RecordsCSVPath: cfg.RecordsCSVPath(),
		Progress:       progressFunc,
	}
	if len(mirrors) > 0 {
		runCfg.Mirror = mirrors
	}
	runner := batch.New(extractor, orc, results, registry, runCfg)

	startTime := time.Now()
	res, err := runner.Run(ctx, cfg.InputDir)
	if res.Interrupted {
		log.Printf("Interrupted after %d documents; completed results were saved", res.Processed)
	} else if err != nil {
		log.Printf("Warning: run finished with errors: %v", err)
	}

	log.Printf("Completed run %s in %v:", res.RunID, time.Since(startTime).Round(time.Second))
	log.Printf("  - Discovered: %d", res.Discovered)
	log.Printf("  - Scheduled: %d", res.Scheduled)
	log.Printf("  - Processed: %d (%d without content analysis)", res.Processed, res.Partial)
	log.Printf("  - Skipped: %d", res.Skipped)
	log.Printf("  - Run cost: $%.6f (tag explanations: $%.6f)", res.Usage.Cost, registry.Usage().Cost)

	if err := report.Render(os.Stdout, report.Summarize(results.Records(), registry.Len())); err != nil {
		log.Printf("Warning: failed to print summary: %v", err)
	}

	if res.Interrupted {
		mirrors.Close()
		os.Exit(130)
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
