package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"research-enricher/internal/database"
	"research-enricher/internal/models"
	"research-enricher/internal/oracle"
	"research-enricher/internal/store"
	"research-enricher/internal/tags"
)

// Extractor turns a document into its section bundle; failures yield an empty bundle
type Extractor interface {
	Extract(ctx context.Context, doc models.Document) models.SectionBundle
}

// Oracle runs the two enrichment calls for one document
type Oracle interface {
	ExtractBasicFacts(ctx context.Context, bundle models.SectionBundle) (*oracle.BasicFacts, error)
	AnalyzeContent(ctx context.Context, bundle models.SectionBundle) (*oracle.ContentAnalysis, error)
}

// Status is the terminal state of a document in one run
type Status string

const (
	StatusPersisted Status = "persisted"
	StatusSkipped   Status = "skipped"
)

// Progress is reported once per finished document, in completion order.
// The callback runs under the run lock and must not call back into the Runner.
type Progress struct {
	Done      int
	Total     int
	Filename  string
	Status    Status
	Reason    string
	TotalCost float64
	Elapsed   time.Duration
}

// Config configures a Runner
type Config struct {
	Workers      int
	MaxDocuments int

	TagsPath       string
	TagsCSVPath    string
	RecordsCSVPath string

	Mirror   database.Mirror
	Progress func(Progress)
	Logger   *slog.Logger
	Now      func() time.Time
}

// Result summarizes one run
type Result struct {
	RunID       string
	Discovered  int
	Scheduled   int
	Processed   int
	Skipped     int
	Partial     int
	Interrupted bool
	Records     []models.DocumentRecord
	Usage       models.Usage
}

// Runner enriches every unprocessed document of a directory.
// The store and tag registry are shared state guarded by one lock around update and persist.
type Runner struct {
	cfg       Config
	extractor Extractor
	oracle    Oracle
	store     *store.Store
	tags      *tags.Registry

	mu     sync.Mutex
	result Result
	start  time.Time
}

// New creates a Runner
func New(extractor Extractor, orc Oracle, st *store.Store, reg *tags.Registry, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{cfg: cfg, extractor: extractor, oracle: orc, store: st, tags: reg}
}

// Discover lists the PDF files of dir sorted by filename
func Discover(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var docs []models.Document
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		docs = append(docs, models.Document{Filename: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}

// Run processes the documents of dir whose filenames are not yet in the store.
// On cancellation no new documents start, in-flight ones finish or fail, and
// everything completed is flushed before Run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, dir string) (Result, error) {
	docs, err := Discover(dir)
	if err != nil {
		return Result{}, err
	}

	var pending []models.Document
	for _, d := range docs {
		if !r.store.Has(d.Filename) {
			pending = append(pending, d)
		}
	}
	already := len(docs) - len(pending)
	if r.cfg.MaxDocuments > 0 && len(pending) > r.cfg.MaxDocuments {
		pending = pending[:r.cfg.MaxDocuments]
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create run id: %w", err)
	}

	r.mu.Lock()
	r.result = Result{RunID: runID.String(), Discovered: len(docs), Scheduled: len(pending)}
	r.start = time.Now()
	r.mu.Unlock()

	if n := r.tags.ExplainPending(ctx); n > 0 {
		r.cfg.Logger.Info("explained pending tags", "tags", n)
	}

	r.cfg.Logger.Info("starting run", "run_id", runID.String(), "discovered", len(docs),
		"already_processed", already, "scheduled", len(pending))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, r.cfg.Workers)

schedule:
	for _, doc := range pending {
		select {
		case semaphore <- struct{}{}: // Acquire semaphore
		case <-ctx.Done():
			break schedule
		}
		if ctx.Err() != nil {
			<-semaphore
			break
		}

		wg.Add(1)
		go func(doc models.Document) {
			defer func() {
				wg.Done()
				<-semaphore // Release semaphore
			}()
			r.process(ctx, doc)
		}(doc)
	}
	wg.Wait()

	flushErr := r.Flush()

	r.mu.Lock()
	res := r.result
	res.Records = append([]models.DocumentRecord(nil), r.result.Records...)
	r.mu.Unlock()

	if ctx.Err() != nil {
		res.Interrupted = true
		return res, errors.Join(ctx.Err(), flushErr)
	}
	return res, flushErr
}

// process carries one document from discovery to persistence or skip
func (r *Runner) process(ctx context.Context, doc models.Document) {
	logger := r.cfg.Logger.With("file", doc.Filename)

	bundle := r.extractor.Extract(ctx, doc)
	if bundle.IsEmpty() {
		r.skip(doc, "no text extracted")
		return
	}

	facts, analysis, factsErr, analysisErr := r.enrich(ctx, bundle)
	if ctx.Err() != nil && (factsErr != nil || analysisErr != nil) {
		// calls cut short by the abort are retried on the next run
		logger.Info("document interrupted", "facts_err", factsErr, "analysis_err", analysisErr)
		r.skip(doc, "interrupted")
		return
	}
	if factsErr != nil {
		logger.Warn("skipping document", "stage", "facts", "err", factsErr)
		r.skip(doc, factsErr.Error())
		return
	}
	if analysisErr != nil {
		logger.Warn("content analysis failed, keeping basic facts", "err", analysisErr)
	}

	doc.PageCount = bundle.PageCount
	rec := oracle.Merge(doc, bundle, facts, analysis, r.cfg.Now())
	rec.RunID = r.runID()
	if len(rec.Tags) > 0 {
		rec.Tags = r.tags.Normalize(ctx, rec.Tags, doc.Filename, rec.Citation())
	}

	r.commit(ctx, rec, analysis == nil)
}

// enrich runs both oracle calls concurrently; each fails independently
func (r *Runner) enrich(ctx context.Context, bundle models.SectionBundle) (*oracle.BasicFacts, *oracle.ContentAnalysis, error, error) {
	var (
		g           errgroup.Group
		facts       *oracle.BasicFacts
		analysis    *oracle.ContentAnalysis
		factsErr    error
		analysisErr error
	)
	g.Go(func() error {
		facts, factsErr = r.oracle.ExtractBasicFacts(ctx, bundle)
		return nil
	})
	g.Go(func() error {
		analysis, analysisErr = r.oracle.AnalyzeContent(ctx, bundle)
		return nil
	})
	_ = g.Wait()

	if factsErr == nil && facts == nil {
		factsErr = errors.New("no basic facts returned")
	}
	if analysisErr != nil {
		analysis = nil
	}
	return facts, analysis, factsErr, analysisErr
}

// commit appends the record and persists the store and tag registry under the run lock
func (r *Runner) commit(ctx context.Context, rec models.DocumentRecord, partial bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.Put(rec)
	if err := r.store.Save(); err != nil {
		r.cfg.Logger.Error("failed to persist results", "file", rec.Filename, "err", err)
	}
	if r.cfg.TagsPath != "" {
		if err := r.tags.Save(r.cfg.TagsPath); err != nil {
			r.cfg.Logger.Error("failed to persist tags", "file", rec.Filename, "err", err)
		}
	}
	if r.cfg.Mirror != nil {
		mctx := context.WithoutCancel(ctx)
		if err := r.cfg.Mirror.UpsertRecord(mctx, rec); err != nil {
			r.cfg.Logger.Warn("failed to mirror record", "file", rec.Filename, "err", err)
		}
		if len(rec.Tags) > 0 {
			if err := r.cfg.Mirror.UpsertTags(mctx, r.tags.Entries()); err != nil {
				r.cfg.Logger.Warn("failed to mirror tags", "file", rec.Filename, "err", err)
			}
		}
	}

	r.result.Processed++
	if partial {
		r.result.Partial++
	}
	r.result.Records = append(r.result.Records, rec)
	r.result.Usage = r.result.Usage.Add(models.Usage{
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		Cost:         rec.EstimatedCost,
	})
	r.report(rec.Filename, StatusPersisted, "")
}

func (r *Runner) skip(doc models.Document, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Skipped++
	r.report(doc.Filename, StatusSkipped, reason)
}

// report must be called with r.mu held
func (r *Runner) report(filename string, status Status, reason string) {
	if r.cfg.Progress == nil {
		return
	}
	r.cfg.Progress(Progress{
		Done:      r.result.Processed + r.result.Skipped,
		Total:     r.result.Scheduled,
		Filename:  filename,
		Status:    status,
		Reason:    reason,
		TotalCost: r.result.Usage.Cost,
		Elapsed:   time.Since(r.start),
	})
}

func (r *Runner) runID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.RunID
}

// Flush rewrites the result set and tag registry and refreshes the CSV mirrors.
// CSV failures are logged and do not fail the flush.
func (r *Runner) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if err := r.store.Save(); err != nil {
		errs = append(errs, err)
	}
	if r.cfg.TagsPath != "" {
		if err := r.tags.Save(r.cfg.TagsPath); err != nil {
			errs = append(errs, err)
		}
	}

	if r.cfg.RecordsCSVPath != "" {
		if err := r.store.ExportCSV(r.cfg.RecordsCSVPath); err != nil {
			r.cfg.Logger.Warn("records CSV not written, JSON kept", "path", r.cfg.RecordsCSVPath,
				"locked", errors.Is(err, store.ErrLocked), "err", err)
		}
	}
	if r.cfg.TagsCSVPath != "" {
		if err := r.tags.SaveCSV(r.cfg.TagsCSVPath); err != nil {
			r.cfg.Logger.Warn("tags CSV not written, JSON kept", "path", r.cfg.TagsCSVPath,
				"locked", errors.Is(err, store.ErrLocked), "err", err)
		}
	}
	return errors.Join(errs...)
}
