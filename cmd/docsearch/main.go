package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/campushub/docsearch/config"
	"github.com/campushub/docsearch/internal/db"
	"github.com/campushub/docsearch/internal/documents"
	"github.com/campushub/docsearch/internal/embeddings"
	"github.com/campushub/docsearch/internal/logger"
	"github.com/campushub/docsearch/internal/notify"
	"github.com/campushub/docsearch/internal/pipeline"
	"github.com/campushub/docsearch/internal/search"
	"github.com/campushub/docsearch/internal/search/language"
	"github.com/campushub/docsearch/internal/tui"
	"github.com/campushub/docsearch/internal/vector"
)

func main() {
	var (
		migrateFlag = flag.Bool("migrate", false, "Apply the database schema")
		ingestFlag  = flag.String("ingest", "", "File or directory to ingest")
		queryFlag   = flag.String("query", "", "Run a search query and print results")
		langsFlag   = flag.String("langs", "", "Comma-separated target languages for cross-language search")
		monitorFlag = flag.Bool("monitor", false, "Run the interactive monitor")
		verboseFlag = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	logger.SetVerbose(*verboseFlag)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.Database.ConnectionString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if *migrateFlag {
		if err := runMigrations(context.Background(), database); err != nil {
			fmt.Fprintf(os.Stderr, "Error running migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations completed successfully")
		return
	}

	app := newApp(cfg, database)

	switch {
	case *ingestFlag != "":
		if err := app.ingest(context.Background(), *ingestFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *queryFlag != "":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Search.Timeout)
		defer cancel()
		if err := app.query(ctx, *queryFlag, splitLangs(*langsFlag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *monitorFlag:
		if err := app.monitor(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
	}
}

// app wires the collaborators once and serves the CLI modes.
type app struct {
	cfg          *config.Config
	database     *db.DB
	embedder     *embeddings.TextEmbedder
	orchestrator *search.Orchestrator
	subject      *pipeline.Subject
	machine      *pipeline.Machine
	processor    *documents.Processor
	notifier     *notify.Notifier
}

func newApp(cfg *config.Config, database *db.DB) *app {
	embedder := embeddings.NewTextEmbedder(cfg.Ollama.BaseURL, cfg.Embeddings.TextModel)
	validator := vector.NewValidator(cfg.Embeddings.Dimension)

	detector := language.NewDetector()
	detector.MinConfidence = cfg.Search.MinLanguageConfidence

	engine := search.NewEngine(database, database, validator)
	orchestrator := search.NewOrchestrator(engine, detector, embedder, nil)

	subject := pipeline.NewSubject()
	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.MaxRetries = cfg.Processing.MaxRetries
	pipelineCfg.BaseDelay = cfg.Processing.RetryBaseDelay
	pipelineCfg.Multiplier = cfg.Processing.BackoffMultiplier
	machine := pipeline.NewMachine(pipelineCfg, database, subject)

	processor := documents.NewProcessor(
		database, embedder, validator, detector, machine,
		cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap,
	)

	prefs := notify.Preferences{
		NotifyOnProgress: cfg.Notifications.OnProgress,
		NotifyOnComplete: cfg.Notifications.OnComplete,
		NotifyOnError:    cfg.Notifications.OnError,
	}
	notifier := notify.New(prefs, notify.LogChannel{})

	return &app{
		cfg:          cfg,
		database:     database,
		embedder:     embedder,
		orchestrator: orchestrator,
		subject:      subject,
		machine:      machine,
		processor:    processor,
		notifier:     notifier,
	}
}

// ingest processes one file, or every supported file under a directory.
func (a *app) ingest(ctx context.Context, path string) error {
	a.notifier.Start(ctx, a.subject)
	defer a.notifier.Stop()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".pdf", ".epub":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
	} else {
		files = []string{path}
	}

	for _, f := range files {
		logger.Info("Ingesting %s", f)
		docID, err := a.processWithRetry(ctx, f)
		if err != nil {
			logger.Warn("Failed to ingest %s: %v", f, err)
			continue
		}
		fmt.Printf("%s  %s\n", docID, f)
	}
	return nil
}

// processWithRetry runs the pipeline for one file, retrying failed jobs with
// backoff until the retry budget is exhausted.
func (a *app) processWithRetry(ctx context.Context, filePath string) (uuid.UUID, error) {
	docID, err := a.processor.Process(ctx, filePath, nil)
	if err == nil || docID == uuid.Nil {
		return docID, err
	}
	a.notifier.StartMonitoring(docID)
	defer a.notifier.StopMonitoring(docID)

	job, loadErr := a.machine.LoadJob(ctx, docID)
	if loadErr != nil {
		return docID, err
	}
	for {
		retried, retryErr := a.machine.Retry(ctx, job)
		if retryErr != nil {
			return docID, err
		}

		delay := a.machine.RetryDelay(retried.RetryCount - 1)
		logger.Info("Retry %d for %s in %s", retried.RetryCount, docID, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return docID, ctx.Err()
		}

		job, err = a.processor.Reprocess(ctx, retried, filePath)
		if err == nil {
			return docID, nil
		}
	}
}

// query runs a single search and prints the ranked results.
func (a *app) query(ctx context.Context, text string, targetLangs []string) error {
	embedding, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	opts := search.DefaultOptions()
	opts.MaxResults = a.cfg.Search.MaxResults
	opts.MinSimilarity = a.cfg.Search.MinSimilarity
	opts.Hybrid = true
	opts.VectorWeight = a.cfg.Search.VectorWeight
	opts.KeywordWeight = a.cfg.Search.KeywordWeight
	opts.IncludeHighlights = true

	res, err := a.orchestrator.CrossLanguageSearch(ctx, text, embedding, "", targetLangs, search.Scope{}, opts)
	if err != nil {
		return err
	}

	if len(res.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range res.Results {
		marker := ""
		if r.IsTranslated {
			marker = " [translated]"
		}
		fmt.Printf("%2d. %.3f  %s (p.%d)%s\n", i+1, r.Similarity, r.DocumentTitle, r.PageNumber, marker)
		excerpt := r.Highlight
		if excerpt == "" {
			excerpt = truncate(r.Content, 200)
		}
		fmt.Printf("    %s\n", strings.ReplaceAll(excerpt, "\n", " "))
	}
	if len(res.Breakdown) > 0 {
		fmt.Printf("\nLanguages: %v\n", res.Breakdown)
	}
	return nil
}

// monitor runs the interactive TUI with live job and notification feeds.
func (a *app) monitor(ctx context.Context) error {
	program := tea.NewProgram(tui.New(&tuiSearcher{app: a}), tea.WithAltScreen())

	cancelForward := tui.ForwardTransitions(ctx, a.subject, program)
	defer cancelForward()

	a.notifier = notify.New(notify.Preferences{
		NotifyOnProgress: a.cfg.Notifications.OnProgress,
		NotifyOnComplete: a.cfg.Notifications.OnComplete,
		NotifyOnError:    a.cfg.Notifications.OnError,
	}, tui.NewFeedChannel(program))
	a.notifier.Start(ctx, a.subject)
	defer a.notifier.Stop()

	// Any document still in an active stage gets monitored and picked up
	// where it left off.
	docs, err := a.database.GetAllDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		status, parseErr := pipeline.ParseStatus(doc.Status)
		if parseErr != nil || !status.Active() {
			continue
		}
		a.notifier.StartMonitoring(doc.ID)
		go func(filePath string, docID uuid.UUID, status pipeline.Status, progress int) {
			job := a.machine.Rehydrate(docID, status, progress)
			if _, err := a.processor.Reprocess(ctx, job, filePath); err != nil {
				logger.Warn("Failed to resume %s: %v", docID, err)
			}
		}(doc.FilePath, doc.ID, status, doc.Progress)
	}

	_, err = program.Run()
	return err
}

// tuiSearcher adapts the orchestrator to the TUI's search port, embedding
// the query text first.
type tuiSearcher struct {
	app *app
}

func (s *tuiSearcher) Search(ctx context.Context, query string) (*search.CrossLanguageResults, error) {
	ctx, cancel := context.WithTimeout(ctx, s.app.cfg.Search.Timeout)
	defer cancel()

	embedding, err := s.app.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	opts := search.DefaultOptions()
	opts.MaxResults = s.app.cfg.Search.MaxResults
	opts.MinSimilarity = s.app.cfg.Search.MinSimilarity
	opts.Hybrid = true
	opts.VectorWeight = s.app.cfg.Search.VectorWeight
	opts.KeywordWeight = s.app.cfg.Search.KeywordWeight
	opts.IncludeHighlights = true

	return s.app.orchestrator.CrossLanguageSearch(ctx, query, embedding, "", nil, search.Scope{}, opts)
}

// runMigrations applies the schema files under migrations/ in order.
func runMigrations(ctx context.Context, database *db.DB) error {
	dir := "migrations"
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		exePath, err := os.Executable()
		if err == nil {
			dir = filepath.Join(filepath.Dir(exePath), "..", "migrations")
		}
	}

	entries, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil || len(entries) == 0 {
		return fmt.Errorf("no migration files found under %s", dir)
	}

	for _, path := range entries {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if _, err := database.Pool().Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", filepath.Base(path), err)
		}
		logger.Info("Applied %s", filepath.Base(path))
	}
	return nil
}

func splitLangs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
