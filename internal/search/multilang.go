package search

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/campushub/docsearch/internal/logger"
	"github.com/campushub/docsearch/internal/search/language"
)

// Embedder converts query text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Translator is an optional external collaborator. When absent,
// cross-language search queries other partitions with the untranslated text.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// CrossLanguageResults carries a merged ranked list plus a per-language
// result-count breakdown for display. Languages yielding zero results are
// omitted from the breakdown.
type CrossLanguageResults struct {
	Results        []Result
	Breakdown      map[string]int
	SourceLanguage string
}

// Orchestrator detects query language and fans search out across document
// language partitions.
type Orchestrator struct {
	engine     *Engine
	detector   *language.Detector
	embedder   Embedder
	translator Translator
}

// NewOrchestrator creates a multi-language search orchestrator. The
// translator may be nil; the embedder is only needed for re-embedding
// translated queries and may also be nil.
func NewOrchestrator(engine *Engine, detector *language.Detector, embedder Embedder, translator Translator) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		detector:   detector,
		embedder:   embedder,
		translator: translator,
	}
}

// SearchSingleLanguage searches within one language partition: the explicit
// scope language when set, otherwise the detected query language (when the
// detection is confident), otherwise all partitions.
func (o *Orchestrator) SearchSingleLanguage(ctx context.Context, query string, queryEmbedding []float32, scope Scope, opts Options) ([]Result, error) {
	if scope.Language == "" {
		lang, conf := o.detector.Detect(query)
		logger.Debug("Detected query language %q (confidence %.2f)", lang, conf)
		scope.Language = lang
	}
	return o.engine.HybridSearch(ctx, query, queryEmbedding, scope, opts)
}

// CrossLanguageSearch runs one search per target language partition and
// merges the per-language result sets into a single ranked list. Results
// from partitions other than the source language are tagged IsTranslated.
// An empty targetLanguages behaves identically to SearchSingleLanguage.
func (o *Orchestrator) CrossLanguageSearch(ctx context.Context, query string, queryEmbedding []float32, sourceLanguage string, targetLanguages []string, scope Scope, opts Options) (*CrossLanguageResults, error) {
	if sourceLanguage == "" {
		sourceLanguage, _ = o.detector.Detect(query)
	}

	if len(targetLanguages) == 0 {
		scope.Language = sourceLanguage
		results, err := o.SearchSingleLanguage(ctx, query, queryEmbedding, scope, opts)
		if err != nil {
			return nil, err
		}
		return &CrossLanguageResults{
			Results:        results,
			Breakdown:      countByLanguage(results),
			SourceLanguage: sourceLanguage,
		}, nil
	}

	logger.Section("Cross-Language Search")
	logger.Debug("Source %q, targets %v", sourceLanguage, targetLanguages)

	var (
		mu     sync.Mutex
		merged []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range targetLanguages {
		g.Go(func() error {
			results, err := o.searchPartition(gctx, query, queryEmbedding, sourceLanguage, lang, scope, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Cancellation or failure of any partition fails the whole search;
		// a partial list is never silently reported as complete.
		return nil, mapContextErr(err)
	}

	sortResults(merged)
	if len(merged) > opts.MaxResults {
		merged = merged[:opts.MaxResults]
	}
	return &CrossLanguageResults{
		Results:        merged,
		Breakdown:      countByLanguage(merged),
		SourceLanguage: sourceLanguage,
	}, nil
}

// searchPartition searches one language partition, translating and
// re-embedding the query when crossing languages and the collaborators for
// that are available.
func (o *Orchestrator) searchPartition(ctx context.Context, query string, queryEmbedding []float32, sourceLanguage, lang string, scope Scope, opts Options) ([]Result, error) {
	text := query
	embedding := queryEmbedding

	if lang != sourceLanguage && o.translator != nil {
		translated, err := o.translator.Translate(ctx, query, lang)
		if err != nil {
			logger.Warn("Translation to %q failed, querying with original text: %v", lang, err)
		} else if translated != "" {
			text = translated
			if o.embedder != nil {
				emb, err := o.embedder.Embed(ctx, translated)
				if err != nil {
					logger.Warn("Re-embedding translated query failed, reusing source embedding: %v", err)
				} else {
					embedding = emb
				}
			}
		}
	}

	scope.Language = lang
	results, err := o.engine.HybridSearch(ctx, text, embedding, scope, opts)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].IsTranslated = lang != sourceLanguage
	}
	return results, nil
}

func countByLanguage(results []Result) map[string]int {
	breakdown := make(map[string]int)
	for _, r := range results {
		if r.Language == "" {
			continue
		}
		breakdown[r.Language]++
	}
	return breakdown
}
