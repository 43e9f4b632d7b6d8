package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/llm"
	"github.com/scoutworks/deepscout/internal/locale"
	"github.com/scoutworks/deepscout/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var engineTracer trace.Tracer = otel.Tracer("deepscout/internal/research")

// SearchOptions bounds one web search.
type SearchOptions struct {
	MaxResults int
	Lang       string
}

// Searcher is the external search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	return f(ctx, query, opts)
}

// Engine drives the recursive research tree: it expands a query into a
// bounded tree of sub-queries, fans each level out under one shared
// concurrency limiter, and aggregates deduplicated learnings bottom-up.
// One Engine may serve concurrent research runs.
type Engine struct {
	cfg       *config.Config
	logger    *log.Logger
	llm       llm.Provider
	searcher  Searcher
	limiter   *Limiter
	telemetry *telemetry.Telemetry
}

// NewEngine creates a research engine. The limiter is shared across every
// branch of every run started through this engine.
func NewEngine(cfg *config.Config, logger *log.Logger, provider llm.Provider, searcher Searcher, limiter *Limiter, tele *telemetry.Telemetry) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		llm:       provider,
		searcher:  searcher,
		limiter:   limiter,
		telemetry: tele,
	}
}

// Limiter exposes the engine's shared limiter, mainly for observability.
func (e *Engine) Limiter() *Limiter { return e.limiter }

// Params describes one orchestrator invocation. The root call leaves Depth
// at 0 and NodeID empty (defaulted to the root id).
type Params struct {
	Query          string
	Breadth        int
	MaxDepth       int
	Language       string
	SearchLanguage string
	Learnings      []Learning // inherited from ancestors, by value
	Depth          int
	NodeID         string
	Retry          *RetryNode
	OnProgress     func(Step)
}

func (p Params) withDefaults(cfg *config.Config) Params {
	if p.Breadth <= 0 {
		p.Breadth = cfg.Research.DefaultBreadth
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = cfg.Research.DefaultDepth
	}
	if p.Retry != nil && p.Retry.ID != "" && p.Retry.ID != RootNodeID {
		p.NodeID = p.Retry.ID
	}
	if p.NodeID == "" {
		p.NodeID = RootNodeID
	}
	if p.Language == "" {
		p.Language = cfg.Research.Language
	}
	if p.SearchLanguage == "" {
		p.SearchLanguage = cfg.Research.SearchLanguage
	}
	p.Language = locale.DisplayName(p.Language)
	if p.OnProgress == nil {
		p.OnProgress = func(Step) {}
	}
	return p
}

// Research runs one node of the research tree (the root, when Depth is 0)
// and blocks until its whole subtree settles. Errors never escape a node:
// every failure is reported as an error progress event and degrades that
// node to empty learnings, so the root call always resolves.
func (e *Engine) Research(ctx context.Context, p Params) ResearchResult {
	p = p.withDefaults(e.cfg)
	start := time.Now()

	ctx, span := engineTracer.Start(ctx, "research.node",
		trace.WithAttributes(
			attribute.String("node.id", p.NodeID),
			attribute.Int("node.depth", p.Depth),
			attribute.Int("node.breadth", p.Breadth),
		))
	defer span.End()

	result, err := e.researchNode(ctx, p)
	if err != nil {
		// Node-level catch-all: anything escaping branch-local handling is
		// reported against this node and converted to an empty result.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Printf("node %s failed: %v", p.NodeID, err)
		p.OnProgress(ErrorStep{NodeID: p.NodeID, Message: err.Error()})
		if p.NodeID == RootNodeID {
			p.OnProgress(CompleteStep{Learnings: []Learning{}})
		}
		return ResearchResult{Learnings: []Learning{}}
	}

	span.SetAttributes(attribute.Int("node.learnings", len(result.Learnings)))
	span.SetStatus(codes.Ok, "completed")
	if p.NodeID == RootNodeID && p.Depth == 0 {
		e.telemetry.RecordResearchRun(time.Since(start), len(result.Learnings))
		e.logger.Printf("research completed in %v with %d learnings", time.Since(start), len(result.Learnings))
	}
	return result
}

func (e *Engine) researchNode(ctx context.Context, p Params) (ResearchResult, error) {
	queries, childIDs, err := e.childQueries(ctx, p)
	if err != nil {
		return ResearchResult{}, err
	}

	// Fan-out: every child is one independent unit admitted by the shared
	// limiter. The node joins on all of them before aggregating.
	branchLearnings := make([][]Learning, len(queries))
	var wg sync.WaitGroup
	for i := range queries {
		wg.Add(1)
		go func(i int, q SearchQuery, childID string) {
			defer wg.Done()
			branchLearnings[i] = e.runBranch(ctx, p, q, childID)
		}(i, queries[i], childIDs[i])
	}
	wg.Wait()

	var all []Learning
	for _, ls := range branchLearnings {
		all = append(all, ls...)
	}
	final := dedupeLearnings(all)

	if p.NodeID == RootNodeID {
		p.OnProgress(CompleteStep{Learnings: final})
	}
	return ResearchResult{Learnings: final}, nil
}

// childQueries resolves the node's child query list: either the single
// supplied retry query (reusing the node's own id) or a freshly generated
// list with derived child ids.
func (e *Engine) childQueries(ctx context.Context, p Params) ([]SearchQuery, []string, error) {
	if p.Retry != nil && p.Retry.ID != RootNodeID {
		q := SearchQuery{Query: p.Retry.Label, ResearchGoal: p.Retry.ResearchGoal}
		return []SearchQuery{q}, []string{p.NodeID}, nil
	}

	events, err := e.streamGeneratedQueries(ctx, p.Query, flattenLearnings(p.Learnings), p.Breadth, p.Language, p.SearchLanguage)
	if err != nil {
		return nil, nil, fmt.Errorf("query generation failed: %w", err)
	}

	var last *GeneratedQueries
	for ev := range events {
		switch {
		case ev.Reasoning != "":
			p.OnProgress(GeneratingQueryReasoningStep{NodeID: p.NodeID, Delta: ev.Reasoning})
		case ev.Object != nil:
			last = ev.Object
			for i, q := range ev.Object.Queries {
				p.OnProgress(GeneratingQueryStep{
					NodeID:       ChildNodeID(p.NodeID, i),
					ParentNodeID: p.NodeID,
					Query:        q,
				})
			}
		case ev.Err != nil:
			// Stream failed or ended badly; keep whatever children were
			// captured so far and let them run.
			p.OnProgress(ErrorStep{NodeID: p.NodeID, Message: ev.Err.Error()})
		}
	}

	p.OnProgress(NodeCompleteStep{NodeID: p.NodeID})

	queries := finalQueries(last, p.Breadth)
	childIDs := make([]string, len(queries))
	for i, q := range queries {
		childIDs[i] = ChildNodeID(p.NodeID, i)
		p.OnProgress(GeneratedQueryStep{NodeID: childIDs[i], Query: q})
	}
	return queries, childIDs, nil
}

// runBranch executes one child query under the shared limiter. Branch
// failures are fully isolated: they are reported against the child's id and
// degrade to empty learnings without disturbing siblings or the parent.
func (e *Engine) runBranch(ctx context.Context, p Params, q SearchQuery, childID string) []Learning {
	var learnings []Learning
	err := e.limiter.Do(ctx, func() error {
		var err error
		learnings, err = e.branch(ctx, p, q, childID)
		return err
	})
	if err != nil {
		e.telemetry.RecordBranchError()
		e.logger.Printf("branch %s failed: %v", childID, err)
		p.OnProgress(ErrorStep{NodeID: childID, Message: err.Error()})
		return []Learning{}
	}
	return learnings
}

func (e *Engine) branch(ctx context.Context, p Params, q SearchQuery, childID string) ([]Learning, error) {
	if strings.TrimSpace(q.Query) == "" {
		// defensive: a query that never resolved contributes nothing
		return nil, nil
	}

	ctx, span := engineTracer.Start(ctx, "research.branch",
		trace.WithAttributes(attribute.String("node.id", childID)))
	defer span.End()

	p.OnProgress(SearchingStep{NodeID: childID, Query: q.Query})
	e.telemetry.RecordSearch()
	results, err := e.searcher.Search(ctx, q.Query, SearchOptions{
		MaxResults: e.cfg.Research.SearchResultsPerQuery,
		Lang:       p.SearchLanguage,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}
	p.OnProgress(SearchCompleteStep{NodeID: childID, Results: results})

	nextBreadth := (p.Breadth + 1) / 2

	events, err := e.streamProcessedResults(ctx, q.Query, results, p.Language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("result processing failed: %w", err)
	}
	var last *ProcessedSearchResult
	for ev := range events {
		switch {
		case ev.Reasoning != "":
			p.OnProgress(ProcessingReasoningStep{NodeID: childID, Delta: ev.Reasoning})
		case ev.Object != nil:
			last = ev.Object
			p.OnProgress(ProcessingStep{NodeID: childID, Result: ev.Object})
		case ev.Err != nil:
			// proceed with whatever partial data arrived before the failure
			p.OnProgress(ErrorStep{NodeID: childID, Message: ev.Err.Error()})
		}
	}

	own, followUps := finalizeProcessed(last, results, e.cfg.Research.MaxLearnings, e.cfg.Research.MaxFollowUpQuestions)
	allLearnings := make([]Learning, 0, len(p.Learnings)+len(own))
	allLearnings = append(allLearnings, p.Learnings...)
	allLearnings = append(allLearnings, own...)

	p.OnProgress(NodeCompleteStep{
		NodeID:            childID,
		Learnings:         own,
		FollowUpQuestions: followUps,
		HasResult:         true,
	})

	if p.Depth+1 <= p.MaxDepth && len(followUps) > 0 {
		nextQuery := followUpQuery(q.ResearchGoal, followUps)
		var sub ResearchResult
		// The recursive call blocks this branch while it still holds its
		// limiter slot; grow capacity by one for its duration so the
		// subtree cannot starve waiting for the slot we occupy.
		e.limiter.WithHeadroom(func() {
			sub = e.Research(ctx, Params{
				Query:          nextQuery,
				Breadth:        nextBreadth,
				MaxDepth:       p.MaxDepth,
				Language:       p.Language,
				SearchLanguage: p.SearchLanguage,
				Learnings:      allLearnings,
				Depth:          p.Depth + 1,
				NodeID:         childID,
				OnProgress:     p.OnProgress,
			})
		})
		return sub.Learnings, nil
	}

	return allLearnings, nil
}

// followUpQuery builds the query text for a recursive call: the original
// research goal followed by every follow-up question, one per line.
func followUpQuery(researchGoal string, followUps []string) string {
	var sb strings.Builder
	sb.WriteString("Previous research goal: ")
	sb.WriteString(researchGoal)
	sb.WriteString("\nFollow-up research directions:\n")
	for _, q := range followUps {
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	return sb.String()
}

// dedupeLearnings keeps the first occurrence of each url, preserving
// insertion order.
func dedupeLearnings(learnings []Learning) []Learning {
	seen := make(map[string]struct{}, len(learnings))
	out := make([]Learning, 0, len(learnings))
	for _, l := range learnings {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

func flattenLearnings(learnings []Learning) []string {
	if len(learnings) == 0 {
		return nil
	}
	out := make([]string, len(learnings))
	for i, l := range learnings {
		out[i] = l.Learning
	}
	return out
}

func (e *Engine) modelFor(key string) string {
	if key != "" {
		return key
	}
	return e.cfg.LLM.Routing.Fallback
}

func (e *Engine) recordUsage(u llm.Usage) {
	e.telemetry.RecordLLMUsage(u.Model, u.PromptTokens, u.CompletionTokens, e.llm.CalculateCost(u))
}
