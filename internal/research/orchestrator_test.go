package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/llm"
)

func testConfig() *config.Config {
	return &config.Config{
		Research: config.ResearchConfig{
			DefaultBreadth:        2,
			DefaultDepth:          1,
			Concurrency:           4,
			MaxLearnings:          5,
			MaxFollowUpQuestions:  3,
			Language:              "en-US",
			SearchResultsPerQuery: 3,
		},
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			Generation: "gen", Processing: "proc", Report: "rep", Fallback: "fb",
		}},
	}
}

// scriptedLLM answers generation and processing calls with canned JSON. The
// two call kinds are told apart by their prompt text.
type scriptedLLM struct {
	mu         sync.Mutex
	genCalls   int
	procCalls  int
	onGenerate func(req llm.ChatRequest) (string, error)
	onProcess  func(req llm.ChatRequest) (string, error)
	onReport   func(req llm.ChatRequest) (string, error)
}

func (s *scriptedLLM) respond(req llm.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(req.Prompt, "generate a list of search queries") {
		s.genCalls++
		return s.onGenerate(req)
	}
	if strings.Contains(req.Prompt, "generate a list of learnings") {
		s.procCalls++
		return s.onProcess(req)
	}
	if s.onReport != nil {
		return s.onReport(req)
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", req.Prompt)
}

func (s *scriptedLLM) Stream(ctx context.Context, req llm.ChatRequest, onUsage func(llm.Usage)) (<-chan llm.Fragment, error) {
	text, err := s.respond(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Fragment, 1)
	ch <- llm.Fragment{Kind: llm.FragmentText, Text: text}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.ChatRequest, onUsage func(llm.Usage)) (string, error) {
	return s.respond(req)
}

func (s *scriptedLLM) CalculateCost(llm.Usage) float64 { return 0 }

func (s *scriptedLLM) generationCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genCalls
}

func queriesJSON(t *testing.T, queries ...string) string {
	t.Helper()
	g := GeneratedQueries{}
	for _, q := range queries {
		q := q
		goal := "goal for " + q
		g.Queries = append(g.Queries, PartialSearchQuery{Query: &q, ResearchGoal: &goal})
	}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal queries: %v", err)
	}
	return string(data)
}

func processedJSON(t *testing.T, learnings map[string]string, followUps ...string) string {
	t.Helper()
	p := ProcessedSearchResult{FollowUpQuestions: followUps}
	for url, text := range learnings {
		url, text := url, text
		p.Learnings = append(p.Learnings, PartialLearning{URL: &url, Learning: &text})
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal processed: %v", err)
	}
	return string(data)
}

type stepCollector struct {
	mu    sync.Mutex
	steps []Step
}

func (c *stepCollector) add(s Step) {
	c.mu.Lock()
	c.steps = append(c.steps, s)
	c.mu.Unlock()
}

func (c *stepCollector) byKind(k StepKind) []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Step
	for _, s := range c.steps {
		if s.Kind() == k {
			out = append(out, s)
		}
	}
	return out
}

func newTestEngine(provider llm.Provider, searcher Searcher) *Engine {
	logger := log.New(io.Discard, "", 0)
	return NewEngine(testConfig(), logger, provider, searcher, NewLimiter(4, 0), nil)
}

func staticSearcher(results map[string][]SearchResult) Searcher {
	return SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		return results[query], nil
	})
}

func TestResearchSingleLevel(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return queriesJSON(t, "alpha", "beta"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			switch {
			case strings.Contains(req.Prompt, `"alpha"`):
				return processedJSON(t, map[string]string{"https://a.example": "fact a"}), nil
			default:
				return processedJSON(t, map[string]string{"https://b.example": "fact b"}), nil
			}
		},
	}
	searcher := staticSearcher(map[string][]SearchResult{
		"alpha": {{URL: "https://a.example", Title: "A", Content: "about a"}},
		"beta":  {{URL: "https://b.example", Title: "B", Content: "about b"}},
	})
	e := newTestEngine(provider, searcher)

	var c stepCollector
	result := e.Research(context.Background(), Params{Query: "topic", OnProgress: c.add})

	if len(result.Learnings) != 2 {
		t.Fatalf("got %d learnings, want 2: %+v", len(result.Learnings), result.Learnings)
	}
	urls := map[string]bool{}
	for _, l := range result.Learnings {
		urls[l.URL] = true
		if l.Title == "" {
			t.Fatalf("learning %q has no back-filled title", l.URL)
		}
	}
	if !urls["https://a.example"] || !urls["https://b.example"] {
		t.Fatalf("unexpected urls: %v", urls)
	}

	completes := c.byKind(StepComplete)
	if len(completes) != 1 {
		t.Fatalf("got %d complete events, want exactly 1", len(completes))
	}
	if got := len(completes[0].(CompleteStep).Learnings); got != 2 {
		t.Fatalf("complete event carries %d learnings, want 2", got)
	}
	if got := len(c.byKind(StepSearching)); got != 2 {
		t.Fatalf("got %d searching events, want 2", got)
	}
}

func TestResearchDeduplicatesByURL(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return queriesJSON(t, "alpha", "beta"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			// both branches report the same source
			return processedJSON(t, map[string]string{"https://shared.example": "the fact"}), nil
		},
	}
	searcher := staticSearcher(map[string][]SearchResult{
		"alpha": {{URL: "https://shared.example", Title: "S"}},
		"beta":  {{URL: "https://shared.example", Title: "S"}},
	})
	e := newTestEngine(provider, searcher)

	result := e.Research(context.Background(), Params{Query: "topic"})
	if len(result.Learnings) != 1 {
		t.Fatalf("got %d learnings, want 1 after url dedup: %+v", len(result.Learnings), result.Learnings)
	}
}

func TestResearchDepthBound(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return queriesJSON(t, "q1", "q2"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			// always ask for more depth; only MaxDepth must stop the recursion
			return processedJSON(t, map[string]string{"https://x.example": "fact"}, "dig deeper?"), nil
		},
	}
	searcher := SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		return []SearchResult{{URL: "https://x.example", Title: "X", Content: "c"}}, nil
	})
	e := newTestEngine(provider, searcher)

	var c stepCollector
	e.Research(context.Background(), Params{Query: "topic", Breadth: 2, MaxDepth: 1, OnProgress: c.add})

	for _, s := range c.byKind(StepSearching) {
		id := s.(SearchingStep).NodeID
		if depth := len(strings.Split(id, "-")) - 1; depth > 2 {
			t.Fatalf("node %s searched beyond the depth bound", id)
		}
	}
	// root fans out to 2 branches, each recurses once with halved breadth
	if got := len(c.byKind(StepSearching)); got != 4 {
		t.Fatalf("got %d searches, want 4", got)
	}
}

func TestResearchNoRecursionWithoutFollowUps(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return queriesJSON(t, "q1", "q2"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			return processedJSON(t, map[string]string{"https://x.example": "fact"}), nil
		},
	}
	searcher := SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		return []SearchResult{{URL: "https://x.example", Content: "c"}}, nil
	})
	e := newTestEngine(provider, searcher)

	var c stepCollector
	e.Research(context.Background(), Params{Query: "topic", MaxDepth: 5, OnProgress: c.add})

	if got := len(c.byKind(StepSearching)); got != 2 {
		t.Fatalf("got %d searches, want 2 (no follow-ups means no recursion)", got)
	}
}

func TestResearchBranchErrorIsolation(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return queriesJSON(t, "good", "bad"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			return processedJSON(t, map[string]string{"https://good.example": "good fact"}), nil
		},
	}
	searcher := SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		if query == "bad" {
			return nil, errors.New("provider down")
		}
		return []SearchResult{{URL: "https://good.example", Title: "G", Content: "c"}}, nil
	})
	e := newTestEngine(provider, searcher)

	var c stepCollector
	result := e.Research(context.Background(), Params{Query: "topic", OnProgress: c.add})

	if len(result.Learnings) != 1 || result.Learnings[0].URL != "https://good.example" {
		t.Fatalf("surviving branch result = %+v", result.Learnings)
	}
	errs := c.byKind(StepError)
	if len(errs) == 0 {
		t.Fatal("expected an error event for the failed branch")
	}
	for _, s := range errs {
		if s.(ErrorStep).NodeID == RootNodeID {
			t.Fatal("branch failure must not be reported against the root")
		}
	}
	if got := len(c.byKind(StepComplete)); got != 1 {
		t.Fatalf("got %d complete events, want exactly 1", got)
	}
}

func TestResearchRootFailureStillCompletes(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	e := newTestEngine(provider, staticSearcher(nil))

	var c stepCollector
	result := e.Research(context.Background(), Params{Query: "topic", OnProgress: c.add})

	if len(result.Learnings) != 0 {
		t.Fatalf("failed run produced learnings: %+v", result.Learnings)
	}
	if got := len(c.byKind(StepError)); got == 0 {
		t.Fatal("expected an error event")
	}
	completes := c.byKind(StepComplete)
	if len(completes) != 1 {
		t.Fatalf("got %d complete events, want exactly 1", len(completes))
	}
	if got := len(completes[0].(CompleteStep).Learnings); got != 0 {
		t.Fatalf("failure complete event carries %d learnings, want 0", got)
	}
}

func TestResearchRetrySkipsGeneration(t *testing.T) {
	t.Parallel()
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			return "", errors.New("generation must not run for a retry")
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			return processedJSON(t, map[string]string{"https://retry.example": "retried fact"}), nil
		},
	}
	var searched []string
	var mu sync.Mutex
	searcher := SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		mu.Lock()
		searched = append(searched, query)
		mu.Unlock()
		return []SearchResult{{URL: "https://retry.example", Title: "R", Content: "c"}}, nil
	})
	e := newTestEngine(provider, searcher)

	var c stepCollector
	result := e.Research(context.Background(), Params{
		Query:      "topic",
		Retry:      &RetryNode{ID: "0-1", Label: "retry query", ResearchGoal: "original goal"},
		OnProgress: c.add,
	})

	if provider.generationCalls() != 0 {
		t.Fatalf("generation ran %d times during a retry, want 0", provider.generationCalls())
	}
	if len(searched) != 1 || searched[0] != "retry query" {
		t.Fatalf("searched %v, want the retry label only", searched)
	}
	for _, s := range c.byKind(StepSearching) {
		if got := s.(SearchingStep).NodeID; got != "0-1" {
			t.Fatalf("retry searched under node %s, want 0-1", got)
		}
	}
	if len(result.Learnings) != 1 {
		t.Fatalf("retry result = %+v", result.Learnings)
	}
}

func TestResearchInheritedLearningsReachGeneration(t *testing.T) {
	t.Parallel()
	var sawInherited bool
	var mu sync.Mutex
	provider := &scriptedLLM{
		onGenerate: func(req llm.ChatRequest) (string, error) {
			mu.Lock()
			if strings.Contains(req.Prompt, "previously learned fact") {
				sawInherited = true
			}
			mu.Unlock()
			return queriesJSON(t, "q1"), nil
		},
		onProcess: func(req llm.ChatRequest) (string, error) {
			return processedJSON(t, map[string]string{"https://x.example": "fresh fact"}), nil
		},
	}
	searcher := SearcherFunc(func(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
		return []SearchResult{{URL: "https://x.example", Content: "c"}}, nil
	})
	e := newTestEngine(provider, searcher)

	e.Research(context.Background(), Params{
		Query:     "topic",
		Learnings: []Learning{{URL: "https://prior.example", Learning: "previously learned fact"}},
	})

	mu.Lock()
	defer mu.Unlock()
	if !sawInherited {
		t.Fatal("inherited learnings were not handed to query generation")
	}
}

func TestDedupeLearnings(t *testing.T) {
	t.Parallel()
	in := []Learning{
		{URL: "https://a.example", Learning: "first"},
		{URL: "https://b.example", Learning: "second"},
		{URL: "https://a.example", Learning: "duplicate of first"},
		{URL: "https://c.example", Learning: "third"},
	}
	out := dedupeLearnings(in)
	if len(out) != 3 {
		t.Fatalf("got %d learnings, want 3", len(out))
	}
	if out[0].Learning != "first" || out[1].Learning != "second" || out[2].Learning != "third" {
		t.Fatalf("dedup broke ordering or kept the wrong occurrence: %+v", out)
	}
}

func TestFollowUpQuery(t *testing.T) {
	t.Parallel()
	got := followUpQuery("original goal", []string{"what next?", "who else?"})
	if !strings.Contains(got, "Previous research goal: original goal") {
		t.Fatalf("missing goal in %q", got)
	}
	if !strings.Contains(got, "what next?\nwho else?\n") {
		t.Fatalf("missing follow-ups in %q", got)
	}
}
