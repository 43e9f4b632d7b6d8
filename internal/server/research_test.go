package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/llm"
	"github.com/scoutworks/deepscout/internal/research"
)

// cannedLLM answers query generation, result processing, and report calls
// with fixed JSON/Markdown.
type cannedLLM struct{}

func (cannedLLM) respond(req llm.ChatRequest) string {
	if strings.Contains(req.Prompt, "generate a list of search queries") {
		return `{"queries":[{"query":"only query","researchGoal":"the goal"}]}`
	}
	if strings.Contains(req.Prompt, "generate a list of learnings") {
		return `{"learnings":[{"url":"https://s.example","learning":"the fact"}],"followUpQuestions":[]}`
	}
	return "# Report\n\nThe fact [1]."
}

func (c cannedLLM) Stream(ctx context.Context, req llm.ChatRequest, onUsage func(llm.Usage)) (<-chan llm.Fragment, error) {
	ch := make(chan llm.Fragment, 1)
	ch <- llm.Fragment{Kind: llm.FragmentText, Text: c.respond(req)}
	close(ch)
	return ch, nil
}

func (c cannedLLM) Generate(ctx context.Context, req llm.ChatRequest, onUsage func(llm.Usage)) (string, error) {
	return c.respond(req), nil
}

func (cannedLLM) CalculateCost(llm.Usage) float64 { return 0 }

func testHandler() *ResearchHandler {
	cfg := &config.Config{
		Research: config.ResearchConfig{
			DefaultBreadth:        1,
			DefaultDepth:          1,
			Concurrency:           2,
			MaxLearnings:          5,
			MaxFollowUpQuestions:  3,
			Language:              "en-US",
			SearchResultsPerQuery: 3,
		},
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			Generation: "g", Processing: "p", Report: "r", Fallback: "f",
		}},
	}
	searcher := research.SearcherFunc(func(ctx context.Context, query string, opts research.SearchOptions) ([]research.SearchResult, error) {
		return []research.SearchResult{{URL: "https://s.example", Title: "S", Content: "body"}}, nil
	})
	logger := log.New(io.Discard, "", 0)
	engine := research.NewEngine(cfg, logger, cannedLLM{}, searcher, research.NewLimiter(2, 0), nil)
	return &ResearchHandler{Cfg: cfg, Engine: engine, Logger: logger}
}

func postResearch(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := testHandler().stream(c); err != nil {
		t.Fatalf("stream: %v", err)
	}
	return rec
}

func TestResearchStreamEmitsEvents(t *testing.T) {
	t.Parallel()
	rec := postResearch(t, `{"query":"test topic"}`)

	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	var kinds []string
	var completeLearnings int
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		var kind string
		_ = json.Unmarshal(ev["type"], &kind)
		kinds = append(kinds, kind)
		if kind == "complete" {
			var learnings []research.Learning
			_ = json.Unmarshal(ev["learnings"], &learnings)
			completeLearnings = len(learnings)
		}
	}

	count := func(k string) int {
		n := 0
		for _, got := range kinds {
			if got == k {
				n++
			}
		}
		return n
	}
	if count("complete") != 1 {
		t.Fatalf("got %d complete events, want exactly 1 (kinds: %v)", count("complete"), kinds)
	}
	if kinds[len(kinds)-1] != "complete" {
		t.Fatalf("complete was not the last event: %v", kinds)
	}
	if count("searching") == 0 || count("search_complete") == 0 {
		t.Fatalf("search lifecycle events missing: %v", kinds)
	}
	if completeLearnings != 1 {
		t.Fatalf("complete event carries %d learnings, want 1", completeLearnings)
	}
}

func TestResearchStreamWithReport(t *testing.T) {
	t.Parallel()
	rec := postResearch(t, `{"query":"test topic","report":true}`)

	body := rec.Body.String()
	if !strings.Contains(body, "event: report\n") {
		t.Fatalf("no report event in:\n%s", body)
	}
	idx := strings.Index(body, "event: report\ndata: ")
	payload := body[idx+len("event: report\ndata: "):]
	payload = strings.SplitN(payload, "\n", 2)[0]
	var rep map[string]string
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		t.Fatalf("bad report payload %q: %v", payload, err)
	}
	if !strings.Contains(rep["report"], "# Report") {
		t.Fatalf("report = %q", rep["report"])
	}
	if !strings.Contains(rep["report"], "## Sources") {
		t.Fatalf("report missing sources appendix: %q", rep["report"])
	}
}

func TestResearchStreamRejectsEmptyQuery(t *testing.T) {
	t.Parallel()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"query":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := testHandler().stream(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}
