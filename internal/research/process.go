package research

import (
	"context"
	"strings"

	"github.com/scoutworks/deepscout/internal/llm"
)

// streamProcessedResults issues one streaming structured call extracting
// learnings and follow-up questions from the raw results of a single
// sub-query search. The early-acceptance predicate is satisfied as soon as
// one learning is present.
func (e *Engine) streamProcessedResults(ctx context.Context, query string, results []SearchResult, language string) (<-chan StreamEvent[ProcessedSearchResult], error) {
	req := llm.ChatRequest{
		System:     systemPrompt(),
		Prompt:     processResultsPrompt(query, results, e.cfg.Research.MaxLearnings, e.cfg.Research.MaxFollowUpQuestions, language),
		Model:      e.modelFor(e.cfg.LLM.Routing.Processing),
		JSONOutput: true,
	}
	fragments, err := e.llm.Stream(ctx, req, e.recordUsage)
	if err != nil {
		return nil, err
	}
	return ConsumeStream(ctx, fragments, hasLearning), nil
}

// hasLearning is the processing early-acceptance predicate.
func hasLearning(p *ProcessedSearchResult) bool {
	for _, l := range p.Learnings {
		if l.Learning != nil && strings.TrimSpace(*l.Learning) != "" {
			return true
		}
	}
	return false
}

// finalizeProcessed converts the last streamed snapshot into complete
// learnings and follow-up questions, capped at the configured maxima. Each
// learning's title is back-filled by looking up its url among the original
// raw search results; the first match wins and a miss leaves the title empty.
func finalizeProcessed(p *ProcessedSearchResult, results []SearchResult, maxLearnings, maxFollowUps int) ([]Learning, []string) {
	if p == nil {
		return nil, nil
	}
	titleByURL := make(map[string]string, len(results))
	for _, r := range results {
		if _, ok := titleByURL[r.URL]; !ok {
			titleByURL[r.URL] = r.Title
		}
	}

	var learnings []Learning
	for _, pl := range p.Learnings {
		if pl.Learning == nil || strings.TrimSpace(*pl.Learning) == "" {
			continue
		}
		url := ""
		if pl.URL != nil {
			url = strings.TrimSpace(*pl.URL)
		}
		learnings = append(learnings, Learning{
			URL:      url,
			Learning: *pl.Learning,
			Title:    titleByURL[url],
		})
		if maxLearnings > 0 && len(learnings) == maxLearnings {
			break
		}
	}

	var followUps []string
	for _, q := range p.FollowUpQuestions {
		if strings.TrimSpace(q) == "" {
			continue
		}
		followUps = append(followUps, q)
		if maxFollowUps > 0 && len(followUps) == maxFollowUps {
			break
		}
	}
	return learnings, followUps
}
