package research

import (
	"context"
	"strings"

	"github.com/scoutworks/deepscout/internal/llm"
)

// streamGeneratedQueries issues one streaming structured call requesting at
// most n divergent sub-queries for the topic. The early-acceptance predicate
// is satisfied as soon as one queries-array entry has a non-empty query
// string; model output can otherwise terminate with a structurally valid but
// semantically empty value.
func (e *Engine) streamGeneratedQueries(ctx context.Context, topic string, learnings []string, n int, language, searchLanguage string) (<-chan StreamEvent[GeneratedQueries], error) {
	req := llm.ChatRequest{
		System:     systemPrompt(),
		Prompt:     generateQueriesPrompt(topic, learnings, n, language, searchLanguage),
		Model:      e.modelFor(e.cfg.LLM.Routing.Generation),
		JSONOutput: true,
	}
	fragments, err := e.llm.Stream(ctx, req, e.recordUsage)
	if err != nil {
		return nil, err
	}
	return ConsumeStream(ctx, fragments, hasUsableQuery), nil
}

// hasUsableQuery is the generation early-acceptance predicate.
func hasUsableQuery(g *GeneratedQueries) bool {
	for _, q := range g.Queries {
		if q.Query != nil && strings.TrimSpace(*q.Query) != "" {
			return true
		}
	}
	return false
}

// finalQueries converts the last streamed snapshot into the ordered child
// query list: entries without query text and entries carrying the model's
// field-refusal literal are dropped, order is preserved, and the list is
// capped at n.
func finalQueries(g *GeneratedQueries, n int) []SearchQuery {
	if g == nil {
		return nil
	}
	var out []SearchQuery
	for _, q := range g.Queries {
		if q.Query == nil {
			continue
		}
		text := strings.TrimSpace(*q.Query)
		if text == "" || text == unknownFieldValue {
			continue
		}
		goal := ""
		if q.ResearchGoal != nil {
			goal = *q.ResearchGoal
		}
		out = append(out, SearchQuery{Query: text, ResearchGoal: goal})
		if len(out) == n {
			break
		}
	}
	return out
}
