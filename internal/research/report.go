package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/scoutworks/deepscout/internal/llm"
	"github.com/scoutworks/deepscout/internal/locale"
)

// WriteFinalReport produces one long-form Markdown document from the full
// deduplicated learning set, in a single non-recursive model call. The model
// cites learnings by their enumerated index; the sources appendix mapping
// indexes back to URLs is rendered locally and appended.
func (e *Engine) WriteFinalReport(ctx context.Context, prompt string, learnings []Learning, language string) (string, error) {
	if language == "" {
		language = e.cfg.Research.Language
	}
	language = locale.DisplayName(language)

	req := llm.ChatRequest{
		System: systemPrompt(),
		Prompt: finalReportPrompt(prompt, learnings, language),
		Model:  e.modelFor(e.cfg.LLM.Routing.Report),
	}
	report, err := e.llm.Generate(ctx, req, e.recordUsage)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}

	return report + "\n\n" + sourcesAppendix(learnings), nil
}

// sourcesAppendix renders the citation index -> source mapping.
func sourcesAppendix(learnings []Learning) string {
	var sb strings.Builder
	sb.WriteString("## Sources\n\n")
	for i, l := range learnings {
		title := l.Title
		if title == "" {
			title = l.URL
		}
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, title, l.URL)
	}
	return sb.String()
}
