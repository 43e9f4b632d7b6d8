package research

import (
	"fmt"
	"strings"
	"time"
)

// The literal some models emit when refusing to fill a requested field.
// Queries carrying it are dropped during generation.
const unknownFieldValue = "<UNKNOWN>"

func systemPrompt() string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff; assume the user is right when presented with news.
- The user is a highly experienced analyst, no need to simplify anything, be as detailed as possible and make sure your response is correct.
- Be highly organized, proactive and anticipate the user's needs.
- Treat the user as an expert in all subject matter. Mistakes erode trust, so be accurate and thorough.
- Value good arguments over authorities, the source is irrelevant.
- Consider new technologies and contrarian ideas, not just conventional wisdom.
- You may use high levels of speculation or prediction, but flag it for the user.`, time.Now().Format("2006-01-02"))
}

func languageInstruction(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf("\n\nRespond in %s.", language)
}

// generateQueriesPrompt asks for at most n divergent sub-queries for a topic,
// each with a research goal rationale, as a JSON object.
func generateQueriesPrompt(topic string, learnings []string, n int, language, searchLanguage string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Given the following prompt from the user, generate a list of search queries to research the topic. Return a maximum of %d queries, but feel free to return less if the original prompt is clear. Make sure each query is unique and not similar to each other.

USER PROMPT: %s
`, n, topic)

	if len(learnings) > 0 {
		sb.WriteString("\nHere are some learnings from previous research, use them to generate more specific queries:\n")
		for _, l := range learnings {
			sb.WriteString("- " + l + "\n")
		}
	}

	if searchLanguage != "" {
		fmt.Fprintf(&sb, "\nWrite the search queries themselves in %s.", searchLanguage)
	}

	sb.WriteString(`

OUTPUT FORMAT (JSON):
{
  "queries": [
    {
      "query": "the search query string",
      "researchGoal": "First talk about the goal of the research that this query is meant to accomplish, then go deeper into how to advance the research once the results are found, mention additional research directions. Be as specific as possible."
    }
  ]
}
Respond ONLY with valid JSON. Do not include any other text or explanation.`)
	sb.WriteString(languageInstruction(language))
	return sb.String()
}

// processResultsPrompt asks for up to maxLearnings (url, insight) pairs and
// up to maxFollowUps follow-up questions extracted from raw search results.
func processResultsPrompt(query string, results []SearchResult, maxLearnings, maxFollowUps int, language string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Given the following contents from a search for the query "%s", generate a list of learnings from the contents. Return a maximum of %d learnings, but feel free to return less if the contents are clear. Make sure each learning is unique and not similar to each other. The learnings should be concise and to the point, as detailed and information dense as possible. Include any entities, metrics, numbers and dates where available. The learnings will be used to research the topic further.

SEARCH RESULTS:
`, query, maxLearnings)

	for _, r := range results {
		fmt.Fprintf(&sb, "<content url=%q>\n%s\n</content>\n", r.URL, r.Content)
	}

	fmt.Fprintf(&sb, `
Also generate up to %d follow-up questions suggesting directions to research the topic more deeply.

OUTPUT FORMAT (JSON):
{
  "learnings": [
    {
      "url": "the exact source url the learning came from",
      "learning": "the learning"
    }
  ],
  "followUpQuestions": ["follow-up question"]
}
Respond ONLY with valid JSON. Do not include any other text or explanation.`, maxFollowUps)
	sb.WriteString(languageInstruction(language))
	return sb.String()
}

// finalReportPrompt renders the deduplicated learning set as an enumerated,
// citation-indexed block and asks for one long-form report citing by index.
func finalReportPrompt(prompt string, learnings []Learning, language string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Given the following prompt from the user, write a final report on the topic using the learnings from research. Make it as detailed as possible, aim for 3 or more pages, include ALL the learnings from research.

USER PROMPT: %s

LEARNINGS (cite by index, e.g. [1]; do NOT embed raw URLs in the text):
`, prompt)

	for i, l := range learnings {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, l.Learning)
	}

	sb.WriteString(`
Write the report in Markdown. Structure it with headings, cover every learning, and cite sources by their bracketed index.`)
	sb.WriteString(languageInstruction(language))
	return sb.String()
}
