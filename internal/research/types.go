package research

// Learning is one extracted (source, insight) fact attributed to a URL.
// Title is populated post-hoc from search-result metadata, not by the model.
type Learning struct {
	URL      string `json:"url"`
	Learning string `json:"learning"`
	Title    string `json:"title,omitempty"`
}

// SearchQuery is one sub-query generated for a node's children.
type SearchQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// PartialSearchQuery is the streaming variant of SearchQuery; fields may be
// absent or incomplete until the generation stream settles.
type PartialSearchQuery struct {
	Query        *string `json:"query,omitempty"`
	ResearchGoal *string `json:"researchGoal,omitempty"`
}

// GeneratedQueries is the target shape of the query-generation stream.
type GeneratedQueries struct {
	Queries []PartialSearchQuery `json:"queries"`
}

// PartialLearning is the streaming variant of Learning.
type PartialLearning struct {
	URL      *string `json:"url,omitempty"`
	Learning *string `json:"learning,omitempty"`
}

// ProcessedSearchResult is the target shape of the result-processing stream.
type ProcessedSearchResult struct {
	Learnings         []PartialLearning `json:"learnings"`
	FollowUpQuestions []string          `json:"followUpQuestions"`
}

// SearchResult is one raw web-search hit handed to result processing.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// ResearchResult is what one orchestrator invocation resolves to.
type ResearchResult struct {
	Learnings []Learning `json:"learnings"`
}

// RetryNode asks the orchestrator to redo a single node's search with its
// existing label and goal instead of generating fresh sub-queries.
type RetryNode struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	ResearchGoal string `json:"researchGoal"`
}
