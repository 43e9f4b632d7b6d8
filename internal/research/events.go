package research

import "encoding/json"

// StepKind discriminates progress event variants.
type StepKind string

const (
	StepGeneratingQueryReasoning StepKind = "generating_query_reasoning"
	StepGeneratingQuery          StepKind = "generating_query"
	StepGeneratedQuery           StepKind = "generated_query"
	StepSearching                StepKind = "searching"
	StepSearchComplete           StepKind = "search_complete"
	StepProcessingReasoning      StepKind = "processing_search_result_reasoning"
	StepProcessing               StepKind = "processing_search_result"
	StepNodeComplete             StepKind = "node_complete"
	StepError                    StepKind = "error"
	StepComplete                 StepKind = "complete"
)

// Step is one progress event reported during a research run. The set of
// implementations is closed; every variant except CompleteStep carries the
// NodeID it pertains to.
type Step interface {
	Kind() StepKind
	step()
}

// GeneratingQueryReasoningStep relays a reasoning delta emitted while the
// child query list is still forming; it is reported against the generating
// node, not a child.
type GeneratingQueryReasoningStep struct {
	NodeID string `json:"nodeId"`
	Delta  string `json:"delta"`
}

// GeneratingQueryStep reports one child entry of a settled query-array
// snapshot. ParentNodeID is carried because the child does not exist yet.
type GeneratingQueryStep struct {
	NodeID       string             `json:"nodeId"`
	ParentNodeID string             `json:"parentNodeId"`
	Query        PartialSearchQuery `json:"query"`
}

// GeneratedQueryStep reports one final child query after generation settles.
type GeneratedQueryStep struct {
	NodeID string      `json:"nodeId"`
	Query  SearchQuery `json:"query"`
}

// SearchingStep reports that a branch has started its web search.
type SearchingStep struct {
	NodeID string `json:"nodeId"`
	Query  string `json:"query"`
}

// SearchCompleteStep carries the raw results of a branch's web search.
type SearchCompleteStep struct {
	NodeID  string         `json:"nodeId"`
	Results []SearchResult `json:"results"`
}

// ProcessingReasoningStep relays a reasoning delta from result processing.
type ProcessingReasoningStep struct {
	NodeID string `json:"nodeId"`
	Delta  string `json:"delta"`
}

// ProcessingStep carries a cumulative result-processing snapshot.
type ProcessingStep struct {
	NodeID string                 `json:"nodeId"`
	Result *ProcessedSearchResult `json:"result,omitempty"`
}

// NodeCompleteStep reports a settled node. For a generating node it carries
// no payload; for a branch it carries the branch's own (non-inherited)
// learnings and follow-up questions.
type NodeCompleteStep struct {
	NodeID            string     `json:"nodeId"`
	Learnings         []Learning `json:"learnings,omitempty"`
	FollowUpQuestions []string   `json:"followUpQuestions,omitempty"`
	HasResult         bool       `json:"hasResult"`
}

// ErrorStep reports a branch- or node-local failure. Siblings and ancestors
// keep running.
type ErrorStep struct {
	NodeID  string `json:"nodeId"`
	Message string `json:"message"`
}

// CompleteStep is emitted exactly once per run, only from the root node,
// after full aggregation.
type CompleteStep struct {
	Learnings []Learning `json:"learnings"`
}

func (GeneratingQueryReasoningStep) Kind() StepKind { return StepGeneratingQueryReasoning }
func (GeneratingQueryStep) Kind() StepKind          { return StepGeneratingQuery }
func (GeneratedQueryStep) Kind() StepKind           { return StepGeneratedQuery }
func (SearchingStep) Kind() StepKind                { return StepSearching }
func (SearchCompleteStep) Kind() StepKind           { return StepSearchComplete }
func (ProcessingReasoningStep) Kind() StepKind      { return StepProcessingReasoning }
func (ProcessingStep) Kind() StepKind               { return StepProcessing }
func (NodeCompleteStep) Kind() StepKind             { return StepNodeComplete }
func (ErrorStep) Kind() StepKind                    { return StepError }
func (CompleteStep) Kind() StepKind                 { return StepComplete }

func (GeneratingQueryReasoningStep) step() {}
func (GeneratingQueryStep) step()          {}
func (GeneratedQueryStep) step()           {}
func (SearchingStep) step()                {}
func (SearchCompleteStep) step()           {}
func (ProcessingReasoningStep) step()      {}
func (ProcessingStep) step()               {}
func (NodeCompleteStep) step()             {}
func (ErrorStep) step()                    {}
func (CompleteStep) step()                 {}

// MarshalStep renders a step as JSON with a "type" discriminant field, for
// SSE transport and logs.
func MarshalStep(s Step) ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	envelope := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(s.Kind())
	if err != nil {
		return nil, err
	}
	envelope["type"] = kind
	return json.Marshal(envelope)
}
