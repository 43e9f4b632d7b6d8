package models

type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline"`
	Text    string `json:"text"`
	Status  int    `json:"status"`
	FetchMS int    `json:"fetch_ms"`
}
