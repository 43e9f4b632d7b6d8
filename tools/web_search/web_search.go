package web_search

import (
	"context"
	"errors"

	"github.com/scoutworks/deepscout/tools/web_search/brave"
	"github.com/scoutworks/deepscout/tools/web_search/models"
	"github.com/scoutworks/deepscout/tools/web_search/serper"
)

// WebSearcher issues one web search: q is the query, k caps the result
// count, lang is an optional search-language hint (BCP 47 code).
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, lang string) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
