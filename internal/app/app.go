// Package app wires configuration into a ready research engine: the LLM
// provider, the web search provider with optional page-content enrichment
// and redis caching, the shared limiter and telemetry.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/cache"
	"github.com/scoutworks/deepscout/internal/llm"
	"github.com/scoutworks/deepscout/internal/research"
	"github.com/scoutworks/deepscout/internal/telemetry"
	"github.com/scoutworks/deepscout/tools/web_fetch"
	"github.com/scoutworks/deepscout/tools/web_search"
)

// NewEngine builds a research engine from configuration. The returned
// telemetry instance is also registered on the engine; callers that expose
// /metrics should serve its registry.
func NewEngine(ctx context.Context, cfg *config.Config, logger *log.Logger) (*research.Engine, *telemetry.Telemetry, error) {
	if err := cfg.Research.Validate(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("llm provider: %w", err)
	}

	searcher, err := NewSearcher(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("search provider: %w", err)
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	limiter := research.NewLimiter(cfg.Research.Concurrency, cfg.Research.ConcurrencyCeiling)

	return research.NewEngine(cfg, logger, provider, searcher, limiter, tele), tele, nil
}

// NewSearcher builds the engine's search collaborator: the configured web
// search provider, optionally wrapped with readability page fetching and a
// redis result cache.
func NewSearcher(ctx context.Context, cfg *config.Config, logger *log.Logger) (research.Searcher, error) {
	ws, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), searchAPIKey(cfg))
	if err != nil {
		return nil, err
	}

	var fetcher web_fetch.WebFetcher
	if cfg.Research.FetchPageContent {
		fetcher, err = web_fetch.NewWebFetcher(web_fetch.HTTPFetcherType, cfg.Search.Timeout, cfg.Research.FetchMaxChars)
		if err != nil {
			return nil, err
		}
	}

	var searchCache *cache.SearchCache
	if cfg.Cache.Enabled {
		client, err := cache.Conn(ctx, cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Password, cfg.Cache.DB, cfg.Search.Timeout)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		searchCache = cache.NewSearchCache(client, cfg.Cache.TTL)
	}

	return research.SearcherFunc(func(ctx context.Context, query string, opts research.SearchOptions) ([]research.SearchResult, error) {
		if hit, ok := searchCache.Get(ctx, query, opts.Lang, opts.MaxResults); ok {
			return hit, nil
		}

		raw, err := ws.Discover(ctx, query, opts.MaxResults, opts.Lang)
		if err != nil {
			return nil, err
		}

		results := make([]research.SearchResult, 0, len(raw))
		for _, r := range raw {
			sr := research.SearchResult{URL: r.URL, Title: r.Title, Content: r.Snippet}
			if fetcher != nil {
				// Enrichment is best effort; the snippet stands in when the
				// page cannot be fetched or yields no readable text.
				page, err := fetcher.Exec(ctx, r.URL)
				if err == nil && page.Text != "" {
					sr.Content = page.Text
				} else if err != nil {
					logger.Printf("page fetch %s failed: %v", r.URL, err)
				}
			}
			results = append(results, sr)
		}

		if err := searchCache.Put(ctx, query, opts.Lang, opts.MaxResults, results); err != nil {
			logger.Printf("search cache write failed: %v", err)
		}
		return results, nil
	}), nil
}

func searchAPIKey(cfg *config.Config) string {
	switch cfg.Search.Provider {
	case "brave":
		return cfg.Search.BraveAPIKey
	default:
		return cfg.Search.SerperAPIKey
	}
}
