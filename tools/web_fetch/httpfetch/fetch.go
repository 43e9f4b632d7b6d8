// Package httpfetch: plain HTTP fetch + readability extraction.
package httpfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/scoutworks/deepscout/tools/web_fetch/models"
)

const userAgent = "Mozilla/5.0 (compatible; deepscout/1.0)"

// maxBodyBytes bounds how much HTML we read before extraction.
const maxBodyBytes = 4 << 20

type Fetch struct {
	Timeout  time.Duration
	MaxChars int

	// Client is optional; http.DefaultClient when nil.
	Client *http.Client
}

// Exec downloads link, extracts main content via readability, and returns
// a structured Result. Parse failures return the status with empty text;
// network failures return status 599.
func (f *Fetch) Exec(ctx context.Context, link string) (models.Result, error) {
	if strings.TrimSpace(link) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{
			URL: link, Status: 599, FetchMS: int(time.Since(t0) / time.Millisecond),
		}, nil // synthetic failure but not a hard error
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Result{
			URL: link, Status: 599, FetchMS: int(time.Since(t0) / time.Millisecond),
		}, nil
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(link))
	if err != nil {
		return models.Result{
			URL: link, Status: resp.StatusCode, FetchMS: int(time.Since(t0) / time.Millisecond),
		}, nil
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return models.Result{
		URL:     link,
		Title:   strings.TrimSpace(article.Title),
		Byline:  strings.TrimSpace(article.Byline),
		Text:    text,
		Status:  resp.StatusCode,
		FetchMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
