package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/research"
)

var httpTracer = otel.Tracer("deepscout/internal/server")

// ResearchRequest is the POST /api/research payload.
type ResearchRequest struct {
	Query          string `json:"query"`
	Breadth        int    `json:"breadth"`
	Depth          int    `json:"depth"`
	Language       string `json:"language"`
	SearchLanguage string `json:"search_language"`
	Report         bool   `json:"report"`
}

type ResearchHandler struct {
	Cfg    *config.Config
	Engine *research.Engine
	Logger *log.Logger
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.stream)
}

// stream runs one research tree and streams every progress event over SSE.
// When the request asks for a report, a final "report" event carrying the
// Markdown document follows the research completion event.
func (h *ResearchHandler) stream(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if c.QueryParam("report") == "true" {
		req.Report = true
	}

	ctx := c.Request().Context()
	runID := uuid.NewString()
	ctx, span := httpTracer.Start(ctx, "ResearchHandler.stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("query", req.Query),
	)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	// Progress callbacks arrive from concurrent branches; a single writer
	// goroutine (this handler) serializes them onto the wire.
	steps := make(chan research.Step, 64)
	result := make(chan research.ResearchResult, 1)
	go func() {
		defer close(steps)
		r := h.Engine.Research(ctx, research.Params{
			Query:          req.Query,
			Breadth:        req.Breadth,
			MaxDepth:       req.Depth,
			Language:       req.Language,
			SearchLanguage: req.SearchLanguage,
			OnProgress: func(s research.Step) {
				select {
				case steps <- s:
				case <-ctx.Done():
				}
			},
		})
		result <- r
	}()

	for step := range steps {
		data, err := research.MarshalStep(step)
		if err != nil {
			h.Logger.Printf("run %s: drop unmarshalable step: %v", runID, err)
			continue
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return nil // client went away
		}
		flusher.Flush()
	}
	r := <-result

	if req.Report {
		report, err := h.Engine.WriteFinalReport(ctx, req.Query, r.Learnings, req.Language)
		if err != nil {
			h.Logger.Printf("run %s: report failed: %v", runID, err)
			writeSSE(resp, flusher, "error", `{"message":"report generation failed"}`)
			return nil
		}
		payload, err := reportEventPayload(report)
		if err != nil {
			return nil
		}
		writeSSE(resp, flusher, "report", payload)
	}
	return nil
}

func reportEventPayload(report string) (string, error) {
	data, err := json.Marshal(map[string]string{"report": report})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeSSE(resp *echo.Response, flusher http.Flusher, event, data string) {
	if _, err := resp.Write([]byte("event: " + event + "\ndata: " + data + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}
