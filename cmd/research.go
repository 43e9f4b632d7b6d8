package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scoutworks/deepscout/config"
	"github.com/scoutworks/deepscout/internal/app"
	"github.com/scoutworks/deepscout/internal/research"
)

func researchCMD() *cobra.Command {
	var (
		cfgPath    string
		breadth    int
		depth      int
		language   string
		searchLang string
		reportOut  string
		verbose    bool
	)
	var cmd = &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research tree from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := strings.Join(args, " ")

			logger := log.New(os.Stderr, "[RESEARCH] ", log.LstdFlags)
			engine, tele, err := app.NewEngine(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			result := engine.Research(cmd.Context(), research.Params{
				Query:          query,
				Breadth:        breadth,
				MaxDepth:       depth,
				Language:       language,
				SearchLanguage: searchLang,
				OnProgress:     progressLogger(logger, verbose),
			})

			for i, l := range result.Learnings {
				fmt.Printf("%d. %s\n   %s\n", i+1, l.Learning, l.URL)
			}

			if reportOut != "" {
				report, err := engine.WriteFinalReport(cmd.Context(), query, result.Learnings, language)
				if err != nil {
					return err
				}
				if err := os.WriteFile(reportOut, []byte(report), 0o644); err != nil {
					return err
				}
				logger.Printf("report written to %s", reportOut)
			}

			if _, totalCost, totalTokens := tele.CostSummary(); totalTokens > 0 {
				logger.Printf("llm usage: %d tokens, $%.4f", totalTokens, totalCost)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().IntVar(&breadth, "breadth", 0, "sub-queries per node (default from config)")
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum recursion depth (default from config)")
	cmd.Flags().StringVar(&language, "language", "", "output language, BCP 47 code")
	cmd.Flags().StringVar(&searchLang, "search-language", "", "search language hint, BCP 47 code")
	cmd.Flags().StringVar(&reportOut, "report", "", "write a final Markdown report to this file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log reasoning and processing deltas")
	return cmd
}

// progressLogger turns progress events into log lines. Reasoning and
// cumulative-snapshot events are high volume and only logged when verbose.
func progressLogger(logger *log.Logger, verbose bool) func(research.Step) {
	return func(s research.Step) {
		switch step := s.(type) {
		case research.SearchingStep:
			logger.Printf("node %s searching: %s", step.NodeID, step.Query)
		case research.SearchCompleteStep:
			logger.Printf("node %s found %d results", step.NodeID, len(step.Results))
		case research.GeneratedQueryStep:
			logger.Printf("node %s query: %s", step.NodeID, step.Query.Query)
		case research.NodeCompleteStep:
			if step.HasResult {
				logger.Printf("node %s complete: %d learnings, %d follow-ups",
					step.NodeID, len(step.Learnings), len(step.FollowUpQuestions))
			}
		case research.ErrorStep:
			logger.Printf("node %s error: %s", step.NodeID, step.Message)
		case research.CompleteStep:
			logger.Printf("run complete: %d learnings", len(step.Learnings))
		default:
			if verbose {
				if data, err := research.MarshalStep(s); err == nil {
					logger.Printf("%s", data)
				}
			}
		}
	}
}
