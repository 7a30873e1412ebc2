package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/config"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		settings bool
		depth    int
	)
	cmd := &cobra.Command{
		Use:   "analyze [uri...]",
		Short: "Show how URIs are normalized and tokenized for search",
		Long: `Print the analyzed search fields for each URI as JSON lines, or the
analysis settings document with --settings.

Example usage:
  marginalia analyze https://example.com/foo/bar?q=1
  marginalia analyze --settings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if settings {
				doc, err := analysis.DefaultSettings().YAML()
				if err != nil {
					return err
				}
				_, err = out.Write(doc)
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one uri is required")
			}
			if !cmd.Flags().Changed("depth") {
				depth = config.Load().URIDecodeDepth
			}
			analyzer := analysis.New(depth)
			enc := json.NewEncoder(out)
			for _, uri := range args {
				if err := enc.Encode(analyzer.Analyze(uri)); err != nil {
					return fmt.Errorf("encode %q: %w", uri, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&settings, "settings", false, "print the analysis settings as YAML")
	cmd.Flags().IntVar(&depth, "depth", 5, "maximum nested percent-decoding passes")
	return cmd
}
