package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/significance"
)

var (
	sigOldTitle   string
	sigOldSummary string
	sigNewTitle   string
	sigNewSummary string
	sigJSON       bool
)

var significanceCmd = &cobra.Command{
	Use:   "significance",
	Short: "Classify whether an edit to an article is significant",
	Long: `Compare an old and a new version of an article. An edit is significant when
a status keyword (finalized, passed, rejected, ...) appears that was not there
before, or the summary length changes by more than the threshold.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := significance.ConfigFromEnv()
		if err != nil {
			return err
		}
		classifier, err := significance.New(cfg)
		if err != nil {
			return err
		}

		newTitle := sigNewTitle
		if newTitle == "" {
			newTitle = sigOldTitle
		}
		res := classifier.Classify(
			significance.Version{Title: sigOldTitle, Summary: sigOldSummary},
			significance.Version{Title: newTitle, Summary: sigNewSummary},
		)

		w := cmd.OutOrStdout()
		if sigJSON {
			return writeJSON(w, res)
		}

		if res.Significant {
			fmt.Fprintf(w, "%s Significant update\n", color.New(color.FgRed, color.Bold).Sprint("●"))
		} else {
			fmt.Fprintf(w, "%s Minor update\n", color.GreenString("●"))
		}
		for _, r := range res.Reasons {
			fmt.Fprintf(w, "  reason:        %s\n", r)
		}
		if len(res.AddedKeywords) > 0 {
			fmt.Fprintf(w, "  new keywords:  %v\n", res.AddedKeywords)
		}
		fmt.Fprintf(w, "  length change: %.1f%% (threshold %.0f%%)\n", res.LengthDelta*100, cfg.LengthChangeThreshold*100)
		if res.ShortSummary {
			fmt.Fprintf(w, "  %s\n", color.YellowString("old summary is short; length changes are noisy"))
		}
		return nil
	},
}

func init() {
	significanceCmd.Flags().StringVar(&sigOldTitle, "old-title", "", "stored title")
	significanceCmd.Flags().StringVar(&sigOldSummary, "old-summary", "", "stored summary")
	significanceCmd.Flags().StringVar(&sigNewTitle, "new-title", "", "incoming title (default: old title)")
	significanceCmd.Flags().StringVar(&sigNewSummary, "new-summary", "", "incoming summary")
	significanceCmd.Flags().BoolVar(&sigJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(significanceCmd)
}
