package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/types"
)

var (
	checkTitle   string
	checkURL     string
	checkSummary string
	checkSource  string
	checkDate    string
	checkJSON    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one article against the store",
	Long: `Run the duplicate arbiter on a single article and print the verdict.
The store is only read; nothing is inserted or updated.`,
	Example: `  newsdedup check --title "CMS finalizes staffing rule" --url https://example.com/a --date 2026-03-02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		published, err := parseDate(checkDate)
		if err != nil {
			return err
		}
		article := &types.IncomingArticle{
			Title:         checkTitle,
			Summary:       checkSummary,
			URL:           checkURL,
			Source:        checkSource,
			PublishedDate: published,
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, "")
		if err != nil {
			return err
		}
		defer store.Close()

		eng, err := newEngine(store)
		if err != nil {
			return err
		}

		verdict, err := eng.arbiter.Check(ctx, article)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if checkJSON {
			return writeJSON(out, verdict)
		}
		printVerdict(out, verdict)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkTitle, "title", "", "article title (required)")
	checkCmd.Flags().StringVar(&checkURL, "url", "", "article URL (required)")
	checkCmd.Flags().StringVar(&checkSummary, "summary", "", "article summary")
	checkCmd.Flags().StringVar(&checkSource, "source", "", "publisher name")
	checkCmd.Flags().StringVar(&checkDate, "date", "", "published date, RFC 3339 or YYYY-MM-DD (default now)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the verdict as JSON")
	_ = checkCmd.MarkFlagRequired("title")
	_ = checkCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(checkCmd)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want RFC 3339 or YYYY-MM-DD)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerdict(w io.Writer, v *types.Verdict) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Duplicate Verdict ==="))

	if v.IsDuplicate {
		fmt.Fprintf(w, "%s Duplicate of article %d\n", color.RedString("●"), *v.MatchedID)
		if v.MatchedArticle != nil {
			fmt.Fprintf(w, "  %s\n", gray(v.MatchedArticle.Title))
		}
		if v.ContentChanged {
			fmt.Fprintf(w, "  %s\n", yellow("content changed since it was stored"))
		}
	} else {
		fmt.Fprintf(w, "%s Not a duplicate\n", color.GreenString("●"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Method:      %s\n", v.Method)
	outcome := string(v.Outcome)
	if v.FellBack() {
		outcome = color.YellowString("%s (fail-open)", v.Outcome)
	}
	fmt.Fprintf(w, "  Outcome:     %s\n", outcome)
	if v.Confidence != nil {
		fmt.Fprintf(w, "  Confidence:  %.2f\n", *v.Confidence)
	}
	if v.CandidatesChecked > 0 {
		fmt.Fprintf(w, "  Candidates:  %d\n", v.CandidatesChecked)
	}
	if v.AIProvider != "" {
		fmt.Fprintf(w, "  Provider:    %s\n", v.AIProvider)
	}
	if v.Reasoning != "" {
		fmt.Fprintf(w, "  Reasoning:   %s\n", v.Reasoning)
	}
	fmt.Fprintf(w, "  Stages:      %s\n", gray(strings.Join(v.Stages, " → ")))
	fmt.Fprintln(w)
}
