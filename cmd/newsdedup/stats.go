package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/cost"
	"github.com/steveyegge/newsdedup/internal/types"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show duplicate statistics and the AI cost budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, "")
		if err != nil {
			return err
		}
		defer store.Close()

		dup, err := store.GetDuplicateStats(ctx)
		if err != nil {
			return err
		}

		costCfg := cost.LoadFromEnv()
		var budget *cost.BudgetStats
		if costCfg.Enabled {
			tracker, err := cost.NewTracker(costCfg)
			if err != nil {
				return fmt.Errorf("failed to initialize cost tracker: %w", err)
			}
			s := tracker.GetStats()
			budget = &s
		}

		w := cmd.OutOrStdout()
		if statsJSON {
			return writeJSON(w, struct {
				Duplicates *types.DuplicateStats `json:"duplicates"`
				Budget     *cost.BudgetStats     `json:"budget,omitempty"`
			}{dup, budget})
		}

		printDuplicateStats(w, dup)
		if budget == nil {
			fmt.Fprintln(w, "Cost budgeting is disabled")
			fmt.Fprintln(w, "Set NEWSDEDUP_COST_ENABLED=true to enable cost tracking")
			return nil
		}
		printBudget(w, costCfg, budget)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func printDuplicateStats(w io.Writer, s *types.DuplicateStats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Article Store ==="))
	fmt.Fprintf(w, "%s\n", yellow("Articles:"))
	fmt.Fprintf(w, "  Total:                 %d\n", s.TotalArticles)
	fmt.Fprintf(w, "  Unique content:        %d\n", s.UniqueContentFingerprint)
	fmt.Fprintf(w, "  Potential duplicates:  %d\n", s.PotentialDuplicates)
	fmt.Fprintf(w, "  Duplicate checks:      %d\n", s.TotalDuplicateChecks)
	if s.MostRecentContentUpdate != nil {
		fmt.Fprintf(w, "  Last content update:   %s\n", s.MostRecentContentUpdate.Local().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(w, "  Last content update:   %s\n", color.New(color.FgHiBlack).Sprint("never"))
	}
	fmt.Fprintln(w)
}

func printBudget(w io.Writer, cfg *cost.Config, stats *cost.BudgetStats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "%s\n\n", cyan("=== AI Cost Budget ==="))

	statusColor := color.New(color.FgGreen)
	switch stats.Status {
	case cost.BudgetWarning:
		statusColor = color.New(color.FgYellow)
	case cost.BudgetExceeded:
		statusColor = color.New(color.FgRed, color.Bold)
	}
	fmt.Fprintf(w, "Budget Status: %s\n\n", statusColor.Sprint(stats.Status.String()))

	fmt.Fprintf(w, "%s\n", yellow("Hourly Budget:"))
	if cfg.MaxTokensPerHour > 0 {
		pct := float64(stats.HourlyTokensUsed) / float64(cfg.MaxTokensPerHour) * 100
		fmt.Fprintf(w, "  Tokens:  %s / %s (%.1f%%)\n", formatTokens(stats.HourlyTokensUsed), formatTokens(cfg.MaxTokensPerHour), pct)
		fmt.Fprintf(w, "           %s\n", renderProgressBar(pct, 40))
	} else {
		fmt.Fprintf(w, "  Tokens:  %s (unlimited)\n", formatTokens(stats.HourlyTokensUsed))
	}
	if cfg.MaxCostPerHour > 0 {
		pct := stats.HourlyCostUsed / cfg.MaxCostPerHour * 100
		fmt.Fprintf(w, "  Cost:    $%.4f / $%.2f (%.1f%%)\n", stats.HourlyCostUsed, cfg.MaxCostPerHour, pct)
		fmt.Fprintf(w, "           %s\n", renderProgressBar(pct, 40))
	} else {
		fmt.Fprintf(w, "  Cost:    $%.4f (unlimited)\n", stats.HourlyCostUsed)
	}
	fmt.Fprintf(w, "  Window:  %s → %s\n\n",
		stats.WindowStartTime.Format("15:04:05"),
		stats.WindowStartTime.Add(cfg.BudgetResetInterval).Format("15:04:05"))

	fmt.Fprintf(w, "%s\n", yellow("All-Time Usage:"))
	fmt.Fprintf(w, "  Calls:   %d\n", stats.TotalCalls)
	fmt.Fprintf(w, "  Tokens:  %s\n", formatTokens(stats.TotalTokensUsed))
	fmt.Fprintf(w, "  Cost:    $%.2f\n", stats.TotalCostUsed)
	for provider, tokens := range stats.ProviderTokensUsed {
		fmt.Fprintf(w, "  %-8s %s tokens\n", provider+":", formatTokens(tokens))
	}
	fmt.Fprintln(w)
}

// formatTokens abbreviates a token count
func formatTokens(tokens int64) string {
	switch {
	case tokens < 1000:
		return fmt.Sprintf("%d", tokens)
	case tokens < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
	}
}

// renderProgressBar renders a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100.0 * float64(width))

	barColor := color.New(color.FgGreen)
	switch {
	case percent >= 100:
		barColor = color.New(color.FgRed, color.Bold)
	case percent >= 80:
		barColor = color.New(color.FgYellow)
	}

	var b strings.Builder
	b.WriteString(barColor.Sprint(strings.Repeat("█", filled)))
	b.WriteString(color.New(color.FgHiBlack).Sprint(strings.Repeat("░", width-filled)))
	return "[" + b.String() + "]"
}
