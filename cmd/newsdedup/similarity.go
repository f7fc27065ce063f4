package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/similarity"
)

var similarityCmd = &cobra.Command{
	Use:   "similarity <title-a> <title-b>",
	Short: "Score the similarity of two titles",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, b := similarity.Normalize(args[0]), similarity.Normalize(args[1])
		score := similarity.Similarity(args[0], args[1])

		w := cmd.OutOrStdout()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(w, "A:          %s\n", gray(a))
		fmt.Fprintf(w, "B:          %s\n", gray(b))
		fmt.Fprintf(w, "Distance:   %d\n", similarity.Distance(a, b))
		fmt.Fprintf(w, "Similarity: %.4f\n", score)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(similarityCmd)
}
