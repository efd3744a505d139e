package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search this workspace's memory by episode",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		outputJSON, _ := cmd.Flags().GetBool("json")

		if query == "" {
			return fmt.Errorf("--query is required")
		}

		e, _, err := openEngine("")
		if err != nil {
			return err
		}

		results, err := e.Search(context.Background(), query, limit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Found %d episode(s):\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. episode=%s relevance=%.4f timeframe=%s\n", i+1, r.EpisodeID, r.Relevance, r.Timeframe)
			fmt.Printf("   %s\n", r.ContextDescription)
			for _, f := range r.Facts {
				fmt.Printf("   - [%s] %s (confidence %.2f)\n", f.Category, f.Content, f.Confidence)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("query", "", "Search query")
	searchCmd.Flags().Int("limit", 10, "Maximum number of episodes to return")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	searchCmd.MarkFlagRequired("query")
}
