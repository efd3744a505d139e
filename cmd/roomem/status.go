package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this workspace's memory engine state and stored fact counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, st, err := openEngine("")
		if err != nil {
			return err
		}

		records, err := st.Filter(context.Background(), memmodel.Filter{}, 0)
		if err != nil {
			return fmt.Errorf("read store: %w", err)
		}

		active, superseded, resolved := 0, 0, 0
		byCategory := map[string]int{}
		for _, rec := range records {
			switch {
			case rec.Payload["resolved"] == "true":
				resolved++
			case rec.Payload["superseded_by"] != "":
				superseded++
			default:
				active++
			}
			byCategory[rec.Payload["category"]]++
		}

		fmt.Printf("workspace:   %s (%s)\n", workspaceID, workspacePath)
		fmt.Printf("collection:  %s\n", st.CollectionName())
		fmt.Printf("state:       %s\n", e.State())
		fmt.Printf("total facts: %d (active=%d superseded=%d resolved=%d)\n", len(records), active, superseded, resolved)
		for cat, n := range byCategory {
			fmt.Printf("  %-15s %d\n", cat, n)
		}
		return nil
	},
}
