package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase all stored memory for this workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		if !force {
			fmt.Printf("Clear all memory for workspace %q (%s)? This deletes every stored fact. [y/N]: ", workspaceID, workspacePath)
			var response string
			fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		e, _, err := openEngine("")
		if err != nil {
			return err
		}

		if err := e.Clear(context.Background()); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}

		fmt.Printf("memory cleared, state=%s\n", e.State())
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("force", false, "Skip the confirmation prompt")
}
