package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roo-code/conversation-memory/pkg/engine"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Feed one conversation turn into the memory engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		content, _ := cmd.Flags().GetString("content")
		conversationID, _ := cmd.Flags().GetString("conversation-id")
		factsJSON, _ := cmd.Flags().GetString("facts-json")

		if content == "" {
			return fmt.Errorf("--content is required")
		}

		e, _, err := openEngine(factsJSON)
		if err != nil {
			return err
		}

		err = e.OnTurn(context.Background(), engine.TurnInput{
			Message: memmodel.Message{
				Role:      memmodel.Role(role),
				Content:   content,
				Timestamp: time.Now(),
			},
			ConversationID: conversationID,
		})
		if err != nil {
			return fmt.Errorf("turn failed: %w", err)
		}

		fmt.Printf("turn recorded, state=%s\n", e.State())
		return nil
	},
}

func init() {
	turnCmd.Flags().String("role", "assistant", "Speaker role (user/assistant/system)")
	turnCmd.Flags().String("content", "", "Message content")
	turnCmd.Flags().String("conversation-id", "", "Conversation identifier")
	turnCmd.Flags().String("facts-json", "", "Path to a JSON file of canned extraction output (see pkg/extract's {\"facts\":[...]} shape); without it no fact extraction runs")
	turnCmd.MarkFlagRequired("content")
}
