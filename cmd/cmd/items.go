package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"curator/internal/core"
)

var (
	addTitle     string
	addPublisher string
	listStatus   string
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a raw item to the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		now := time.Now().UTC()
		item := core.Item{
			ID:           uuid.NewString(),
			URL:          args[0],
			Title:        addTitle,
			Publisher:    addPublisher,
			DiscoveredAt: now,
			UpdatedAt:    now,
			Status:       core.StatusPending,
		}
		if err := s.SaveItem(context.Background(), item); err != nil {
			return fmt.Errorf("failed to save item: %w", err)
		}
		fmt.Printf("added item %s (%s)\n", item.ID, item.URL)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		filter := core.ItemFilter{}
		if listStatus != "" {
			status := core.ItemStatus(listStatus)
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", listStatus)
			}
			filter.Status = status
		}

		items, err := s.ListItems(context.Background(), filter)
		if err != nil {
			return err
		}
		for _, item := range items {
			group := ""
			if item.DuplicateGroupID != "" {
				group = "  group=" + item.DuplicateGroupID[:8]
			}
			fmt.Printf("%s  %-12s  %s%s\n", item.ID, item.Status, item.Title, group)
		}
		fmt.Printf("%d item(s)\n", len(items))
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "item title")
	addCmd.Flags().StringVar(&addPublisher, "publisher", "", "publisher name")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
}
