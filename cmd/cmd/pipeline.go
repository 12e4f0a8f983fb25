package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	advanceAll         bool
	advanceConcurrency int
	rejectReason       string
)

var advanceCmd = &cobra.Command{
	Use:   "advance [item-id]",
	Short: "Run the next pipeline stage for an item (or all pending items)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		orch := buildOrchestrator(s)
		ctx := context.Background()

		if advanceAll {
			n, err := orch.AdvanceAllPending(ctx, advanceConcurrency)
			if err != nil {
				return err
			}
			fmt.Printf("advanced %d pending item(s)\n", n)
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("an item id is required unless --all-pending is set")
		}
		item, err := orch.Advance(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("item %s is now %s\n", item.ID, item.Status)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <item-id>",
	Short: "Retry a parked or in-flight item from its current stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		item, err := buildOrchestrator(s).Retry(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("item %s is now %s\n", item.ID, item.Status)
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <item-id>",
	Short: "Classify an extracted item through the provider chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		item, err := buildOrchestrator(s).Classify(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("item %s is now %s (%s)\n", item.ID, item.Status, item.StatusReason)
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <item-id>",
	Short: "Generate the artifact draft for an approved item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		artifact, err := buildOrchestrator(s).Generate(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("generated %s draft for item %s:\n\n%s\n", artifact.Target, artifact.ItemID, artifact.Content)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <item-id>",
	Short: "Permanently reject an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if rejectReason == "" {
			return fmt.Errorf("--reason is required")
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		item, err := buildOrchestrator(s).Reject(context.Background(), args[0], rejectReason)
		if err != nil {
			return err
		}
		fmt.Printf("item %s rejected\n", item.ID)
		return nil
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group items that likely cover the same story",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		groups, err := buildOrchestrator(s).ClusterItems(context.Background())
		if err != nil {
			return err
		}
		for _, group := range groups {
			fmt.Printf("group %s (%d items, best %s)\n", group.ID[:8], len(group.Items), group.Best.ID)
		}
		fmt.Printf("%d group(s)\n", len(groups))
		return nil
	},
}

func init() {
	advanceCmd.Flags().BoolVar(&advanceAll, "all-pending", false, "advance every pending item")
	advanceCmd.Flags().IntVar(&advanceConcurrency, "concurrency", 4, "bounded fan-out for --all-pending")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "diagnostic reason for the rejection")

	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(clusterCmd)
}
