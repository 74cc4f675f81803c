package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"linkgraph/application/services"
	"linkgraph/domain/core/entities"
)

func addBulkCommands(root *cobra.Command) {
	bulkCreateCmd := &cobra.Command{
		Use:   "bulk-create <file>",
		Short: "Create the links listed in a JSON file (- reads stdin)",
		Long: `bulk-create reads a JSON array of link requests:

  [{"from": {"type": "task", "id": "1"}, "to": {"type": "project", "id": "7"}, "kind": "child_of"}]

Endpoint tenants default to --tenant.`,
		Args: cobra.ExactArgs(1),
		RunE: runBulkCreate,
	}
	bulkCreateCmd.Flags().Bool("partial", false, "write the valid links even when some fail")
	bulkCreateCmd.Flags().Int("batch-size", 0, "links per storage batch")

	bulkDeleteCmd := &cobra.Command{
		Use:   "bulk-delete <id>...",
		Short: "Delete several links",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBulkDelete,
	}
	bulkDeleteCmd.Flags().Bool("hard", false, "remove the links permanently")

	warmCmd := &cobra.Command{
		Use:   "warm <entity>...",
		Short: "Load the links of entities into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWarm,
	}

	root.AddCommand(bulkCreateCmd, bulkDeleteCmd, warmCmd)
}

func runBulkCreate(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	requests, err := readRequests(cmd, args[0], tenantID)
	if err != nil {
		return err
	}
	partial, _ := cmd.Flags().GetBool("partial")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	result, err := app.LinkService.CreateBulkLinks(cmd.Context(), requests, tenantID, services.BulkCreateOptions{
		AllowPartialFailure: partial,
		BatchSize:           batchSize,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// readRequests decodes link requests from path, filling in missing tenants.
func readRequests(cmd *cobra.Command, path, tenantID string) ([]entities.LinkRequest, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var requests []entities.LinkRequest
	if err := json.NewDecoder(r).Decode(&requests); err != nil {
		return nil, fmt.Errorf("decode link requests: %w", err)
	}
	for i := range requests {
		if requests[i].From.TenantID == "" {
			requests[i].From.TenantID = tenantID
		}
		if requests[i].To.TenantID == "" {
			requests[i].To.TenantID = tenantID
		}
	}
	return requests, nil
}

func runBulkDelete(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	hard, _ := cmd.Flags().GetBool("hard")

	result, err := app.LinkService.DeleteBulkLinks(cmd.Context(), args, tenantID, !hard, services.BulkDeleteOptions{})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runWarm(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	refs, err := parseRefs(args, tenantID)
	if err != nil {
		return err
	}

	warmed, err := app.LinkService.WarmCache(cmd.Context(), refs)
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entities warmed\n", warmed, len(refs))
	return err
}
