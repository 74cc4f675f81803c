package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"linkgraph/application/ports"
	"linkgraph/application/services"
	"linkgraph/domain/core/entities"
)

func addLinkCommands(root *cobra.Command) {
	createCmd := &cobra.Command{
		Use:   "create <from> <to> <kind>",
		Short: "Create a link",
		Example: `  linkctl create task:42 project:7 child_of --tenant acme
  linkctl create task:1 task:2 blocks --note "needs API first"`,
		Args: cobra.ExactArgs(3),
		RunE: runCreate,
	}
	createCmd.Flags().String("note", "", "free-text note")
	createCmd.Flags().String("metadata", "", "metadata as a JSON object")
	createCmd.Flags().Bool("allow-duplicates", false, "skip the duplicate check")

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the kind, note, metadata or active flag of a link",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	updateCmd.Flags().String("kind", "", "new link kind")
	updateCmd.Flags().String("note", "", "new note")
	updateCmd.Flags().String("metadata", "", "new metadata as a JSON object")
	updateCmd.Flags().Bool("active", true, "active flag")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Deactivate a link, or remove it with --hard",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	deleteCmd.Flags().Bool("hard", false, "remove the link permanently")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a link",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	listCmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "List the links touching an entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}
	listCmd.Flags().StringSlice("kind", nil, "only these link kinds")
	listCmd.Flags().String("direction", "", "outgoing, incoming or both")
	listCmd.Flags().Bool("inactive", false, "include deactivated links")

	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Find links by endpoint types and kind",
		Args:  cobra.NoArgs,
		RunE:  runFind,
	}
	findCmd.Flags().String("from-type", "", "source entity type")
	findCmd.Flags().String("to-type", "", "target entity type")
	findCmd.Flags().String("kind", "", "link kind")
	findCmd.Flags().Bool("inactive", false, "include deactivated links")
	findCmd.Flags().Int("limit", 0, "maximum number of links")

	purgeCmd := &cobra.Command{
		Use:   "purge <entity>",
		Short: "Deactivate every link of an entity, or remove them with --hard",
		Args:  cobra.ExactArgs(1),
		RunE:  runPurge,
	}
	purgeCmd.Flags().Bool("hard", false, "remove the links permanently")

	summaryCmd := &cobra.Command{
		Use:   "summary <entity> <title>",
		Short: "Store the display data shown for an entity in link listings",
		Args:  cobra.ExactArgs(2),
		RunE:  runSummary,
	}
	summaryCmd.Flags().String("status", "", "entity status")
	summaryCmd.Flags().String("url", "", "entity URL")

	root.AddCommand(createCmd, updateCmd, deleteCmd, getCmd, listCmd, findCmd, purgeCmd, summaryCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	from, err := parseRef(args[0], tenantID)
	if err != nil {
		return err
	}
	to, err := parseRef(args[1], tenantID)
	if err != nil {
		return err
	}
	kinds, err := parseKinds(args[2:3])
	if err != nil {
		return err
	}

	note, _ := cmd.Flags().GetString("note")
	rawMetadata, _ := cmd.Flags().GetString("metadata")
	allowDuplicates, _ := cmd.Flags().GetBool("allow-duplicates")
	metadata, err := parseMetadata(rawMetadata)
	if err != nil {
		return err
	}

	link, err := app.LinkService.CreateLink(cmd.Context(), from, to, kinds[0], services.CreateLinkOptions{
		Note:            note,
		Metadata:        metadata,
		AllowDuplicates: allowDuplicates,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), link)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}

	var patch entities.LinkPatch
	flags := cmd.Flags()
	if flags.Changed("kind") {
		value, _ := flags.GetString("kind")
		kinds, err := parseKinds([]string{value})
		if err != nil {
			return err
		}
		patch.Kind = &kinds[0]
	}
	if flags.Changed("note") {
		note, _ := flags.GetString("note")
		patch.Note = &note
	}
	if flags.Changed("metadata") {
		raw, _ := flags.GetString("metadata")
		metadata, err := parseMetadata(raw)
		if err != nil {
			return err
		}
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		patch.Metadata = metadata
	}
	if flags.Changed("active") {
		active, _ := flags.GetBool("active")
		patch.Active = &active
	}
	if patch.IsEmpty() {
		return fmt.Errorf("nothing to update (use --kind, --note, --metadata or --active)")
	}

	link, err := app.LinkService.UpdateLink(cmd.Context(), args[0], patch, tenantID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), link)
}

func runDelete(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	hard, _ := cmd.Flags().GetBool("hard")
	if err := app.LinkService.DeleteLink(cmd.Context(), args[0], tenantID, !hard); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Link %s deleted\n", args[0])
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	link, err := app.LinkService.GetLink(cmd.Context(), args[0], tenantID)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("link %s not found", args[0])
	}
	return printJSON(cmd.OutOrStdout(), link)
}

func runList(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	ref, err := parseRef(args[0], tenantID)
	if err != nil {
		return err
	}

	rawKinds, _ := cmd.Flags().GetStringSlice("kind")
	rawDirection, _ := cmd.Flags().GetString("direction")
	inactive, _ := cmd.Flags().GetBool("inactive")
	kinds, err := parseKinds(rawKinds)
	if err != nil {
		return err
	}
	direction, err := parseDirection(rawDirection)
	if err != nil {
		return err
	}

	links, err := app.LinkService.GetEntityLinks(cmd.Context(), ref, services.EntityLinksOptions{
		Kinds:           kinds,
		IncludeInactive: inactive,
		Direction:       direction,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), links)
}

func runFind(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	fromType, _ := cmd.Flags().GetString("from-type")
	toType, _ := cmd.Flags().GetString("to-type")
	kind, _ := cmd.Flags().GetString("kind")
	inactive, _ := cmd.Flags().GetBool("inactive")
	limit, _ := cmd.Flags().GetInt("limit")

	links, err := app.LinkService.FindLinks(cmd.Context(),
		entities.EntityType(fromType), entities.EntityType(toType), entities.LinkKind(kind), tenantID,
		services.FindOptions{IncludeInactive: inactive, Limit: limit},
	)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), links)
}

func runPurge(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	ref, err := parseRef(args[0], tenantID)
	if err != nil {
		return err
	}
	hard, _ := cmd.Flags().GetBool("hard")

	count, err := app.LinkService.DeleteEntityLinks(cmd.Context(), ref, !hard)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d links of %s deleted\n", count, ref)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	ref, err := parseRef(args[0], tenantID)
	if err != nil {
		return err
	}
	store, ok := app.Repository.(ports.EntitySummaryStore)
	if !ok {
		return fmt.Errorf("storage backend %q does not keep entity summaries", app.Config.Storage)
	}

	status, _ := cmd.Flags().GetString("status")
	url, _ := cmd.Flags().GetString("url")
	summary := entities.EntitySummary{
		ID:     ref.ID,
		Title:  args[1],
		Type:   ref.Type,
		Status: status,
		URL:    url,
	}
	if err := store.UpsertEntitySummary(cmd.Context(), tenantID, summary); err != nil {
		return err
	}
	// Cached listings of the entity carry the old display data.
	if err := app.LinkService.InvalidateCache(cmd.Context(), &ref); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}
