package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"linkgraph/application/services"
)

func addGraphCommands(root *cobra.Command) {
	graphCmd := &cobra.Command{
		Use:   "graph <entity>",
		Short: "Show the neighbourhood of an entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraph,
	}
	graphCmd.Flags().Int("depth", 2, "number of hops to expand")
	graphCmd.Flags().String("direction", "", "outgoing, incoming or both")
	graphCmd.Flags().StringSlice("kind", nil, "only follow these link kinds")

	pathCmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Find the shortest chain of links between two entities",
		Args:  cobra.ExactArgs(2),
		RunE:  runPath,
	}
	pathCmd.Flags().Int("max-depth", 0, "maximum number of hops (0 uses the configured default)")
	pathCmd.Flags().String("direction", "", "outgoing, incoming or both")
	pathCmd.Flags().StringSlice("kind", nil, "only follow these link kinds")

	cycleCmd := &cobra.Command{
		Use:   "cycle-check <from> <to> <kind>",
		Short: "Report whether a new link would close a hierarchy or dependency cycle",
		Args:  cobra.ExactArgs(3),
		RunE:  runCycleCheck,
	}

	root.AddCommand(graphCmd, pathCmd, cycleCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	root, err := parseRef(args[0], tenantID)
	if err != nil {
		return err
	}
	depth, _ := cmd.Flags().GetInt("depth")
	opts, err := traversalFlags(cmd)
	if err != nil {
		return err
	}

	graph, err := app.LinkService.GetEntityGraph(cmd.Context(), root, depth, services.GraphOptions{
		Direction: opts.Direction,
		Kinds:     opts.Kinds,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), graph)
}

func runPath(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	refs, err := parseRefs(args, tenantID)
	if err != nil {
		return err
	}
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	opts, err := traversalFlags(cmd)
	if err != nil {
		return err
	}
	opts.MaxDepth = maxDepth

	path, err := app.LinkService.FindPath(cmd.Context(), refs[0], refs[1], opts)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "No path from %s to %s\n", refs[0], refs[1])
	}
	return printJSON(cmd.OutOrStdout(), path)
}

func runCycleCheck(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	refs, err := parseRefs(args[:2], tenantID)
	if err != nil {
		return err
	}
	kinds, err := parseKinds(args[2:])
	if err != nil {
		return err
	}

	ok, err := app.LinkService.ValidateNoCycle(cmd.Context(), refs[0], refs[1], kinds[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"from":    refs[0],
		"to":      refs[1],
		"kind":    kinds[0],
		"acyclic": ok,
	})
}

// traversalFlags reads the shared --direction and --kind flags.
func traversalFlags(cmd *cobra.Command) (services.PathOptions, error) {
	rawDirection, _ := cmd.Flags().GetString("direction")
	rawKinds, _ := cmd.Flags().GetStringSlice("kind")

	direction, err := parseDirection(rawDirection)
	if err != nil {
		return services.PathOptions{}, err
	}
	kinds, err := parseKinds(rawKinds)
	if err != nil {
		return services.PathOptions{}, err
	}
	return services.PathOptions{Direction: direction, Kinds: kinds}, nil
}
