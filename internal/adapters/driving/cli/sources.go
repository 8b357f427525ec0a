package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage tracked document sources",
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked sources",
	RunE:  runSourcesList,
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a source and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

func init() {
	sourcesCmd.PersistentFlags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	sources, err := sourceService.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	if sourcesJSON {
		data, err := json.MarshalIndent(sources, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding sources: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(sources) == 0 {
		cmd.Println("No sources tracked.")
		return nil
	}
	for _, source := range sources {
		cmd.Printf("  %-36s  %-20s  %s\n", source.ID, source.Status, source.Location)
		if source.ErrorMessage != "" {
			cmd.Printf("  %-36s  %s\n", "", source.ErrorMessage)
		}
	}
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	if err := sourceService.RemoveSource(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing source: %w", err)
	}
	cmd.Printf("Removed source %s\n", args[0])
	return nil
}
