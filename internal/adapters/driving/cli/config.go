package cli

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	settings, err := configStore.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	cmd.Print(string(data))
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	cmd.Println(configStore.Path())
	return nil
}
