// Package cli implements the retriva command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driving"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Services injected by the composition root before Execute runs.
var (
	ingestService   driving.IngestService
	retrieveService driving.RetrieveService
	sourceService   driving.SourceService
	configStore     driven.ConfigStore

	version = "dev"
	verbose bool
)

// Ports bundles everything the CLI needs from the composition root.
type Ports struct {
	Ingest   driving.IngestService
	Retrieve driving.RetrieveService
	Source   driving.SourceService
	Config   driven.ConfigStore
}

var rootCmd = &cobra.Command{
	Use:   "retriva",
	Short: "Local document ingestion and hybrid retrieval",
	Long: `Retriva ingests document collections into a searchable store and
answers queries by combining semantic, full-text and pattern search.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// Execute wires the services and runs the root command.
func Execute(ports *Ports, buildVersion string) error {
	ingestService = ports.Ingest
	retrieveService = ports.Retrieve
	sourceService = ports.Source
	configStore = ports.Config
	if buildVersion != "" {
		version = buildVersion
	}
	return rootCmd.Execute()
}
