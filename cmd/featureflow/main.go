// Command featureflow runs feature lists against simulated hardware and
// serves the engine over HTTP.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warriorguo/featureflow/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config  string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "featureflow",
	Short: "Acquisition feature sequencing for light-sheet microscopes",
	Long: "featureflow runs acquisition feature lists: a signal goroutine drives the\n" +
		"hardware through the feature tree while a data goroutine serves frames\n" +
		"to the nodes that asked for them.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if rootFlags.verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootFlags.config, "config", "c", config.FileName, "configuration file")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
