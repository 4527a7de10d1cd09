package main

import (
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/warriorguo/featureflow/config"
)

var configFlags struct {
	write bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: "Print the effective configuration: the defaults overlaid with the\n" +
		"configuration file. With --write the result is saved to the file, which\n" +
		"is the easiest way to start a configuration from the defaults.",
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configFlags.write, "write", false, "write the configuration file")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(rootFlags.config)
	if err != nil {
		return err
	}
	if !configFlags.write {
		return c.Write(cmd.OutOrStdout())
	}

	f, err := os.Create(rootFlags.config)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	if err := c.Write(f); err != nil {
		return err
	}
	return errors.Trace(f.Close())
}
