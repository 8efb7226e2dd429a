package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgebird/birdsync/internal/config"
	"github.com/edgebird/birdsync/internal/hostid"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective settings",
	Long: `Print the settings birdsync would run with, after defaults and BIRDSYNC_
environment overrides are applied, followed by any validation problems.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadSettings()
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("# %s\n", config.ResolvePath(configPath))
		fmt.Printf("# device id: %s\n", hostid.Resolve(cfg.DeviceID))
		if err := writeYAML(os.Stdout, cfg); err != nil {
			fatalf("%v", err)
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "\ninvalid settings:\n%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func writeYAML(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}
