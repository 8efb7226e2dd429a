package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgebird/birdsync/internal/config"
	"github.com/edgebird/birdsync/internal/ui"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "birdsync",
	Short: "Upload BirdNET detections and audio to the cloud",
	Long: `birdsync drains new detections from the local BirdNET database, posts each
one to the species ingestion endpoint, uploads its audio clip, and records
progress in a checkpoint file so nothing is lost across restarts.

Without --daemon it runs one batch and exits. With --daemon it keeps running,
pausing --sleep minutes (or following INFERENCE_UPLOAD_SCHEDULE) between
batches.

Examples:
  birdsync                       # one batch
  birdsync --daemon --sleep 5    # run forever, 5 minutes between batches
  birdsync status                # show checkpoint and backlog`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default $BIRDSYNC_CONFIG or "+config.DefaultPath+")")
	rootCmd.Flags().Bool("daemon", false, "Keep running and sync on an interval")
	rootCmd.Flags().Int("sleep", 2, "Minutes between batches in daemon mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var re *reportedError
		if errors.As(err, &re) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}

// loadSettings reads the settings file. When no file was named and the
// default one does not exist, settings come from the environment alone.
func loadSettings() (config.Config, error) {
	path := config.ResolvePath(configPath)

	envOnly := false
	if path == config.DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			envOnly = true
		}
	}

	return config.Load(path, envOnly)
}

// reportedError is an error that was already written to the log. main exits
// without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	return &reportedError{err: err}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}
