package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgebird/birdsync/internal/checkpoint"
	"github.com/edgebird/birdsync/internal/detections"
	"github.com/edgebird/birdsync/internal/hostid"
	"github.com/edgebird/birdsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint, backlog and pending audio",
	Long: `Display where the uploader stands:

  - the stored checkpoint and whether it will be trusted
  - how many detections are newer than it
  - the newest detection in the database
  - how many audio clips are waiting in CLOUD_UPLOAD_DIR`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		if cfg.UploadDir == "" {
			return errors.New("CLOUD_UPLOAD_DIR is not set")
		}

		deviceID := hostid.Resolve(cfg.DeviceID)
		store := checkpoint.NewStore(cfg.UploadDir, cfg.ResetDays, nil)

		fmt.Printf("\n%s birdsync status\n\n", ui.RenderAccent("●"))
		fmt.Printf("%s %s\n", ui.RenderLabel("Device"), deviceID)
		fmt.Printf("%s %s\n", ui.RenderLabel("Database"), cfg.DBPath)
		fmt.Printf("%s %s\n", ui.RenderLabel("Upload dir"), cfg.UploadDir)

		since, line := describeCheckpoint(store, time.Now())
		fmt.Printf("%s %s\n", ui.RenderLabel("Checkpoint"), line)

		pending, err := countPending(cfg.UploadDir)
		if err != nil {
			fmt.Printf("%s %s\n", ui.RenderLabel("Pending audio"), ui.RenderWarn(err.Error()))
		} else {
			fmt.Printf("%s %d files\n", ui.RenderLabel("Pending audio"), pending)
		}

		source, err := detections.Open(cfg.DBPath, deviceID)
		if err != nil {
			fmt.Printf("%s %s\n\n", ui.RenderLabel("Backlog"), ui.RenderFail(err.Error()))
			return reported(err)
		}
		defer source.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		backlog, err := source.CountSince(ctx, since)
		if err != nil {
			fmt.Printf("%s %s\n\n", ui.RenderLabel("Backlog"), ui.RenderFail(err.Error()))
			return reported(err)
		}
		if backlog == 0 {
			fmt.Printf("%s %s\n", ui.RenderLabel("Backlog"), ui.RenderPass("up to date"))
		} else {
			fmt.Printf("%s %d detections\n", ui.RenderLabel("Backlog"), backlog)
		}

		latest, ok, err := source.Latest(ctx)
		fmt.Printf("%s %s\n\n", ui.RenderLabel("Newest"), describeLatest(latest, ok, err))
		if err != nil {
			return reported(err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// describeCheckpoint returns the watermark the next sync would use and a
// line explaining where it came from. It reads without repairing.
func describeCheckpoint(store *checkpoint.Store, now time.Time) (int64, string) {
	epoch, ok, err := store.Peek()
	switch {
	case err != nil:
		def := store.Default()
		return def, fmt.Sprintf("%s, next sync uses %s", ui.RenderWarn("unreadable"), formatEpochAt(def, now))
	case !ok:
		def := store.Default()
		return def, fmt.Sprintf("%s, next sync uses %s", ui.RenderMuted("none"), formatEpochAt(def, now))
	case epoch > now.Unix():
		def := store.Default()
		return def, fmt.Sprintf("%d %s, next sync uses %s", epoch, ui.RenderWarn("(in the future)"), formatEpochAt(def, now))
	default:
		return epoch, fmt.Sprintf("%d (%s)", epoch, formatEpochAt(epoch, now))
	}
}

// describeLatest renders the newest detection line, including a failed
// lookup.
func describeLatest(latest int64, ok bool, err error) string {
	switch {
	case err != nil:
		return ui.RenderFail(err.Error())
	case !ok:
		return ui.RenderMuted("no detections yet")
	default:
		return formatEpoch(latest)
	}
}

// countPending counts audio files waiting in the upload directory. The
// checkpoint and hidden files are not audio.
func countPending(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read upload dir: %w", err)
	}

	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == checkpoint.FileName || strings.HasPrefix(name, ".") {
			continue
		}
		n++
	}
	return n, nil
}
