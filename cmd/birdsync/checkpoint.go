package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edgebird/birdsync/internal/checkpoint"
	"github.com/edgebird/birdsync/internal/ui"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or move the upload checkpoint",
	Long: `The checkpoint is the event time of the last detection that was fully
uploaded. It lives in CLOUD_UPLOAD_DIR/` + checkpoint.FileName + `.

Moving it back re-sends detections; moving it forward skips them.`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored checkpoint",
	Run: func(cmd *cobra.Command, args []string) {
		store := checkpointStore()

		epoch, ok, err := store.Peek()
		switch {
		case err != nil:
			fmt.Printf("%s Checkpoint is unreadable: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Printf("   The next sync resets it to %s\n", formatEpoch(store.Default()))
		case !ok:
			fmt.Printf("%s No checkpoint at %s\n", ui.RenderWarn("⚠"), store.Path())
			fmt.Printf("   The next sync starts from %s\n", formatEpoch(store.Default()))
		default:
			fmt.Printf("%s %d (%s)\n", ui.RenderAccent("Checkpoint"), epoch, formatEpoch(epoch))
			if epoch > time.Now().Unix() {
				fmt.Printf("   %s it is in the future and will be ignored\n", ui.RenderWarn("warning:"))
			}
		}
	},
}

var checkpointSetCmd = &cobra.Command{
	Use:   "set <when>",
	Short: "Move the checkpoint to a point in time",
	Long: `Move the checkpoint to a unix timestamp or a natural-language time.

Examples:
  birdsync checkpoint set 1718000000
  birdsync checkpoint set "yesterday"
  birdsync checkpoint set "3 days ago"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		store := checkpointStore()

		now := time.Now()
		at, err := parseWhen(strings.Join(args, " "), now)
		if err != nil {
			fatalf("%v", err)
		}
		if at.After(now) {
			fatalf("refusing to set the checkpoint in the future (%s)", at.Format(time.RFC3339))
		}

		epoch := at.Unix()
		if !yes && !confirm(fmt.Sprintf("Set checkpoint to %s?", formatEpoch(epoch))) {
			fmt.Println("Cancelled")
			return
		}

		if err := store.Save(epoch); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Checkpoint set to %d (%s)\n", ui.RenderPass("✓"), epoch, formatEpoch(epoch))
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the checkpoint",
	Long: `Delete the checkpoint file. The next sync starts from the default lookback
window (INFERENCE_UPLOAD_DEFAULT_RESETDAYS).`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		store := checkpointStore()

		if !yes && !confirm(fmt.Sprintf("Delete %s?", store.Path())) {
			fmt.Println("Cancelled")
			return
		}

		if err := store.Clear(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Checkpoint removed, next sync starts from %s\n", ui.RenderPass("✓"), formatEpoch(store.Default()))
	},
}

func init() {
	checkpointSetCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	checkpointResetCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointSetCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// checkpointStore only needs CLOUD_UPLOAD_DIR, so it skips full validation.
func checkpointStore() *checkpoint.Store {
	cfg, err := loadSettings()
	if err != nil {
		fatalf("%v", err)
	}
	if cfg.UploadDir == "" {
		fatalf("CLOUD_UPLOAD_DIR is not set")
	}
	return checkpoint.NewStore(cfg.UploadDir, cfg.ResetDays, nil)
}

var timeParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseWhen accepts a unix timestamp or an English time expression relative
// to now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}, fmt.Errorf("negative timestamp %d", n)
		}
		return time.Unix(n, 0), nil
	}

	r, err := timeParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand %q as a time", s)
	}
	return r.Time, nil
}

// confirm asks a yes/no question. Without a terminal it answers no.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Not a terminal; pass --yes to confirm")
		return false
	}

	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false
	}
	return ok
}

func formatEpoch(epoch int64) string {
	return formatEpochAt(epoch, time.Now())
}

func formatEpochAt(epoch int64, now time.Time) string {
	t := time.Unix(epoch, 0).In(now.Location())
	d := now.Sub(t).Round(time.Second)
	if d < 0 {
		return fmt.Sprintf("%s, in %s", t.Format("2006-01-02 15:04:05 MST"), -d)
	}
	return fmt.Sprintf("%s, %s ago", t.Format("2006-01-02 15:04:05 MST"), d)
}
