package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (database, cached annotations, snapshots)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				fmt.Println("ℹ️  No database configured, skipping.")
			} else if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetFiles {
			files := cachedFiles(Cfg.Global.CacheDir, Cfg.Global.Annotations)
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete %d cached annotation files and snapshots?", len(files))) {
				fmt.Println("🗑️  Clearing Cached Files...")
				for _, f := range files {
					remove(f)
				}
				if Cfg.Render.SnapshotDir != "" {
					remove(Cfg.Render.SnapshotDir)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "database", false, "Clear PostgreSQL database")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear cached annotation files and snapshots")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().String("cache-dir", ".", "Directory for cached annotation files")
	resetCmd.Flags().String("snapshot-dir", "", "Snapshot directory to remove")
	rootCmd.AddCommand(resetCmd)
}

// cachedFiles lists the annotation caches in dir (recognized by their lock
// file) and the configured annotations file, if any.
func cachedFiles(dir, explicit string) []string {
	var files []string
	locks, _ := filepath.Glob(filepath.Join(dir, "*.json.lock"))
	for _, lock := range locks {
		files = append(files, strings.TrimSuffix(lock, ".lock"), lock)
	}
	if explicit != "" {
		files = append(files, explicit, explicit+".lock")
	}
	return files
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func remove(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
