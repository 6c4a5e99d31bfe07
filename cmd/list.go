package cmd

import (
	"fmt"
	"strconv"

	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all annotated videos in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			return err
		}

		videos, err := DB.ListVideos(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to list videos", err, nil)
			return err
		}
		if len(videos) == 0 {
			fmt.Println("No videos found in database.")
			return nil
		}

		rows := make([][]string, 0, len(videos))
		for _, v := range videos {
			lastRun := "-"
			if v.LastRun != nil {
				lastRun = v.LastRun.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				shortID(v.ID),
				v.URI,
				strconv.Itoa(v.Events),
				v.IndexedAt.Local().Format("2006-01-02 15:04"),
				lastRun,
			})
		}
		fmt.Println(renderTable([]string{"ID", "URI", "FACES", "INDEXED", "LAST RENDER"}, rows, 2))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
