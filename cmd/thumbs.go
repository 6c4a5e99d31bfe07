package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var thumbsDir string

var thumbsCmd = &cobra.Command{
	Use:   "thumbs",
	Short: "Export the provider's per-face thumbnails as JPEG files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		res, _, err := loadIndex(cmd.Context(), Cfg)
		if err != nil {
			utils.ShowError("Failed to load annotations", err, nil)
			return err
		}
		n, err := writeThumbnails(res, thumbsDir)
		if err != nil {
			utils.ShowError("Failed to write thumbnails", err, nil)
			return err
		}
		fmt.Printf("✅ Wrote %d thumbnails to %s\n", n, thumbsDir)
		return nil
	},
}

func init() {
	addSourceFlags(thumbsCmd.Flags())
	thumbsCmd.Flags().StringVarP(&thumbsDir, "dir", "d", "thumbs", "Output directory")
	rootCmd.AddCommand(thumbsCmd)
}

// writeThumbnails writes every non-empty thumbnail of the first video result
// as img<n>.jpeg, numbering from 0 in source order.
func writeThumbnails(res *annotation.Result, dir string) (int, error) {
	if len(res.AnnotationResults) == 0 {
		return 0, annotation.ErrNoResults
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	n := 0
	for _, group := range res.AnnotationResults[0].FaceDetectionAnnotations {
		if len(group.Thumbnail) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("img%d.jpeg", n))
		if err := os.WriteFile(path, group.Thumbnail, 0644); err != nil {
			return n, fmt.Errorf("write %s: %w", path, err)
		}
		n++
	}
	return n, nil
}
