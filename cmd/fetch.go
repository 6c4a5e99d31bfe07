package cmd

import (
	"fmt"

	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch face-detection annotations and cache them without rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if Cfg.Global.InputVideoGCSURI == "" && Cfg.Global.Annotations == "" {
			err := fmt.Errorf("--gcs-uri is required")
			utils.ShowError("Configuration Error", err, nil)
			return err
		}

		_, idx, err := loadIndex(cmd.Context(), Cfg)
		if err != nil {
			utils.ShowError("Failed to fetch annotations", err, nil)
			return err
		}
		fmt.Printf("✅ %d faces at %d offsets cached in %s\n", idx.EventCount(), idx.Len(), Cfg.AnnotationsPath())
		return nil
	},
}

func init() {
	addSourceFlags(fetchCmd.Flags())
	rootCmd.AddCommand(fetchCmd)
}
