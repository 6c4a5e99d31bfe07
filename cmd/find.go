package cmd

import (
	"fmt"
	"strconv"

	"github.com/iverona/face-detect/internal/config"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var findThreshold float64

var findCmd = &cobra.Command{
	Use:   "find <attribute>",
	Short: "Search stored detections for an attribute such as smiling or glasses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			return err
		}

		hits, err := DB.FindEvents(cmd.Context(), args[0], findThreshold)
		if err != nil {
			utils.ShowError("Database search failed", err, nil)
			return err
		}
		if len(hits) == 0 {
			fmt.Printf("❌ No faces with %q at confidence >= %.2f.\n", args[0], findThreshold)
			return nil
		}

		rows := make([][]string, 0, len(hits))
		for _, h := range hits {
			rows = append(rows, []string{
				config.BaseName(h.URI),
				h.Offset + "s",
				strconv.FormatFloat(h.Confidence, 'f', 2, 64),
				fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", h.Box.Left, h.Box.Top, h.Box.Right, h.Box.Bottom),
			})
		}
		fmt.Println(renderTable([]string{"VIDEO", "OFFSET", "CONFIDENCE", "BOX (L,T,R,B)"}, rows, 1, 2))
		return nil
	},
}

func init() {
	findCmd.Flags().Float64VarP(&findThreshold, "threshold", "t", 0.6, "Minimum attribute confidence")
	rootCmd.AddCommand(findCmd)
}
