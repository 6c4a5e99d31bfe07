package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/iverona/face-detect/internal/overlay"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the time-offset index of the cached annotations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		_, idx, err := loadIndex(cmd.Context(), Cfg)
		if err != nil {
			utils.ShowError("Failed to load annotations", err, nil)
			return err
		}
		if idx.Len() == 0 {
			fmt.Println("No faces detected.")
			return nil
		}
		fmt.Println(renderTable([]string{"OFFSET", "FACE", "BOX (L,T,R,B)", "ATTRIBUTES"},
			indexRows(idx, Cfg.Render.AttributeThreshold), 1))
		fmt.Printf("%d faces at %d offsets\n", idx.EventCount(), idx.Len())
		return nil
	},
}

func init() {
	addSourceFlags(indexCmd.Flags())
	indexCmd.Flags().Float64P("attribute-threshold", "t", 0.6, "Minimum confidence for an attribute to be listed")
	rootCmd.AddCommand(indexCmd)
}

func indexRows(idx *annotation.Index, threshold float64) [][]string {
	var rows [][]string
	for _, off := range idx.Offsets() {
		events, _ := idx.Lookup(off)
		for i, ev := range events {
			b := ev.Box
			rows = append(rows, []string{
				off,
				strconv.Itoa(i),
				fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", b.Left, b.Top, b.Right, b.Bottom),
				strings.Join(overlay.Labels(ev.Attributes, threshold), " "),
			})
		}
	}
	return rows
}
