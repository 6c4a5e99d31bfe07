package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/iverona/face-detect/internal/config"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/cobra"
)

var sampleOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print a sample configuration file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		var w io.Writer = cmd.OutOrStdout()
		if sampleOut != "" {
			if _, err := os.Stat(sampleOut); err == nil {
				err := fmt.Errorf("%s already exists", sampleOut)
				utils.ShowError("Refusing to overwrite config", err, nil)
				return err
			}
			f, err := os.Create(sampleOut)
			if err != nil {
				utils.ShowError("Failed to create config file", err, nil)
				return err
			}
			defer f.Close()
			w = f
		}
		if err := config.WriteSample(w); err != nil {
			utils.ShowError("Failed to write config", err, nil)
			return err
		}
		if sampleOut != "" {
			fmt.Printf("✅ Wrote sample config to %s\n", sampleOut)
		}
		return nil
	},
}

func init() {
	configCmd.Flags().StringVarP(&sampleOut, "output", "o", "", "Write the sample to this file instead of stdout")
	rootCmd.AddCommand(configCmd)
}
