package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/iverona/face-detect/internal/align"
	"github.com/iverona/face-detect/internal/config"
	"github.com/iverona/face-detect/internal/logging"
	"github.com/iverona/face-detect/internal/overlay"
	"github.com/iverona/face-detect/internal/pipeline"
	"github.com/iverona/face-detect/internal/store"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/iverona/face-detect/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Draw face detections onto the video and write the thinned result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRender(cmd.Context(), Cfg)
	},
}

func init() {
	addSourceFlags(renderCmd.Flags())
	renderCmd.Flags().StringP("input", "i", "", "Local video to decode (default: basename of the GCS URI)")
	renderCmd.Flags().StringP("output", "o", "output.mp4", "Path to output video")
	renderCmd.Flags().Float64("fps", 0, "Input frame rate (0 = probe the video)")
	renderCmd.Flags().Float64("output-fps", 10, "Frame rate of the output video")
	renderCmd.Flags().Float64P("attribute-threshold", "t", 0.6, "Minimum confidence for an attribute label")
	renderCmd.Flags().Int("miss-threshold", align.DefaultMissThreshold, "Frames dropped after a miss before one is kept")
	renderCmd.Flags().Int("line-pitch", 20, "Vertical pixels between attribute labels")
	renderCmd.Flags().Int("max-frames", 0, "Stop after this many input frames (0 = all)")
	renderCmd.Flags().String("snapshot-dir", "", "Save a JPEG of every annotated frame here")
	rootCmd.AddCommand(renderCmd)
}

func runRender(ctx context.Context, cfg *config.Config) error {
	// Kill ffmpeg children if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateRenderFlags(cfg); err != nil {
		return err
	}
	log := logging.Component(Log, "render")
	input := cfg.InputVideo()
	output := cfg.Global.OutputVideoFilename

	_, idx, err := loadIndex(ctx, cfg)
	if err != nil {
		utils.ShowError("Failed to load annotations", err, nil)
		return err
	}

	info, err := video.Probe(ctx, input, log)
	if err != nil {
		utils.ShowError("Failed to probe input video", err, nil)
		return err
	}
	fps := cfg.Render.FPS
	if fps <= 0 {
		fps = info.FPS
	}
	log.Info().Str("file", input).Float64("fps", fps).Int("width", info.Width).Int("height", info.Height).
		Int("offsets", idx.Len()).Int("faces", idx.EventCount()).Msg("starting render")

	aligner, err := align.New(idx, fps, cfg.Render.MissThreshold)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	opts := overlay.DefaultOptions()
	opts.AttributeThreshold = cfg.Render.AttributeThreshold
	opts.LinePitch = cfg.Render.LinePitch

	dec, err := video.NewDecoder(ctx, input, info.Width, info.Height)
	if err != nil {
		utils.ShowError("Failed to start decoder", err, nil)
		return err
	}
	enc, err := video.NewEncoder(ctx, output, cfg.Render.OutputFPS, info.Width, info.Height)
	if err != nil {
		cancel()
		dec.Close()
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}

	p := &pipeline.Pipeline{
		Reader:      dec,
		Writer:      enc,
		Aligner:     aligner,
		Renderer:    overlay.New(opts),
		Logger:      log,
		SnapshotDir: cfg.Render.SnapshotDir,
		MaxFrames:   cfg.Render.MaxFrames,
	}

	var bar *progressbar.ProgressBar
	if logging.IsTerminal(os.Stderr) {
		total := int64(info.Frames)
		if cfg.Render.MaxFrames > 0 && (total <= 0 || int64(cfg.Render.MaxFrames) < total) {
			total = int64(cfg.Render.MaxFrames)
		}
		if total <= 0 {
			total = -1
		}
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("Rendering"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		p.OnFrame = func(align.Decision) { bar.Add(1) }
	}

	start := time.Now()
	stats, runErr := p.Run(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if runErr != nil {
		cancel()
		dec.Close()
		enc.Close()
		if errors.Is(runErr, context.Canceled) {
			return runErr
		}
		utils.ShowError("Render failed", runErr, dec.Cmd)
		return runErr
	}

	if err := enc.Close(); err != nil {
		dec.Close()
		utils.ShowError("Encoder failed", err, enc.Cmd)
		return err
	}
	stoppedEarly := cfg.Render.MaxFrames > 0 && stats.Read >= cfg.Render.MaxFrames
	if err := dec.Close(); err != nil && !stoppedEarly {
		utils.ShowError("Decoder failed", err, dec.Cmd)
		return err
	}

	elapsed := time.Since(start)
	log.Info().Int("read", stats.Read).Int("overlay", stats.Overlay).Int("plain", stats.Plain).
		Int("skipped", stats.Skipped).Dur("elapsed", elapsed).Str("output", output).Msg("render complete")
	if stats.Written() == 0 {
		log.Warn().Msg("no frames were written; the output video is empty")
	}

	if DB != nil {
		run := store.Run{
			ID:       uuid.NewString(),
			VideoID:  utils.GenerateVideoID(sourceURI(cfg)),
			Output:   output,
			Read:     stats.Read,
			Overlay:  stats.Overlay,
			Plain:    stats.Plain,
			Skipped:  stats.Skipped,
			Duration: elapsed,
		}
		if err := DB.RecordRun(ctx, run); err != nil {
			log.Warn().Err(err).Msg("failed to record run")
		}
	}

	fmt.Printf("✅ Wrote %d of %d frames to %s\n", stats.Written(), stats.Read, output)
	return nil
}

func validateRenderFlags(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	input := cfg.InputVideo()
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input file", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("is a directory")
		utils.ShowError("Input path is a directory, expected a video file", err, nil)
		return err
	}

	// Writing over the input corrupts it while it is still being decoded.
	inAbs, _ := filepath.Abs(input)
	outAbs, _ := filepath.Abs(cfg.Global.OutputVideoFilename)
	if inAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different to prevent file corruption")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}
