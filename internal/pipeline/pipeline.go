// Package pipeline joins the aligner and renderer into the sequential
// decode, align, render, encode loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/iverona/face-detect/internal/align"
	"github.com/iverona/face-detect/internal/annotation"
	"github.com/rs/zerolog"
)

// FrameReader yields decoded frames in order and io.EOF after the last one.
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
}

// FrameWriter consumes output frames in order.
type FrameWriter interface {
	WriteFrame(img image.Image) error
}

// FrameRenderer draws detections on a copy of a frame.
type FrameRenderer interface {
	Render(frame image.Image, events []annotation.Event) *image.NRGBA
}

// Stats counts what happened to each input frame.
type Stats struct {
	Read    int
	Overlay int
	Plain   int
	Skipped int
}

// Written is the number of frames handed to the writer.
func (s Stats) Written() int {
	return s.Overlay + s.Plain
}

// Pipeline is a single-threaded frame loop. Output order equals input order.
type Pipeline struct {
	Reader   FrameReader
	Writer   FrameWriter
	Aligner  *align.Aligner
	Renderer FrameRenderer
	Logger   zerolog.Logger

	// OnFrame, if set, is called after every decision (progress reporting).
	OnFrame func(align.Decision)
	// SnapshotDir, if set, receives a JPEG of every overlay frame.
	SnapshotDir string
	// MaxFrames stops the loop after that many input frames when > 0.
	MaxFrames int
}

// Run consumes the reader until EOF, MaxFrames or ctx cancellation.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if p.SnapshotDir != "" {
		if err := os.MkdirAll(p.SnapshotDir, 0755); err != nil {
			return stats, fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	for n := 0; p.MaxFrames <= 0 || n < p.MaxFrames; n++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := p.Reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read frame %d: %w", n, err)
		}
		stats.Read++

		d := p.Aligner.Decide(n)
		p.Logger.Debug().Int("frame", n).Str("offset", d.Offset).Stringer("action", d.Action).Int("faces", len(d.Events)).Msg("frame aligned")

		switch d.Action {
		case align.Overlay:
			out := p.Renderer.Render(frame, d.Events)
			if err := p.Writer.WriteFrame(out); err != nil {
				return stats, fmt.Errorf("write frame %d: %w", n, err)
			}
			stats.Overlay++
			if p.SnapshotDir != "" {
				if err := p.snapshot(n, out); err != nil {
					return stats, err
				}
			}
		case align.Plain:
			if err := p.Writer.WriteFrame(frame); err != nil {
				return stats, fmt.Errorf("write frame %d: %w", n, err)
			}
			stats.Plain++
		default:
			stats.Skipped++
		}

		if p.OnFrame != nil {
			p.OnFrame(d)
		}
	}

	return stats, nil
}

func (p *Pipeline) snapshot(n int, img image.Image) error {
	path := filepath.Join(p.SnapshotDir, fmt.Sprintf("frame_%06d.jpg", n))
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}
