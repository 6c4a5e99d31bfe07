package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strconv"

	"github.com/iverona/face-detect/internal/utils"
)

var (
	// ErrTruncatedFrame means the decoder stream ended in the middle of a frame.
	ErrTruncatedFrame = errors.New("truncated frame in decoder stream")
	// ErrFrameSize means a frame does not match the stream dimensions.
	ErrFrameSize = errors.New("frame size does not match stream")
)

// RawReader splits a raw RGBA byte stream into frames.
type RawReader struct {
	r             io.Reader
	width, height int
}

// NewRawReader reads width x height RGBA frames from r.
func NewRawReader(r io.Reader, width, height int) *RawReader {
	return &RawReader{r: r, width: width, height: height}
}

// ReadFrame returns the next frame in a fresh buffer owned by the caller.
// It returns io.EOF at a clean end of stream.
func (rr *RawReader) ReadFrame() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, rr.width, rr.height))
	_, err := io.ReadFull(rr.r, img.Pix)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrTruncatedFrame
	default:
		return nil, err
	}
}

// Decoder runs ffmpeg and yields raw RGBA frames from its stdout.
type Decoder struct {
	*RawReader
	Cmd *utils.SafeCommand
	out io.ReadCloser
}

// NewDecoder starts ffmpeg decoding path to rawvideo.
func NewDecoder(ctx context.Context, path string, width, height int) (*Decoder, error) {
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", path, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}
	return &Decoder{RawReader: NewRawReader(out, width, height), Cmd: cmd, out: out}, nil
}

// Close waits for ffmpeg to exit. Closing before EOF kills the stream.
func (d *Decoder) Close() error {
	d.out.Close()
	if err := d.Cmd.Wait(); err != nil {
		return fmt.Errorf("decoder process failed: %w", err)
	}
	return nil
}

// RawWriter writes frames as raw RGBA bytes.
type RawWriter struct {
	w             io.Writer
	width, height int
	scratch       *image.RGBA
}

// NewRawWriter writes width x height RGBA frames to w.
func NewRawWriter(w io.Writer, width, height int) *RawWriter {
	return &RawWriter{w: w, width: width, height: height}
}

// WriteFrame writes img. Opaque RGBA and NRGBA images with a tight stride are
// written directly; anything else is converted first.
func (rw *RawWriter) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != rw.width || b.Dy() != rw.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), rw.width, rw.height)
	}

	var pix []byte
	switch m := img.(type) {
	case *image.RGBA:
		if m.Stride == 4*rw.width {
			pix = m.Pix[:4*rw.width*rw.height]
		}
	case *image.NRGBA:
		// Decoded video is opaque, so NRGBA and RGBA bytes are identical.
		if m.Stride == 4*rw.width {
			pix = m.Pix[:4*rw.width*rw.height]
		}
	}
	if pix == nil {
		if rw.scratch == nil {
			rw.scratch = image.NewRGBA(image.Rect(0, 0, rw.width, rw.height))
		}
		draw.Draw(rw.scratch, rw.scratch.Bounds(), img, b.Min, draw.Src)
		pix = rw.scratch.Pix
	}

	_, err := rw.w.Write(pix)
	return err
}

// Encoder runs ffmpeg and feeds it raw RGBA frames on stdin.
type Encoder struct {
	*RawWriter
	Cmd *utils.SafeCommand
	in  io.WriteCloser
}

// NewEncoder starts ffmpeg encoding raw frames at fps into path.
func NewEncoder(ctx context.Context, path string, fps float64, width, height int) (*Encoder, error) {
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		path)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &Encoder{RawWriter: NewRawWriter(in, width, height), Cmd: cmd, in: in}, nil
}

// Close flushes stdin and waits for ffmpeg to finish the container.
func (e *Encoder) Close() error {
	if err := e.in.Close(); err != nil {
		return fmt.Errorf("close encoder pipe: %w", err)
	}
	if err := e.Cmd.Wait(); err != nil {
		return fmt.Errorf("encoder process failed: %w", err)
	}
	return nil
}
