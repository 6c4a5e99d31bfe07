// Package video wraps ffmpeg and ffprobe: stream metadata, a raw RGBA frame
// decoder and a raw RGBA encoder.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Info describes the first video stream of a file.
type Info struct {
	FPS    float64
	Width  int
	Height int
	Frames int // 0 when the container does not say and counting failed
}

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Probe reads stream metadata with ffprobe. When the container carries no frame
// count it falls back to counting packets, which reads the whole file.
func Probe(ctx context.Context, path string, log zerolog.Logger) (Info, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return Info{}, fmt.Errorf("ffprobe not found: %w", err)
	}

	// Fast path: container metadata.
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info, err := parseProbe(out)
	if err != nil {
		return Info{}, err
	}
	if info.Frames > 0 {
		return info, nil
	}

	// Slow path: count packets.
	log.Info().Str("path", path).Msg("frame count missing from metadata, counting packets")
	cmd = exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	out, err = cmd.Output()
	if err != nil {
		log.Warn().Err(err).Msg("ffprobe packet count failed")
		return info, nil
	}
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		log.Warn().Err(err).Msg("ffprobe packet count unreadable")
		return info, nil
	}
	if n, err := strconv.Atoi(res.Streams[0].NbReadPackets); err == nil {
		info.Frames = n
	}
	return info, nil
}

func parseProbe(out []byte) (Info, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return Info{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream found")
	}
	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Info{}, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	fps, err := ParseFrameRate(s.AvgFrameRate)
	if err != nil {
		// avg_frame_rate is 0/0 for some streams; r_frame_rate is always set.
		fps, err = ParseFrameRate(s.RFrameRate)
		if err != nil {
			return Info{}, err
		}
	}

	info := Info{FPS: fps, Width: s.Width, Height: s.Height}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.Frames = n
	}
	return info, nil
}

// ParseFrameRate parses ffprobe rates such as "24000/1001" or "25".
func ParseFrameRate(s string) (float64, error) {
	num, den, isFrac := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	d := 1.0
	if isFrac {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}
