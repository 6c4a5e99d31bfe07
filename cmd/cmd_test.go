package cmd

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/iverona/face-detect/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(input, []byte("not really a video"), 0644))
	return &config.Config{
		Global: config.Global{
			InputVideoGCSURI:    "gs://bucket/clip.mp4",
			InputVideo:          input,
			OutputVideoFilename: filepath.Join(dir, "out.mp4"),
			CacheDir:            dir,
		},
		Render:   config.Render{OutputFPS: 10, AttributeThreshold: 0.6, MissThreshold: 2, LinePitch: 20, BoxPolicy: "fail-fast"},
		Provider: config.Provider{Timeout: time.Minute},
	}
}

func TestValidateRenderFlags(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, validateRenderFlags(cfg))

	missing := testConfig(t)
	missing.Global.InputVideo = filepath.Join(t.TempDir(), "nope.mp4")
	assert.Error(t, validateRenderFlags(missing))

	dir := testConfig(t)
	dir.Global.InputVideo = t.TempDir()
	assert.Error(t, validateRenderFlags(dir))

	same := testConfig(t)
	same.Global.OutputVideoFilename = same.Global.InputVideo
	err := validateRenderFlags(same)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")

	bad := testConfig(t)
	bad.Render.AttributeThreshold = 2
	assert.Error(t, validateRenderFlags(bad))
}

func TestBuildSourceUsesCachedFile(t *testing.T) {
	Log = zerolog.Nop()
	DB = nil

	cfg := testConfig(t)
	cfg.Global.InputVideoGCSURI = ""
	cfg.Global.Annotations = filepath.Join(cfg.Global.CacheDir, "response.json")

	res := &annotation.Result{AnnotationResults: []annotation.VideoResult{{
		FaceDetectionAnnotations: []annotation.FaceDetectionAnnotation{{
			Tracks: []annotation.Track{{TimestampedObjects: []annotation.TimestampedObject{{
				TimeOffset: &annotation.Duration{Seconds: 2},
				NormalizedBoundingBox: &annotation.Box{
					Left: annotation.Float64(0.1), Top: annotation.Float64(0.1),
					Right: annotation.Float64(0.2), Bottom: annotation.Float64(0.2),
				},
			}}}},
		}},
	}}}
	f, err := os.Create(cfg.Global.Annotations)
	require.NoError(t, err)
	require.NoError(t, annotation.EncodeResult(f, res))
	require.NoError(t, f.Close())

	_, idx, err := loadIndex(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := idx.Lookup("2.000000")
	assert.True(t, ok)

	// Without a URI and without a cached file there is nothing to fetch from.
	cfg.Global.Annotations = filepath.Join(cfg.Global.CacheDir, "missing.json")
	_, _, err = loadIndex(context.Background(), cfg)
	assert.Error(t, err)
}

func TestWriteThumbnails(t *testing.T) {
	res := &annotation.Result{AnnotationResults: []annotation.VideoResult{{
		FaceDetectionAnnotations: []annotation.FaceDetectionAnnotation{
			{Thumbnail: []byte{0xFF, 0xD8, 0x01}},
			{},
			{Thumbnail: []byte{0xFF, 0xD8, 0x02}},
		},
	}}}
	dir := filepath.Join(t.TempDir(), "thumbs")

	n, err := writeThumbnails(res, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second, err := os.ReadFile(filepath.Join(dir, "img1.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x02}, second)

	_, err = writeThumbnails(&annotation.Result{}, dir)
	assert.ErrorIs(t, err, annotation.ErrNoResults)
}

func TestIndexRows(t *testing.T) {
	res := &annotation.Result{AnnotationResults: []annotation.VideoResult{{
		FaceDetectionAnnotations: []annotation.FaceDetectionAnnotation{{
			Tracks: []annotation.Track{{TimestampedObjects: []annotation.TimestampedObject{{
				TimeOffset: &annotation.Duration{Seconds: 10},
				NormalizedBoundingBox: &annotation.Box{
					Left: annotation.Float64(0.1), Top: annotation.Float64(0.2),
					Right: annotation.Float64(0.3), Bottom: annotation.Float64(0.4),
				},
				Attributes: []annotation.Attribute{{Name: "smiling", Confidence: 0.9}, {Name: "bald", Confidence: 0.1}},
			}}}},
		}},
	}}}
	idx, err := annotation.BuildIndex(res)
	require.NoError(t, err)

	rows := indexRows(idx, 0.6)
	assert.Equal(t, [][]string{{"10.000000", "0", "0.100,0.200,0.300,0.400", "smiling"}}, rows)

	out := renderTable([]string{"OFFSET", "FACE", "BOX (L,T,R,B)", "ATTRIBUTES"}, rows, 1)
	assert.Contains(t, out, "OFFSET")
	assert.Contains(t, out, "10.000000")
}

func TestCachedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"clip.mp4.json", "clip.mp4.json.lock", "package.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files := cachedFiles(dir, "")
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "clip.mp4.json"),
		filepath.Join(dir, "clip.mp4.json.lock"),
	}, files, "unrelated json files are left alone")

	files = cachedFiles(dir, "/tmp/response.json")
	assert.Contains(t, files, "/tmp/response.json")
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	assert.Equal(t, "", databaseURL(""))
	assert.Equal(t, "postgres://x", databaseURL("postgres://x"))

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "faces")
	t.Setenv("POSTGRES_PORT", "")
	assert.Equal(t, "postgres://u:p@db:5432/faces", databaseURL(""))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(bufio.NewReader(strings.NewReader("YES\n")), &out, "sure?"))
	assert.False(t, confirm(bufio.NewReader(strings.NewReader("\n")), &out, "sure?"))
	assert.Contains(t, out.String(), "sure? [y/N]")
}

func TestRequireDB(t *testing.T) {
	DB = nil
	assert.ErrorIs(t, requireDB(), errNoDatabase)
}
