package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "config.toml"

// Global holds the input/output locations.
type Global struct {
	InputVideoGCSURI    string `mapstructure:"input_video_gcs_uri"`
	InputVideo          string `mapstructure:"input_video"`
	OutputVideoFilename string `mapstructure:"output_video_filename"`
	Annotations         string `mapstructure:"annotations"`
	CacheDir            string `mapstructure:"cache_dir"`
}

// Render holds the pipeline knobs.
type Render struct {
	FPS                float64 `mapstructure:"fps"`
	OutputFPS          float64 `mapstructure:"output_fps"`
	AttributeThreshold float64 `mapstructure:"attribute_threshold"`
	MissThreshold      int     `mapstructure:"miss_threshold"`
	LinePitch          int     `mapstructure:"line_pitch"`
	BoxPolicy          string  `mapstructure:"box_policy"`
	MaxFrames          int     `mapstructure:"max_frames"`
	SnapshotDir        string  `mapstructure:"snapshot_dir"`
}

type Provider struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type DB struct {
	URL string `mapstructure:"url"`
}

// Config is the merged view of defaults, config file, environment and flags.
type Config struct {
	Global   Global   `mapstructure:"global"`
	Render   Render   `mapstructure:"render"`
	Provider Provider `mapstructure:"provider"`
	Log      Log      `mapstructure:"log"`
	DB       DB       `mapstructure:"db"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// flagKeys maps config keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"global.input_video_gcs_uri":   "gcs-uri",
	"global.input_video":           "input",
	"global.output_video_filename": "output",
	"global.annotations":           "annotations",
	"global.cache_dir":             "cache-dir",
	"render.fps":                   "fps",
	"render.output_fps":            "output-fps",
	"render.attribute_threshold":   "attribute-threshold",
	"render.miss_threshold":        "miss-threshold",
	"render.line_pitch":            "line-pitch",
	"render.box_policy":            "box-policy",
	"render.max_frames":            "max-frames",
	"render.snapshot_dir":          "snapshot-dir",
	"provider.timeout":             "timeout",
	"log.level":                    "log-level",
	"db.url":                       "db",
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("global.input_video_gcs_uri", "")
	v.SetDefault("global.input_video", "")
	v.SetDefault("global.output_video_filename", "output.mp4")
	v.SetDefault("global.annotations", "")
	v.SetDefault("global.cache_dir", ".")

	v.SetDefault("render.fps", 0.0)
	v.SetDefault("render.output_fps", 10.0)
	v.SetDefault("render.attribute_threshold", 0.6)
	v.SetDefault("render.miss_threshold", 2)
	v.SetDefault("render.line_pitch", 20)
	v.SetDefault("render.box_policy", annotation.FailFast.String())
	v.SetDefault("render.max_frames", 0)
	v.SetDefault("render.snapshot_dir", "")

	v.SetDefault("provider.timeout", "600s")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.url", "")

	v.SetEnvPrefix("FACE_DETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// then applies environment variables and any changed flags in flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// WriteSample writes the default configuration as TOML.
func WriteSample(w io.Writer) error {
	return toml.NewEncoder(w).Encode(newViper().AllSettings())
}

// InputVideo is the local video to decode. It defaults to the basename of
// the GCS URI, so the video is expected next to the working directory.
func (c *Config) InputVideo() string {
	if c.Global.InputVideo != "" {
		return c.Global.InputVideo
	}
	return BaseName(c.Global.InputVideoGCSURI)
}

// AnnotationsPath is where the fetched provider response is cached.
func (c *Config) AnnotationsPath() string {
	if c.Global.Annotations != "" {
		return c.Global.Annotations
	}
	name := BaseName(c.Global.InputVideoGCSURI)
	if name == "" {
		name = filepath.Base(c.Global.InputVideo)
	}
	return filepath.Join(c.Global.CacheDir, name+".json")
}

// BoxPolicy parses Render.BoxPolicy.
func (c *Config) BoxPolicy() (annotation.BoxPolicy, error) {
	return annotation.ParseBoxPolicy(c.Render.BoxPolicy)
}

// BaseName returns the last path element of a URI such as gs://bucket/dir/clip.mp4.
func BaseName(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return path.Base(uri)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// Validate checks the values the render pipeline relies on.
func (c *Config) Validate() error {
	if c.Global.InputVideoGCSURI == "" && c.Global.Annotations == "" {
		return errors.New("either global.input_video_gcs_uri or global.annotations must be set")
	}
	if c.InputVideo() == "" {
		return errors.New("cannot determine input video: set global.input_video")
	}
	if c.Global.OutputVideoFilename == "" {
		return errors.New("global.output_video_filename must not be empty")
	}
	r := c.Render
	if r.FPS < 0 || math.IsNaN(r.FPS) || math.IsInf(r.FPS, 0) {
		return fmt.Errorf("render.fps must be positive or 0 to probe, got %v", r.FPS)
	}
	if r.OutputFPS <= 0 || math.IsNaN(r.OutputFPS) || math.IsInf(r.OutputFPS, 0) {
		return fmt.Errorf("render.output_fps must be positive, got %v", r.OutputFPS)
	}
	if r.AttributeThreshold < 0 || r.AttributeThreshold > 1 || math.IsNaN(r.AttributeThreshold) {
		return fmt.Errorf("render.attribute_threshold must be in [0,1], got %v", r.AttributeThreshold)
	}
	if r.MissThreshold < 0 {
		return fmt.Errorf("render.miss_threshold must not be negative, got %d", r.MissThreshold)
	}
	if r.LinePitch <= 0 {
		return fmt.Errorf("render.line_pitch must be positive, got %d", r.LinePitch)
	}
	if r.MaxFrames < 0 {
		return fmt.Errorf("render.max_frames must not be negative, got %d", r.MaxFrames)
	}
	if _, err := c.BoxPolicy(); err != nil {
		return err
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive, got %s", c.Provider.Timeout)
	}
	return nil
}
