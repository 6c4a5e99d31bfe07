package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/iverona/face-detect/internal/config"
	"github.com/iverona/face-detect/internal/logging"
	"github.com/iverona/face-detect/internal/provider"
	"github.com/iverona/face-detect/internal/store"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/spf13/pflag"
)

// addSourceFlags registers the flags that locate the annotations.
func addSourceFlags(fs *pflag.FlagSet) {
	fs.StringP("gcs-uri", "g", "", "gs:// URI of the video to annotate")
	fs.StringP("annotations", "a", "", "Annotation cache file (default: <cache-dir>/<video>.json)")
	fs.String("cache-dir", ".", "Directory for cached annotation files")
	fs.Duration("timeout", provider.DefaultTimeout, "Maximum wait for the face detection operation")
	fs.String("box-policy", annotation.FailFast.String(), "Absent box coordinates: fail-fast or frame-edge")
}

// sourceURI identifies the annotated video for ids and the store.
func sourceURI(cfg *config.Config) string {
	if cfg.Global.InputVideoGCSURI != "" {
		return cfg.Global.InputVideoGCSURI
	}
	if abs, err := filepath.Abs(cfg.AnnotationsPath()); err == nil {
		return abs
	}
	return cfg.AnnotationsPath()
}

// buildSource chains provider -> file cache -> database cache. Without a GCS
// URI only cached copies are consulted.
func buildSource(cfg *config.Config, policy annotation.BoxPolicy) annotation.Source {
	var src annotation.Source
	if cfg.Global.InputVideoGCSURI != "" {
		src = &provider.Client{
			InputURI: cfg.Global.InputVideoGCSURI,
			Timeout:  cfg.Provider.Timeout,
			Logger:   logging.Component(Log, "provider"),
		}
	}

	src = &annotation.FileCache{
		Path:   cfg.AnnotationsPath(),
		Next:   src,
		Logger: logging.Component(Log, "cache"),
	}

	if DB != nil {
		uri := sourceURI(cfg)
		src = &store.CachedSource{
			Store:   DB,
			VideoID: utils.GenerateVideoID(uri),
			URI:     uri,
			Policy:  policy,
			Next:    src,
			Logger:  logging.Component(Log, "store"),
		}
	}
	return src
}

// loadIndex fetches the annotations and indexes them under the configured policy.
func loadIndex(ctx context.Context, cfg *config.Config) (*annotation.Result, *annotation.Index, error) {
	policy, err := cfg.BoxPolicy()
	if err != nil {
		return nil, nil, err
	}
	res, err := buildSource(cfg, policy).Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch annotations: %w", err)
	}
	idx, err := annotation.BuildIndex(res, annotation.WithBoxPolicy(policy))
	if err != nil {
		return nil, nil, err
	}
	return res, idx, nil
}
