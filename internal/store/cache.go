package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/rs/zerolog"
)

// resultStore is the part of Store the cache decorator needs.
type resultStore interface {
	LoadResult(ctx context.Context, videoID string) (*annotation.Result, error)
	SaveResult(ctx context.Context, videoID, uri string, res *annotation.Result, policy annotation.BoxPolicy) error
}

// CachedSource serves annotations from the database, falling back to Next
// and persisting what it returns.
type CachedSource struct {
	Store   resultStore
	VideoID string
	URI     string
	Policy  annotation.BoxPolicy
	Next    annotation.Source
	Logger  zerolog.Logger
}

func (c *CachedSource) Fetch(ctx context.Context) (*annotation.Result, error) {
	res, err := c.Store.LoadResult(ctx, c.VideoID)
	if err == nil {
		c.Logger.Info().Str("video_id", c.VideoID).Msg("found stored annotations, using them")
		return res, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load stored annotations: %w", err)
	}
	if c.Next == nil {
		return nil, fmt.Errorf("no stored annotations for %s and no upstream source", c.VideoID)
	}

	res, err = c.Next.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Store.SaveResult(ctx, c.VideoID, c.URI, res, c.Policy); err != nil {
		return nil, fmt.Errorf("store annotations: %w", err)
	}
	c.Logger.Debug().Str("video_id", c.VideoID).Msg("annotations stored")
	return res, nil
}
