package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// Source yields a completed annotation result. Implementations may call the
// provider, read a cache, or wrap another Source.
type Source interface {
	Fetch(ctx context.Context) (*Result, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Result, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (*Result, error) {
	return f(ctx)
}

// envelope matches both a bare result and the operation wrapper
// {"response": {...}} that the provider's REST API returns.
type envelope struct {
	Response *Result `json:"response"`
	Result
}

// DecodeResult reads a JSON annotation result.
func DecodeResult(r io.Reader) (*Result, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode annotation result: %w", err)
	}
	if env.Response != nil {
		return env.Response, nil
	}
	res := env.Result
	return &res, nil
}

// EncodeResult writes res as indented JSON.
func EncodeResult(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// FileSource reads a result from a JSON file. It never calls the provider.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (*Result, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeResult(f)
}

// FileCache serves a result from Path when present, otherwise fetches it from
// Next and writes it to Path. A lock file next to Path serializes concurrent
// runs against the same cache entry.
type FileCache struct {
	Path   string
	Next   Source
	Logger zerolog.Logger
}

// Fetch implements Source.
func (c *FileCache) Fetch(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	lock := flock.New(c.Path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock annotation cache: %w", err)
	}
	defer lock.Unlock()

	res, err := FileSource{Path: c.Path}.Fetch(ctx)
	switch {
	case err == nil:
		c.Logger.Info().Str("path", c.Path).Msg("found cached annotations, using them")
		return res, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read annotation cache %s: %w", c.Path, err)
	}

	if c.Next == nil {
		return nil, fmt.Errorf("no cached annotations at %s and no upstream source", c.Path)
	}

	res, err = c.Next.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.save(res); err != nil {
		return nil, err
	}
	c.Logger.Info().Str("path", c.Path).Msg("cached annotation result")
	return res, nil
}

func (c *FileCache) save(res *Result) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.Path), filepath.Base(c.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeResult(tmp, res); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path); err != nil {
		return fmt.Errorf("persist cache file: %w", err)
	}
	return nil
}
