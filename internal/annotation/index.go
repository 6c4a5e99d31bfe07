package annotation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrMalformed is wrapped by every indexing error caused by bad provider data.
	ErrMalformed = errors.New("malformed annotation result")
	// ErrNoResults means the result carried no top-level annotation result.
	ErrNoResults = errors.New("annotation result has no video results")
)

// BoxPolicy decides what happens to a bounding box coordinate that is absent.
type BoxPolicy int

const (
	// FailFast aborts indexing on an absent coordinate.
	FailFast BoxPolicy = iota
	// DefaultToFrameEdge substitutes the frame edge: 0 for left/top, 1 for right/bottom.
	DefaultToFrameEdge
)

func (p BoxPolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case DefaultToFrameEdge:
		return "frame-edge"
	default:
		return fmt.Sprintf("BoxPolicy(%d)", int(p))
	}
}

// ParseBoxPolicy maps a configuration value to a BoxPolicy.
func ParseBoxPolicy(s string) (BoxPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "frame-edge", "default-to-frame-edge":
		return DefaultToFrameEdge, nil
	default:
		return FailFast, fmt.Errorf("unknown box policy %q (want fail-fast or frame-edge)", s)
	}
}

// Index maps canonical offsets to the events observed there. It is read-only
// once built.
type Index struct {
	events map[string][]Event
	count  int
}

// IndexOption configures BuildIndex.
type IndexOption func(*indexConfig)

type indexConfig struct {
	policy BoxPolicy
}

// WithBoxPolicy sets the policy for absent box coordinates.
func WithBoxPolicy(p BoxPolicy) IndexOption {
	return func(c *indexConfig) { c.policy = p }
}

// BuildIndex flattens the first video result into an offset index. Events that
// share an offset keep the order in which their tracks and objects appear in
// the source. Any malformed field aborts the whole build.
func BuildIndex(res *Result, opts ...IndexOption) (*Index, error) {
	cfg := indexConfig{policy: FailFast}
	for _, opt := range opts {
		opt(&cfg)
	}

	if res == nil || len(res.AnnotationResults) == 0 {
		return nil, ErrNoResults
	}

	idx := &Index{events: make(map[string][]Event)}
	for g, group := range res.AnnotationResults[0].FaceDetectionAnnotations {
		for t, track := range group.Tracks {
			for o, obj := range track.TimestampedObjects {
				ev, key, err := resolve(obj, cfg.policy)
				if err != nil {
					return nil, fmt.Errorf("%w: group %d track %d object %d: %v", ErrMalformed, g, t, o, err)
				}
				idx.events[key] = append(idx.events[key], ev)
				idx.count++
			}
		}
	}
	return idx, nil
}

func resolve(obj TimestampedObject, policy BoxPolicy) (Event, string, error) {
	if obj.TimeOffset == nil {
		return Event{}, "", errors.New("missing timeOffset")
	}
	if obj.TimeOffset.Seconds < 0 || obj.TimeOffset.Nanos < 0 {
		return Event{}, "", errors.New("negative timeOffset")
	}
	if obj.NormalizedBoundingBox == nil {
		return Event{}, "", errors.New("missing normalizedBoundingBox")
	}

	box, err := resolveBox(*obj.NormalizedBoundingBox, policy)
	if err != nil {
		return Event{}, "", err
	}

	attrs := make([]Attribute, len(obj.Attributes))
	for i, a := range obj.Attributes {
		if a.Name == "" {
			return Event{}, "", fmt.Errorf("attribute %d: missing name", i)
		}
		if !unit(a.Confidence) {
			return Event{}, "", fmt.Errorf("attribute %q: confidence %v outside [0,1]", a.Name, a.Confidence)
		}
		attrs[i] = a
	}

	return Event{Box: box, Attributes: attrs}, OffsetOf(*obj.TimeOffset), nil
}

func resolveBox(b Box, policy BoxPolicy) (BoundingBox, error) {
	coord := func(name string, v *float64, edge float64) (float64, error) {
		if v == nil {
			if policy == DefaultToFrameEdge {
				return edge, nil
			}
			return 0, fmt.Errorf("normalizedBoundingBox: missing %s", name)
		}
		if !unit(*v) {
			return 0, fmt.Errorf("normalizedBoundingBox: %s %v outside [0,1]", name, *v)
		}
		return *v, nil
	}

	var (
		out BoundingBox
		err error
	)
	if out.Left, err = coord("left", b.Left, 0); err != nil {
		return BoundingBox{}, err
	}
	if out.Top, err = coord("top", b.Top, 0); err != nil {
		return BoundingBox{}, err
	}
	if out.Right, err = coord("right", b.Right, 1); err != nil {
		return BoundingBox{}, err
	}
	if out.Bottom, err = coord("bottom", b.Bottom, 1); err != nil {
		return BoundingBox{}, err
	}
	return out, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Lookup returns the events at a canonical offset.
func (i *Index) Lookup(offset string) ([]Event, bool) {
	if i == nil {
		return nil, false
	}
	ev, ok := i.events[offset]
	return ev, ok
}

// Len returns the number of distinct offsets.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.events)
}

// EventCount returns the total number of events across all offsets.
func (i *Index) EventCount() int {
	if i == nil {
		return 0
	}
	return i.count
}

// Offsets returns every key in ascending time order.
func (i *Index) Offsets() []string {
	if i == nil {
		return nil
	}
	keys := make([]string, 0, len(i.events))
	for k := range i.events {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		va, _ := ParseOffset(keys[a])
		vb, _ := ParseOffset(keys[b])
		return va < vb
	})
	return keys
}
