package annotation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Result is a completed face-detection result as returned by the provider.
// Field names follow the provider's REST/JSON representation so cached
// responses can be read back verbatim.
type Result struct {
	AnnotationResults []VideoResult `json:"annotationResults"`
}

// VideoResult holds the annotations for one input video.
type VideoResult struct {
	InputURI                 string                    `json:"inputUri,omitempty"`
	FaceDetectionAnnotations []FaceDetectionAnnotation `json:"faceDetectionAnnotations,omitempty"`
}

// FaceDetectionAnnotation groups the tracks of one detected face.
type FaceDetectionAnnotation struct {
	Tracks    []Track `json:"tracks,omitempty"`
	Thumbnail []byte  `json:"thumbnail,omitempty"` // JPEG, base64 in JSON
}

// Track is an ordered sequence of observations of one face.
type Track struct {
	TimestampedObjects []TimestampedObject `json:"timestampedObjects,omitempty"`
}

// TimestampedObject is one observation of a face at one time offset.
type TimestampedObject struct {
	TimeOffset            *Duration   `json:"timeOffset,omitempty"`
	NormalizedBoundingBox *Box        `json:"normalizedBoundingBox,omitempty"`
	Attributes            []Attribute `json:"attributes,omitempty"`
}

// Box is the raw normalized bounding box. A nil coordinate was absent from the
// source document; the provider drops zero-valued fields when serializing.
type Box struct {
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	Right  *float64 `json:"right,omitempty"`
	Bottom *float64 `json:"bottom,omitempty"`
}

// Attribute is a named face attribute ("smiling", "glasses", ...) with the
// provider's confidence in [0,1].
type Attribute struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Duration is a provider time offset.
type Duration struct {
	Seconds int64 `json:"seconds,omitempty"`
	Nanos   int32 `json:"nanos,omitempty"`
}

// Float returns the offset in seconds.
func (d Duration) Float() float64 {
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

// UnmarshalJSON accepts both {"seconds":N,"nanos":N} and the REST form "80.080s".
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	type plain Duration
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = Duration(p)
	return nil
}

// ParseDuration parses the provider's string duration form, e.g. "80.080s".
func ParseDuration(s string) (Duration, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(s), "s")
	if raw == "" || strings.HasPrefix(raw, "-") {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}

	whole, frac, _ := strings.Cut(raw, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if len(frac) > 9 {
		return Duration{}, fmt.Errorf("invalid duration %q: more than nanosecond precision", s)
	}

	var nanos int64
	if frac != "" {
		nanos, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 32)
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
	}
	return Duration{Seconds: secs, Nanos: int32(nanos)}, nil
}

// BoundingBox is a resolved face box, each coordinate a fraction of the frame
// width or height.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Event is one detected face at one time offset.
type Event struct {
	Box        BoundingBox `json:"box"`
	Attributes []Attribute `json:"attributes"`
}

// Float64 returns a pointer to v. Handy when building Boxes by hand.
func Float64(v float64) *float64 {
	return &v
}
