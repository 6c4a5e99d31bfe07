package annotation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(l, t, r, b float64) *Box {
	return &Box{Left: Float64(l), Top: Float64(t), Right: Float64(r), Bottom: Float64(b)}
}

func obj(sec int64, nanos int32, b *Box, attrs ...Attribute) TimestampedObject {
	return TimestampedObject{
		TimeOffset:            &Duration{Seconds: sec, Nanos: nanos},
		NormalizedBoundingBox: b,
		Attributes:            attrs,
	}
}

func result(groups ...FaceDetectionAnnotation) *Result {
	return &Result{AnnotationResults: []VideoResult{{FaceDetectionAnnotations: groups}}}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0.000000"},
		{0.5, "0.500000"},
		{80.08, "80.080000"},
		{1.0 / 3.0, "0.333333"},
		{2.0 / 3.0, "0.666667"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonical(tt.seconds), "Canonical(%v)", tt.seconds)
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	for _, v := range []float64{0, 0.041708, 1.0 / 3.0, 12.345678912, 3600.5, 23.976024 * 7} {
		once := Canonical(v)
		parsed, err := ParseOffset(once)
		require.NoError(t, err)
		assert.Equal(t, once, Canonical(parsed), "offset %v", v)
	}
}

func TestOffsetsFromBothClocksMeet(t *testing.T) {
	// Provider reports 0.5s as seconds+nanos; decoder reports frame 5 at 10fps.
	assert.Equal(t, FrameOffset(5, 10), OffsetOf(Duration{Seconds: 0, Nanos: 500000000}))
	assert.Equal(t, "0.500000", FrameOffset(5, 10))
	// 23.976fps frame 24 lands on 1.001s.
	assert.Equal(t, OffsetOf(Duration{Seconds: 1, Nanos: 1000000}), FrameOffset(24, 24000.0/1001.0))
}

func TestParseOffsetRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "-1.000000", "NaN", "Inf"} {
		_, err := ParseOffset(s)
		assert.Error(t, err, "ParseOffset(%q)", s)
	}
}

func TestBuildIndexCompleteness(t *testing.T) {
	res := result(
		FaceDetectionAnnotation{Tracks: []Track{
			{TimestampedObjects: []TimestampedObject{
				obj(0, 500000000, box(0.1, 0.1, 0.5, 0.5), Attribute{Name: "smiling", Confidence: 0.9}),
				obj(1, 0, box(0.2, 0.2, 0.4, 0.4)),
			}},
		}},
		FaceDetectionAnnotation{Tracks: []Track{
			{TimestampedObjects: []TimestampedObject{
				obj(0, 500000000, box(0.6, 0.1, 0.9, 0.5), Attribute{Name: "glasses", Confidence: 0.7}),
			}},
			{TimestampedObjects: []TimestampedObject{
				obj(2, 250000000, box(0, 0, 1, 1)),
			}},
		}},
	)

	idx, err := BuildIndex(res)
	require.NoError(t, err)

	// 4 objects across 3 distinct offsets.
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 4, idx.EventCount())

	total := 0
	for _, k := range idx.Offsets() {
		ev, ok := idx.Lookup(k)
		require.True(t, ok)
		total += len(ev)
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"0.500000", "1.000000", "2.250000"}, idx.Offsets())
}

func TestBuildIndexPreservesSourceOrder(t *testing.T) {
	first := box(0.1, 0.1, 0.2, 0.2)
	second := box(0.3, 0.3, 0.4, 0.4)
	third := box(0.5, 0.5, 0.6, 0.6)
	res := result(
		FaceDetectionAnnotation{Tracks: []Track{
			{TimestampedObjects: []TimestampedObject{obj(3, 0, first, Attribute{Name: "a", Confidence: 1})}},
			{TimestampedObjects: []TimestampedObject{obj(3, 0, second, Attribute{Name: "b", Confidence: 1})}},
		}},
		FaceDetectionAnnotation{Tracks: []Track{
			{TimestampedObjects: []TimestampedObject{obj(3, 0, third, Attribute{Name: "c", Confidence: 1})}},
		}},
	)

	idx, err := BuildIndex(res)
	require.NoError(t, err)

	events, ok := idx.Lookup("3.000000")
	require.True(t, ok)
	require.Len(t, events, 3)
	for i, name := range []string{"a", "b", "c"} {
		// Box i and attribute set i come from the same source object.
		assert.Equal(t, name, events[i].Attributes[0].Name)
	}
	assert.InDelta(t, 0.1, events[0].Box.Left, 1e-12)
	assert.InDelta(t, 0.3, events[1].Box.Left, 1e-12)
	assert.InDelta(t, 0.5, events[2].Box.Left, 1e-12)
}

func TestBuildIndexDuplicateTimestampNotDeduplicated(t *testing.T) {
	same := box(0.1, 0.1, 0.5, 0.5)
	res := result(FaceDetectionAnnotation{Tracks: []Track{
		{TimestampedObjects: []TimestampedObject{obj(1, 0, same)}},
		{TimestampedObjects: []TimestampedObject{obj(1, 0, same)}},
	}})

	idx, err := BuildIndex(res)
	require.NoError(t, err)
	events, _ := idx.Lookup("1.000000")
	assert.Len(t, events, 2)
}

func TestBuildIndexEmpty(t *testing.T) {
	idx, err := BuildIndex(result())
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Offsets())

	_, ok := idx.Lookup("0.000000")
	assert.False(t, ok)
}

func TestBuildIndexNoResults(t *testing.T) {
	_, err := BuildIndex(&Result{})
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = BuildIndex(nil)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestBuildIndexMalformed(t *testing.T) {
	tests := []struct {
		name string
		obj  TimestampedObject
	}{
		{"missing time offset", TimestampedObject{NormalizedBoundingBox: box(0, 0, 1, 1)}},
		{"missing box", TimestampedObject{TimeOffset: &Duration{Seconds: 1}}},
		{"missing coordinate", obj(1, 0, &Box{Left: Float64(0.1), Top: Float64(0.1), Right: Float64(0.5)})},
		{"coordinate out of range", obj(1, 0, box(0.1, 0.1, 1.5, 0.5))},
		{"nameless attribute", obj(1, 0, box(0, 0, 1, 1), Attribute{Confidence: 0.9})},
		{"confidence out of range", obj(1, 0, box(0, 0, 1, 1), Attribute{Name: "x", Confidence: 2})},
		{"negative offset", obj(-1, 0, box(0, 0, 1, 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := result(FaceDetectionAnnotation{Tracks: []Track{
				{TimestampedObjects: []TimestampedObject{obj(0, 0, box(0, 0, 1, 1)), tt.obj}},
			}})
			idx, err := BuildIndex(res)
			assert.Nil(t, idx, "no partial index")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
			assert.Contains(t, err.Error(), "object 1")
		})
	}
}

func TestBuildIndexFrameEdgePolicy(t *testing.T) {
	res := result(FaceDetectionAnnotation{Tracks: []Track{
		{TimestampedObjects: []TimestampedObject{
			obj(1, 0, &Box{Right: Float64(0.5), Bottom: Float64(0.6)}),
			obj(2, 0, &Box{Left: Float64(0.2), Top: Float64(0.3)}),
		}},
	}})

	_, err := BuildIndex(res)
	require.ErrorIs(t, err, ErrMalformed)

	idx, err := BuildIndex(res, WithBoxPolicy(DefaultToFrameEdge))
	require.NoError(t, err)

	ev, _ := idx.Lookup("1.000000")
	assert.Equal(t, BoundingBox{Left: 0, Top: 0, Right: 0.5, Bottom: 0.6}, ev[0].Box)
	ev, _ = idx.Lookup("2.000000")
	assert.Equal(t, BoundingBox{Left: 0.2, Top: 0.3, Right: 1, Bottom: 1}, ev[0].Box)
}

func TestParseBoxPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    BoxPolicy
		wantErr bool
	}{
		{"", FailFast, false},
		{"fail-fast", FailFast, false},
		{"Frame-Edge", DefaultToFrameEdge, false},
		{"guess", FailFast, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := ParseBoxPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
