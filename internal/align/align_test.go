package align

import (
	"math"
	"testing"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexAt(t *testing.T, offsets ...annotation.Duration) *annotation.Index {
	t.Helper()
	var objs []annotation.TimestampedObject
	for _, d := range offsets {
		d := d
		objs = append(objs, annotation.TimestampedObject{
			TimeOffset: &d,
			NormalizedBoundingBox: &annotation.Box{
				Left: annotation.Float64(0.1), Top: annotation.Float64(0.1),
				Right: annotation.Float64(0.5), Bottom: annotation.Float64(0.5),
			},
		})
	}
	res := &annotation.Result{AnnotationResults: []annotation.VideoResult{{
		FaceDetectionAnnotations: []annotation.FaceDetectionAnnotation{{
			Tracks: []annotation.Track{{TimestampedObjects: objs}},
		}},
	}}}
	idx, err := annotation.BuildIndex(res)
	require.NoError(t, err)
	return idx
}

func actions(a *Aligner, frames int) []Action {
	out := make([]Action, frames)
	for i := range out {
		out[i] = a.Decide(i).Action
	}
	return out
}

func TestExactHit(t *testing.T) {
	idx := indexAt(t, annotation.Duration{Nanos: 500000000})
	a, err := New(idx, 10, DefaultMissThreshold)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		a.Decide(i)
	}
	d := a.Decide(5)
	assert.Equal(t, "0.500000", d.Offset)
	assert.Equal(t, Overlay, d.Action)
	require.Len(t, d.Events, 1)
	assert.Equal(t, annotation.BoundingBox{Left: 0.1, Top: 0.1, Right: 0.5, Bottom: 0.5}, d.Events[0].Box)
}

func TestSparseMissRun(t *testing.T) {
	idx := indexAt(t) // empty
	a, err := New(idx, 10, 2)
	require.NoError(t, err)

	want := []Action{Skip, Skip, Skip, Plain, Skip, Skip}
	assert.Equal(t, want, actions(a, 6))
}

func TestHitResetsCounter(t *testing.T) {
	// Hit at frame 2 (0.2s @10fps).
	idx := indexAt(t, annotation.Duration{Nanos: 200000000})
	a, err := New(idx, 10, 2)
	require.NoError(t, err)

	want := []Action{Skip, Skip, Overlay, Skip, Skip, Skip, Plain, Skip}
	assert.Equal(t, want, actions(a, 8))
}

func TestZeroThreshold(t *testing.T) {
	a, err := New(indexAt(t), 25, 0)
	require.NoError(t, err)
	assert.Equal(t, []Action{Skip, Plain, Skip, Plain}, actions(a, 4))
}

func TestNeverSkipsWholeStream(t *testing.T) {
	for threshold := 0; threshold <= 5; threshold++ {
		a, err := New(indexAt(t), 30, threshold)
		require.NoError(t, err)

		gap := 0
		plains := 0
		for i := 0; i < 500; i++ {
			switch a.Decide(i).Action {
			case Plain:
				plains++
				gap = 0
			case Skip:
				gap++
				// At most threshold+1 skips in a row before a plain frame.
				require.LessOrEqual(t, gap, threshold+1, "threshold %d frame %d", threshold, i)
			case Overlay:
				t.Fatalf("unexpected hit at frame %d", i)
			}
		}
		assert.Greater(t, plains, 0)
	}
}

func TestEmptyIndexNeverHits(t *testing.T) {
	a, err := New(nil, 10, 2)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		assert.NotEqual(t, Overlay, a.Decide(i).Action)
	}
}

func TestReset(t *testing.T) {
	a, err := New(indexAt(t), 10, 2)
	require.NoError(t, err)
	first := actions(a, 4)
	a.Reset()
	assert.Equal(t, first, actions(a, 4))
}

func TestNewValidates(t *testing.T) {
	for _, fps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New(nil, fps, 2)
		assert.Error(t, err, "fps %v", fps)
	}
	_, err := New(nil, 10, -1)
	assert.Error(t, err)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "plain", Plain.String())
	assert.Equal(t, "overlay", Overlay.String())
}
