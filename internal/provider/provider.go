// Package provider fetches face-detection annotations from the Google Cloud
// Video Intelligence API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	"cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"github.com/iverona/face-detect/internal/annotation"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds the wait for the long-running annotate operation.
const DefaultTimeout = 600 * time.Second

// Client is an annotation.Source backed by the live API.
type Client struct {
	InputURI string // gs:// URI of the video
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Fetch submits a face-detection request and blocks until the operation
// completes or the timeout expires. There is no retry.
func (c *Client) Fetch(ctx context.Context) (*annotation.Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := videointelligence.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create video intelligence client: %w", err)
	}
	defer client.Close()

	op, err := client.AnnotateVideo(ctx, Request(c.InputURI))
	if err != nil {
		return nil, fmt.Errorf("annotate %s: %w", c.InputURI, err)
	}

	c.Logger.Info().Str("uri", c.InputURI).Dur("timeout", timeout).Msg("processing video for face detection annotations")
	start := time.Now()
	resp, err := op.Wait(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("face detection for %s timed out after %s: %w", c.InputURI, timeout, err)
		}
		return nil, fmt.Errorf("face detection for %s: %w", c.InputURI, err)
	}
	c.Logger.Info().Dur("elapsed", time.Since(start)).Msg("finished processing")

	return FromResponse(resp)
}

// Request builds the annotate request: face detection with boxes and attributes.
func Request(uri string) *videointelligencepb.AnnotateVideoRequest {
	return &videointelligencepb.AnnotateVideoRequest{
		InputUri: uri,
		Features: []videointelligencepb.Feature{videointelligencepb.Feature_FACE_DETECTION},
		VideoContext: &videointelligencepb.VideoContext{
			FaceDetectionConfig: &videointelligencepb.FaceDetectionConfig{
				IncludeBoundingBoxes: true,
				IncludeAttributes:    true,
			},
		},
	}
}

// FromResponse converts the API response to the annotation model. A video
// result that carries an error status fails the whole conversion.
func FromResponse(resp *videointelligencepb.AnnotateVideoResponse) (*annotation.Result, error) {
	if resp == nil {
		return nil, errors.New("empty annotate response")
	}

	res := &annotation.Result{}
	for _, vr := range resp.GetAnnotationResults() {
		if st := vr.GetError(); st != nil && st.GetCode() != 0 {
			return nil, fmt.Errorf("provider error for %s: code %d: %s", vr.GetInputUri(), st.GetCode(), st.GetMessage())
		}

		out := annotation.VideoResult{InputURI: vr.GetInputUri()}
		for _, fa := range vr.GetFaceDetectionAnnotations() {
			group := annotation.FaceDetectionAnnotation{Thumbnail: fa.GetThumbnail()}
			for _, tr := range fa.GetTracks() {
				var track annotation.Track
				for _, o := range tr.GetTimestampedObjects() {
					track.TimestampedObjects = append(track.TimestampedObjects, convertObject(o))
				}
				group.Tracks = append(group.Tracks, track)
			}
			out.FaceDetectionAnnotations = append(out.FaceDetectionAnnotations, group)
		}
		res.AnnotationResults = append(res.AnnotationResults, out)
	}
	return res, nil
}

func convertObject(o *videointelligencepb.TimestampedObject) annotation.TimestampedObject {
	var out annotation.TimestampedObject
	if d := o.GetTimeOffset(); d != nil {
		out.TimeOffset = &annotation.Duration{Seconds: d.GetSeconds(), Nanos: d.GetNanos()}
	}
	if b := o.GetNormalizedBoundingBox(); b != nil {
		out.NormalizedBoundingBox = &annotation.Box{
			Left:   annotation.Float64(float64(b.GetLeft())),
			Top:    annotation.Float64(float64(b.GetTop())),
			Right:  annotation.Float64(float64(b.GetRight())),
			Bottom: annotation.Float64(float64(b.GetBottom())),
		}
	}
	for _, a := range o.GetAttributes() {
		out.Attributes = append(out.Attributes, annotation.Attribute{
			Name:       a.GetName(),
			Confidence: float64(a.GetConfidence()),
		})
	}
	return out
}
