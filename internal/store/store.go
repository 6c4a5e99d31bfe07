package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iverona/face-detect/internal/annotation"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by LoadResult when no annotations are stored for a video.
var ErrNotFound = errors.New("no stored annotations")

// Store manages the PostgreSQL connection used to persist annotations and runs.
type Store struct {
	conn *pgx.Conn
}

// Video is a row of the video listing.
type Video struct {
	ID        string
	URI       string
	Events    int
	IndexedAt time.Time
	LastRun   *time.Time
}

// EventHit is a stored detection matching an attribute query.
type EventHit struct {
	VideoID    string
	URI        string
	Offset     string
	Box        annotation.BoundingBox
	Confidence float64
}

// Run summarizes one render of a video.
type Run struct {
	ID       string
	VideoID  string
	Output   string
	Read     int
	Overlay  int
	Plain    int
	Skipped  int
	Duration time.Duration
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			uri TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS annotation_results (
			video_id TEXT PRIMARY KEY REFERENCES video_metadata(id) ON DELETE CASCADE,
			payload JSONB NOT NULL,
			fetched_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_events (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			time_offset TEXT NOT NULL,
			offset_seconds DOUBLE PRECISION NOT NULL,
			position INT NOT NULL,
			box DOUBLE PRECISION[] NOT NULL,
			attributes JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS render_runs (
			id TEXT PRIMARY KEY,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			output TEXT NOT NULL,
			frames_read INT NOT NULL,
			frames_overlay INT NOT NULL,
			frames_plain INT NOT NULL,
			frames_skipped INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			finished_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS face_events_video_id_idx ON face_events (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, uri string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, uri, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), uri = EXCLUDED.uri
	`, videoID, uri)
	return err
}

// SaveResult stores the raw result and its flattened events, replacing any
// previous copy for the video. The events are indexed under policy, so a
// malformed result is rejected before anything is written.
func (s *Store) SaveResult(ctx context.Context, videoID, uri string, res *annotation.Result, policy annotation.BoxPolicy) error {
	idx, err := annotation.BuildIndex(res, annotation.WithBoxPolicy(policy))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO video_metadata (id, uri, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), uri = EXCLUDED.uri
	`, videoID, uri); err != nil {
		return err
	}
	// Re-fetching a video must not duplicate its events.
	if _, err := tx.Exec(ctx, "DELETE FROM face_events WHERE video_id = $1", videoID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO annotation_results (video_id, payload, fetched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (video_id) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = NOW()
	`, videoID, payload); err != nil {
		return err
	}

	rows := make([][]any, 0, idx.EventCount())
	for _, off := range idx.Offsets() {
		secs, err := annotation.ParseOffset(off)
		if err != nil {
			return err
		}
		events, _ := idx.Lookup(off)
		for i, ev := range events {
			list := ev.Attributes
			if list == nil {
				list = []annotation.Attribute{}
			}
			attrs, err := json.Marshal(list)
			if err != nil {
				return fmt.Errorf("encode attributes: %w", err)
			}
			box := []float64{ev.Box.Left, ev.Box.Top, ev.Box.Right, ev.Box.Bottom}
			rows = append(rows, []any{videoID, off, secs, i, box, attrs})
		}
	}
	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"face_events"},
			[]string{"video_id", "time_offset", "offset_seconds", "position", "box", "attributes"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadResult returns the stored raw result for a video or ErrNotFound.
func (s *Store) LoadResult(ctx context.Context, videoID string) (*annotation.Result, error) {
	var payload []byte
	err := s.conn.QueryRow(ctx, "SELECT payload FROM annotation_results WHERE video_id = $1", videoID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var res annotation.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode stored annotations for %s: %w", videoID, err)
	}
	return &res, nil
}

// FindEvents returns stored detections carrying attribute with at least
// minConfidence, ordered by video and offset.
func (s *Store) FindEvents(ctx context.Context, attribute string, minConfidence float64) ([]EventHit, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT e.video_id, v.uri, e.time_offset, e.box, COALESCE((a->>'confidence')::float8, 0) AS conf
		FROM face_events e
		JOIN video_metadata v ON v.id = e.video_id
		CROSS JOIN LATERAL jsonb_array_elements(e.attributes) a
		WHERE a->>'name' = $1 AND COALESCE((a->>'confidence')::float8, 0) >= $2
		ORDER BY e.video_id, e.offset_seconds, e.position
	`, attribute, minConfidence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []EventHit
	for rows.Next() {
		var h EventHit
		var box []float64
		if err := rows.Scan(&h.VideoID, &h.URI, &h.Offset, &box, &h.Confidence); err != nil {
			return nil, err
		}
		if len(box) == 4 {
			h.Box = annotation.BoundingBox{Left: box[0], Top: box[1], Right: box[2], Bottom: box[3]}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ListVideos returns all known videos with their event counts and last render time.
func (s *Store) ListVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT v.id, v.uri, v.indexed_at,
			(SELECT COUNT(*) FROM face_events e WHERE e.video_id = v.id),
			(SELECT MAX(r.finished_at) FROM render_runs r WHERE r.video_id = v.id)
		FROM video_metadata v
		ORDER BY v.indexed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.URI, &v.IndexedAt, &v.Events, &v.LastRun); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// RecordRun saves the outcome of a render.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO render_runs (id, video_id, output, frames_read, frames_overlay, frames_plain, frames_skipped, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.VideoID, r.Output, r.Read, r.Overlay, r.Plain, r.Skipped, r.Duration.Milliseconds())
	return err
}

// Reset drops all application tables to clear the database state.
// The schema is recreated on the next connection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS render_runs CASCADE;
		DROP TABLE IF EXISTS face_events CASCADE;
		DROP TABLE IF EXISTS annotation_results CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
