package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamvision/pkg/models"
)

// PGStore is the Postgres-backed Store. The uniqueness invariant on
// (stream_key, segment_path, capability) is enforced by the database
// itself via a unique index; ON CONFLICT DO NOTHING plus a row-count
// check turns that violation into DuplicateSegmentAnalysis without a
// separate existence query, the same idempotency pattern used for
// at-least-once delivery elsewhere in the retrieval pack.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an already-connected pool. Schema migration is the
// caller's responsibility.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS analyses (
	id                   uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	stream_key           text NOT NULL,
	session_id           text,
	segment_path         text NOT NULL,
	captured_at          timestamptz NOT NULL DEFAULT now(),
	provider_id          text,
	capability           text NOT NULL,
	frame_timestamp      double precision NOT NULL DEFAULT 0,
	confidence_threshold double precision NOT NULL,
	processing_time_ms   double precision NOT NULL,
	visual               jsonb,
	UNIQUE (stream_key, segment_path, capability)
);
CREATE INDEX IF NOT EXISTS analyses_stream_captured_idx ON analyses (stream_key, captured_at DESC);
CREATE INDEX IF NOT EXISTS analyses_capability_idx ON analyses (capability);

CREATE TABLE IF NOT EXISTS detections (
	id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	analysis_id    uuid NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	label          text NOT NULL,
	confidence     double precision NOT NULL,
	bbox_x         double precision NOT NULL,
	bbox_y         double precision NOT NULL,
	bbox_width     double precision NOT NULL,
	bbox_height    double precision NOT NULL,
	detection_type text NOT NULL
);
CREATE INDEX IF NOT EXISTS detections_label_idx ON detections (label);
CREATE INDEX IF NOT EXISTS detections_confidence_idx ON detections (confidence);
`

// Migrate creates the schema if it does not already exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return err
}

func (s *PGStore) PutAnalysis(ctx context.Context, a models.Analysis) (string, error) {
	var visualJSON []byte
	if a.Visual != nil {
		var err error
		visualJSON, err = json.Marshal(a.Visual)
		if err != nil {
			return "", fmt.Errorf("store: marshal visual summary: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO analyses
			(stream_key, session_id, segment_path, captured_at, provider_id,
			 capability, frame_timestamp, confidence_threshold, processing_time_ms, visual)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (stream_key, segment_path, capability) DO NOTHING
		RETURNING id
	`, a.StreamKey, nullableString(a.SessionID), a.SegmentPath, a.CapturedAt, nullableString(a.ProviderID),
		string(a.Capability), a.FrameTimestamp, a.ConfidenceThreshold, a.ProcessingTimeMS, visualJSON,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.NewAnalysisError(models.ErrDuplicateSegmentAnalysis,
			fmt.Errorf("analysis already recorded for %s/%s/%s", a.StreamKey, a.SegmentPath, a.Capability))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return "", models.NewAnalysisError(models.ErrDuplicateSegmentAnalysis, pgErr)
	}
	if err != nil {
		return "", fmt.Errorf("store: insert analysis: %w", err)
	}

	for _, d := range a.Detections {
		_, err := tx.Exec(ctx, `
			INSERT INTO detections
				(analysis_id, label, confidence, bbox_x, bbox_y, bbox_width, bbox_height, detection_type)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, id, d.Label, d.Confidence, d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height, string(d.DetectionType))
		if err != nil {
			return "", fmt.Errorf("store: insert detection: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("store: commit tx: %w", err)
	}
	return id, nil
}

func (s *PGStore) RecentForStream(ctx context.Context, streamKey, sessionID string, n int) ([]models.Analysis, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, stream_key, session_id, segment_path, captured_at, provider_id,
		       capability, frame_timestamp, confidence_threshold, processing_time_ms, visual
		FROM analyses
		WHERE stream_key = $1 AND ($2 = '' OR session_id = $2)
		ORDER BY captured_at DESC
		LIMIT $3
	`, streamKey, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: query recent: %w", err)
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		var a models.Analysis
		var sessionID, providerID *string
		var visualJSON []byte
		var capability string
		if err := rows.Scan(&a.ID, &a.StreamKey, &sessionID, &a.SegmentPath, &a.CapturedAt, &providerID,
			&capability, &a.FrameTimestamp, &a.ConfidenceThreshold, &a.ProcessingTimeMS, &visualJSON); err != nil {
			return nil, fmt.Errorf("store: scan analysis: %w", err)
		}
		a.Capability = models.Capability(capability)
		if sessionID != nil {
			a.SessionID = *sessionID
		}
		if providerID != nil {
			a.ProviderID = *providerID
		}
		if len(visualJSON) > 0 {
			var v models.VisualSummary
			if err := json.Unmarshal(visualJSON, &v); err == nil {
				a.Visual = &v
			}
		}
		dets, err := s.DetectionsFor(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.Detections = dets
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) DetectionsFor(ctx context.Context, analysisID string) ([]models.Detection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT label, confidence, bbox_x, bbox_y, bbox_width, bbox_height, detection_type
		FROM detections WHERE analysis_id = $1
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("store: query detections: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		var d models.Detection
		var dtype string
		if err := rows.Scan(&d.Label, &d.Confidence, &d.BBox.X, &d.BBox.Y, &d.BBox.Width, &d.BBox.Height, &dtype); err != nil {
			return nil, fmt.Errorf("store: scan detection: %w", err)
		}
		d.DetectionType = models.DetectionType(dtype)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) ResetSession(ctx context.Context, streamKey, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE stream_key = $1 AND session_id = $2`, streamKey, sessionID)
	if err != nil {
		return fmt.Errorf("store: reset session: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PGStore)(nil)
