// Package store persists Analysis results and their child Detections
// and serves the read paths the subscription bus and admin surface need
//. A pgx-backed implementation is the production
// backend; an in-memory implementation satisfies the same interface for
// unit tests and for running the pipeline without Postgres configured.
package store

import (
	"context"

	"streamvision/pkg/models"
)

// Store is the narrow persistence contract the worker pool and
// subscription bus depend on.
type Store interface {
	// PutAnalysis persists analysis and its detections in a single
	// transaction and returns the generated ID. It fails with
	// DuplicateSegmentAnalysis if (stream_key, segment_path, capability)
	// already has a row.
	PutAnalysis(ctx context.Context, analysis models.Analysis) (string, error)
	// RecentForStream returns the n most recent analyses for a stream
	// (optionally scoped to a session), most recent first. n<=0 defaults
	// to 5.
	RecentForStream(ctx context.Context, streamKey, sessionID string, n int) ([]models.Analysis, error)
	// DetectionsFor returns the detections belonging to one analysis.
	DetectionsFor(ctx context.Context, analysisID string) ([]models.Detection, error)
	// ResetSession clears stored analyses for a (stream_key, session_id)
	// pair, used before replaying a subscriber's catch-up.
	ResetSession(ctx context.Context, streamKey, sessionID string) error
}
