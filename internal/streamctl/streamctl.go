// Package streamctl owns Stream activation lifecycle: the
// single-active-stream invariant and session_id minting. It is
// deliberately narrow — the administrative CRUD surface for declaring
// streams is out of scope for the core; this package only
// tracks the one piece of stream state the event source needs: the
// session_id of the active stream, attached to each new segment event.
package streamctl

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"streamvision/pkg/models"
)

// Controller tracks the set of known streams and enforces that at most
// one is Active at a time.
type Controller struct {
	mu      sync.RWMutex
	streams map[string]*models.Stream
	active  string // stream_key of the currently active stream, "" if none
}

// New constructs an empty Controller.
func New() *Controller {
	return &Controller{streams: make(map[string]*models.Stream)}
}

// Declare registers a stream (idempotent) without activating it.
func (c *Controller) Declare(streamKey string, sourceType models.SourceType) *models.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[streamKey]; ok {
		return s
	}
	s := &models.Stream{StreamKey: streamKey, Status: models.StreamInactive, SourceType: sourceType}
	c.streams[streamKey] = s
	return s
}

// Activate transitions a stream to Active and mints a fresh session_id.
// It fails loudly if another stream is already active, per the
// single-tenant invariant.
func (c *Controller) Activate(streamKey string) (*models.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != "" && c.active != streamKey {
		return nil, models.ErrSecondStreamActive
	}

	s, ok := c.streams[streamKey]
	if !ok {
		s = &models.Stream{StreamKey: streamKey, SourceType: models.SourceRTMP}
		c.streams[streamKey] = s
	}

	s.Status = models.StreamActive
	s.SessionID = newSessionID()
	now := time.Now()
	s.ActivatedAt = &now
	c.active = streamKey
	return s, nil
}

// Deactivate transitions the active stream back to Inactive and clears
// its session_id, freeing the system to activate a different stream.
func (c *Controller) Deactivate(streamKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[streamKey]
	if !ok {
		return
	}
	s.Status = models.StreamInactive
	s.SessionID = ""
	s.ActivatedAt = nil
	if c.active == streamKey {
		c.active = ""
	}
}

// ActiveStream returns the currently active stream, if any. The
// directory watcher uses this to attach the active session_id to each
// segment event; the stream_key comes from the segment's filename.
func (c *Controller) ActiveStream() (*models.Stream, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == "" {
		return nil, false
	}
	s := *c.streams[c.active]
	return &s, true
}

// Get returns a copy of the named stream's current state.
func (c *Controller) Get(streamKey string) (*models.Stream, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.streams[streamKey]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func newSessionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
