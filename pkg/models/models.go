// Package models defines the semantic types shared across the segment
// analysis pipeline: streams, segment events, capabilities, providers,
// brands, detections, analyses and visual summaries.
package models

import "time"

// StreamStatus is the lifecycle state of a Stream.
type StreamStatus string

const (
	StreamInactive StreamStatus = "inactive"
	StreamStarting StreamStatus = "starting"
	StreamActive   StreamStatus = "active"
	StreamStopping StreamStatus = "stopping"
	StreamError    StreamStatus = "error"
)

// SourceType identifies where a stream's media originates.
type SourceType string

const (
	SourceRTMP   SourceType = "rtmp"
	SourceFile   SourceType = "file"
	SourceWebcam SourceType = "webcam"
)

// Stream is a live or file-backed source identified by an opaque, globally
// unique stream_key. At most one Stream may be Active system-wide.
type Stream struct {
	StreamKey   string       `json:"stream_key"`
	Status      StreamStatus `json:"status"`
	SourceType  SourceType   `json:"source_type"`
	SessionID   string       `json:"session_id,omitempty"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
}

// EventType closes the set of event kinds the queue carries.
type EventType string

const NewSegmentEvent EventType = "new_segment"

// SegmentEvent is an immutable record describing a newly finalized
// segment. Events are ordered per stream by EnqueuedAt; cross-stream
// ordering is not preserved.
type SegmentEvent struct {
	SegmentPath string    `json:"segment_path"`
	StreamKey   string    `json:"stream_key"`
	SessionID   string    `json:"session_id,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	EventType   EventType `json:"event_type"`
	SourceTag   string    `json:"source_tag"`
	// CapabilitySet lists the provider-driven capabilities to run for
	// this segment; visual_analysis is always added by the worker pool.
	CapabilitySet []Capability `json:"capability_set,omitempty"`
}

// Capability is a closed enumeration of the analysis kinds the core
// understands. VisualAnalysis is always performed in-process; the rest
// are provider-driven.
type Capability string

const (
	CapabilityObjectDetection Capability = "object_detection"
	CapabilityLogoDetection   Capability = "logo_detection"
	CapabilityTextDetection   Capability = "text_detection"
	CapabilityMotionAnalysis  Capability = "motion_analysis"
	CapabilityVisualAnalysis  Capability = "visual_analysis"
)

// AllCapabilities lists the closed set in canonical order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityObjectDetection,
		CapabilityLogoDetection,
		CapabilityTextDetection,
		CapabilityMotionAnalysis,
		CapabilityVisualAnalysis,
	}
}

// ProviderType names a family of detection adapter implementations.
type ProviderType string

const (
	ProviderHostedVision      ProviderType = "hosted_vision"
	ProviderLocalObject       ProviderType = "local_object_detector"
	ProviderLocalOCR          ProviderType = "local_ocr"
	ProviderPromptLogoClassifier ProviderType = "prompt_logo_classifier"
	ProviderLocalMotion       ProviderType = "local_motion_analyzer"
)

// Provider is a named configuration record binding capabilities to an
// adapter implementation.
type Provider struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ProviderType     ProviderType `json:"provider_type" yaml:"provider_type"`
	ModelIdentifier  string       `json:"model_identifier,omitempty" yaml:"model_identifier,omitempty"`
	Capabilities     []Capability `json:"capabilities"`
	APIConfig        map[string]string `json:"api_config,omitempty" yaml:"api_config,omitempty"`
	Active           bool         `json:"active"`
}

// HasCapability reports whether the provider declares the given capability.
func (p Provider) HasCapability(c Capability) bool {
	for _, cap := range p.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// Brand is the prompt vocabulary for a text-prompted logo classifier.
type Brand struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SearchTerms []string `json:"search_terms" yaml:"search_terms"`
	Active      bool     `json:"active"`
	Category    string   `json:"category,omitempty"`
}

// DetectionType closes the set of detection kinds an image adapter emits.
type DetectionType string

const (
	DetectionObject DetectionType = "object"
	DetectionLogo   DetectionType = "logo"
	DetectionText   DetectionType = "text"
)

// BBox is a bounding box normalized to the source frame: (0,0) is
// top-left, (1,1) is bottom-right. {0,0,1,1} denotes a full-frame
// detection.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullFrameBBox is the sentinel box for a detection that covers the
// entire decoded frame.
func FullFrameBBox() BBox { return BBox{X: 0, Y: 0, Width: 1, Height: 1} }

// InUnitSquare reports whether every coordinate of the box lies in [0,1].
func (b BBox) InUnitSquare() bool {
	return inRange01(b.X) && inRange01(b.Y) && inRange01(b.Width) && inRange01(b.Height)
}

func inRange01(v float64) bool { return v >= 0 && v <= 1 }

// Detection is a single labeled, normalized bounding box produced by an
// image adapter.
type Detection struct {
	Label         string        `json:"label"`
	Confidence    float64       `json:"confidence"`
	BBox          BBox          `json:"bbox"`
	DetectionType DetectionType `json:"detection_type"`
}

// VisualSummary is the always-local visual characterization of a frame.
// All scalars are normalized to [0,1].
type VisualSummary struct {
	DominantColors [][3]int `json:"dominant_colors"`
	Brightness     float64  `json:"brightness"`
	Contrast       float64  `json:"contrast"`
	Saturation     float64  `json:"saturation"`
	ActivityScore  *float64 `json:"activity_score,omitempty"`
}

// SentinelVisualSummary is returned when visual summary computation fails;
// it must never be allowed to fail the calling operation.
func SentinelVisualSummary() VisualSummary {
	return VisualSummary{DominantColors: [][3]int{{128, 128, 128}}}
}

// Analysis is the typed, queryable result of analyzing one segment for
// one capability. The composite key (StreamKey, SegmentPath, Capability)
// is unique: a replayed event must never produce a second row.
type Analysis struct {
	ID                 string        `json:"id"`
	StreamKey          string        `json:"stream_key"`
	SessionID          string        `json:"session_id,omitempty"`
	SegmentPath        string        `json:"segment_path"`
	CapturedAt         time.Time     `json:"captured_at"`
	ProviderID         string        `json:"provider_id,omitempty"`
	Capability         Capability    `json:"capability"`
	FrameTimestamp     float64       `json:"frame_timestamp"`
	ConfidenceThreshold float64      `json:"confidence_threshold"`
	ProcessingTimeMS   float64       `json:"processing_time_ms"`
	Detections         []Detection   `json:"detections"`
	Visual             *VisualSummary `json:"visual,omitempty"`
}

// MotionResult is the output shape of a video (temporal) analyzer.
type MotionResult struct {
	AverageMotion float64 `json:"average_motion"`
	MaxMotion     float64 `json:"max_motion"`
	ActivityScore float64 `json:"activity_score"` // scaled to [0,10]
	FrameCount    int     `json:"frame_count"`
}

// QueueState is the closed set of QueueItem states.
type QueueState string

const (
	QueuePending QueueState = "pending"
	QueueLeased  QueueState = "leased"
	QueueDone    QueueState = "done"
	QueueFailed  QueueState = "failed"
)

// QueueItem is durable processing state for one segment event.
type QueueItem struct {
	ID              string       `json:"id"`
	StreamKey       string       `json:"stream_key"`
	SegmentPath     string       `json:"segment_path"`
	CapabilitySet   []Capability `json:"capability_set"`
	State           QueueState   `json:"state"`
	Attempts        int          `json:"attempts"`
	LastError       string       `json:"last_error,omitempty"`
	LeaseExpiresAt  *time.Time   `json:"lease_expires_at,omitempty"`
}

// MaxRetries bounds the number of redeliveries of a segment event before
// it is marked failed terminally.
const MaxRetries = 3
