package strategy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"streamvision/internal/adapters"
	"streamvision/pkg/models"
)

// Remote posts the frame to a LAN worker's HTTP API
// JPEG-encoding (quality 85) then base64-encoding the image. Non-2xx,
// timeout and connection errors are all surfaced as an empty result
// plus a structured error kind; they never propagate as a Go panic or
// an unstructured error string the worker pool would have to parse.
type Remote struct {
	client  *http.Client
	host    string
	timeout time.Duration
}

// RemoteConfig configures the remote-worker strategy.
type RemoteConfig struct {
	Host    string
	Timeout time.Duration // default 30s
}

// NewRemote constructs the remote-LAN-worker strategy.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Remote{
		client:  &http.Client{Timeout: cfg.Timeout},
		host:    cfg.Host,
		timeout: cfg.Timeout,
	}
}

type analyzeRequest struct {
	Image               string         `json:"image"`
	AnalysisTypes       []string       `json:"analysis_types"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	AdapterConfig       adapterConfig  `json:"adapter_config"`
}

type adapterConfig struct {
	Type            string `json:"type"`
	ModelIdentifier string `json:"model_identifier,omitempty"`
}

type analyzeResponse struct {
	Detections []models.Detection `json:"detections"`
	Error      string             `json:"error,omitempty"`
}

// capabilityTag is supplied explicitly by the engine at call sites
// (never inferred from the adapter's Go type), replacing the original
// system's class-name inspection
type capabilityTag struct {
	Capability string
	ProviderType string
	ModelIdentifier string
}

// remoteCapabilityKey is stashed on the context by the engine so Execute
// can build the wire request without widening the Strategy interface
// for every future field.
type remoteCapabilityKey struct{}

// WithCapabilityTag attaches the explicit capability/provider tag the
// engine already knows, so Remote never needs to inspect the adapter's
// concrete type to figure out what it's calling.
func WithCapabilityTag(ctx context.Context, tag capabilityTag) context.Context {
	return context.WithValue(ctx, remoteCapabilityKey{}, tag)
}

func tagFromContext(ctx context.Context) capabilityTag {
	if tag, ok := ctx.Value(remoteCapabilityKey{}).(capabilityTag); ok {
		return tag
	}
	return capabilityTag{}
}

// NewCapabilityTag constructs a tag for use with WithCapabilityTag.
func NewCapabilityTag(capability, providerType, modelIdentifier string) capabilityTag {
	return capabilityTag{Capability: capability, ProviderType: providerType, ModelIdentifier: modelIdentifier}
}

func (s *Remote) Execute(ctx context.Context, _ adapters.ImageDetector, img image.Image, threshold float64) ([]models.Detection, error) {
	tag := tagFromContext(ctx)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("remote strategy: encode frame: %w", err)
	}

	reqBody, err := json.Marshal(analyzeRequest{
		Image:               base64.StdEncoding.EncodeToString(buf.Bytes()),
		AnalysisTypes:       []string{tag.Capability},
		ConfidenceThreshold: threshold,
		AdapterConfig:       adapterConfig{Type: tag.ProviderType, ModelIdentifier: tag.ModelIdentifier},
	})
	if err != nil {
		return nil, fmt.Errorf("remote strategy: marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/ai/analyze", s.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewAnalysisError(models.ErrRemoteTimeout, err)
		}
		return nil, models.NewAnalysisError(models.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, fmt.Errorf("remote worker: status %d", resp.StatusCode))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote strategy: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, errors.New(out.Error))
	}

	return filterByThreshold(out.Detections, threshold), nil
}

func filterByThreshold(detections []models.Detection, threshold float64) []models.Detection {
	out := make([]models.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// IsAvailable probes GET /ai/health with a short timeout
func (s *Remote) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/ai/health", s.host)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

func (s *Remote) Info() Info { return Info{Name: "remote_lan:" + s.host} }

var _ Strategy = (*Remote)(nil)
