package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"streamvision/pkg/models"
)

// hostedVisionDetector calls a hosted vision API (object/logo/text,
// depending on the provider's declared capabilities) over HTTP. It is
// an adapter— it decides WHAT to detect, never WHERE
// the call executes; that is the concern of the execution strategy
// (internal/strategy) that invokes it.
type hostedVisionDetector struct {
	client  *http.Client
	apiURL  string
	apiKey  string
	model   string

	mu sync.Mutex // not locked by Detect: http.Client is reentrant and Reentrant reports true
}

func newHostedVisionDetector(p models.Provider, _ BrandSource) (ImageDetector, error) {
	apiURL := p.APIConfig["api_url"]
	if apiURL == "" {
		return nil, fmt.Errorf("hosted vision provider %q missing api_url", p.ID)
	}
	return &hostedVisionDetector{
		client: &http.Client{Timeout: 15 * time.Second},
		apiURL: apiURL,
		apiKey: p.APIConfig["api_key"],
		model:  p.ModelIdentifier,
	}, nil
}

type hostedVisionRequest struct {
	Image      string  `json:"image"`
	Model      string  `json:"model,omitempty"`
	Threshold  float64 `json:"confidence_threshold"`
}

type hostedVisionResponse struct {
	Detections []models.Detection `json:"detections"`
}

func (h *hostedVisionDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("hosted vision: encode frame: %w", err)
	}

	body, err := json.Marshal(hostedVisionRequest{
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		Model:     h.model,
		Threshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("hosted vision: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, fmt.Errorf("hosted vision: status %d", resp.StatusCode))
	}

	var out hostedVisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("hosted vision: decode response: %w", err)
	}

	return filterByThreshold(out.Detections, threshold), nil
}

func (h *hostedVisionDetector) Release() error { return nil }

func (h *hostedVisionDetector) Reentrant() bool { return true }
