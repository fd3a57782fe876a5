package strategy

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/pkg/models"
)

type stubDetector struct {
	detections []models.Detection
	err        error
	calls      int
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]models.Detection, error) {
	s.calls++
	return s.detections, s.err
}
func (s *stubDetector) Release() error { return nil }

func solidImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	return img
}

func TestInProcessCallsAdapterDirectly(t *testing.T) {
	s := NewInProcess()
	det := &stubDetector{detections: []models.Detection{{Label: "x", Confidence: 0.9}}}

	out, err := s.Execute(context.Background(), det, solidImage(), 0.1)
	require.NoError(t, err)
	assert.Equal(t, det.detections, out)
	assert.Equal(t, 1, det.calls)
	assert.True(t, s.IsAvailable(context.Background()))
}

func TestRemoteExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/analyze", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []models.Detection{{Label: "nike", Confidence: 0.8, DetectionType: models.DetectionLogo}},
		})
	}))
	defer srv.Close()

	s := NewRemote(RemoteConfig{Host: srv.Listener.Addr().String()})
	ctx := WithCapabilityTag(context.Background(), NewCapabilityTag("logo_detection", "prompt_logo_classifier", ""))

	out, err := s.Execute(ctx, nil, solidImage(), 0.5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "nike", out[0].Label)
}

func TestRemoteExecuteNon2xxIsAdapterTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewRemote(RemoteConfig{Host: srv.Listener.Addr().String()})
	_, err := s.Execute(context.Background(), nil, solidImage(), 0.5)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrAdapterTransient, kind)
}

func TestRemoteExecuteTimeoutIsRemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewRemote(RemoteConfig{Host: srv.Listener.Addr().String(), Timeout: 5 * time.Millisecond})
	_, err := s.Execute(context.Background(), nil, solidImage(), 0.5)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrRemoteTimeout, kind)
}

func TestRemoteIsAvailableProbesHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	s := NewRemote(RemoteConfig{Host: srv.Listener.Addr().String()})
	assert.True(t, s.IsAvailable(context.Background()))
}

func TestRemoteUnreachableHost(t *testing.T) {
	s := NewRemote(RemoteConfig{Host: "127.0.0.1:1"})
	assert.False(t, s.IsAvailable(context.Background()))
}

func TestCloudAvailabilityRequiresCredential(t *testing.T) {
	withCred := NewCloud("vault://creds/vision")
	assert.True(t, withCred.IsAvailable(context.Background()))

	without := NewCloud("")
	assert.False(t, without.IsAvailable(context.Background()))
}
