package strategy

import (
	"context"
	"image"

	"streamvision/internal/adapters"
	"streamvision/pkg/models"
)

// Cloud presently delegates to an in-process call of a cloud-backed
// adapter (e.g. the hosted-vision provider, which already performs its
// own outbound HTTP call to the cloud API). Availability requires a
// configured credential reference
type Cloud struct {
	inner             *InProcess
	credentialPresent bool
}

// NewCloud constructs the cloud strategy. credentialRef is the path or
// name of the credential the cloud backend needs; an empty value means
// the strategy reports itself unavailable.
func NewCloud(credentialRef string) *Cloud {
	return &Cloud{inner: NewInProcess(), credentialPresent: credentialRef != ""}
}

func (s *Cloud) Execute(ctx context.Context, adapter adapters.ImageDetector, img image.Image, threshold float64) ([]models.Detection, error) {
	return s.inner.Execute(ctx, adapter, img, threshold)
}

func (s *Cloud) IsAvailable(ctx context.Context) bool { return s.credentialPresent }

func (s *Cloud) Info() Info { return Info{Name: "cloud"} }

var _ Strategy = (*Cloud)(nil)
