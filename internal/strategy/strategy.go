// Package strategy implements the execution strategies of the contract here:
// orthogonal to adapter selection, a strategy decides WHERE a detection
// call physically runs. The engine selects one strategy at startup from
// configuration.
package strategy

import (
	"context"
	"image"

	"streamvision/internal/adapters"
	"streamvision/pkg/models"
)

// Strategy is the common execution contract.
type Strategy interface {
	Execute(ctx context.Context, adapter adapters.ImageDetector, img image.Image, threshold float64) ([]models.Detection, error)
	IsAvailable(ctx context.Context) bool
	Info() Info
}

// Info describes a strategy for operator visibility.
type Info struct {
	Name string `json:"name"`
}

// Mode selects which strategy the engine composes at startup, driven by
// AI_PROCESSING_MODE.
type Mode string

const (
	ModeLocal    Mode = "local"
	ModeRemoteLAN Mode = "remote_lan"
	ModeCloud    Mode = "cloud"
)
