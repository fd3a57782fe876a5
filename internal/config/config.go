// Package config loads the runtime configuration that selects execution
// strategy, remote worker endpoints and the segment-event source, plus
// the optional provider/brand catalog file that internal/registry
// reloads on change.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"streamvision/pkg/models"
)

// ProcessingMode selects the execution strategy, mirroring AI_PROCESSING_MODE.
type ProcessingMode string

const (
	ModeLocal     ProcessingMode = "local"
	ModeRemoteLAN ProcessingMode = "remote_lan"
	ModeCloud     ProcessingMode = "cloud"
)

// EventSourceKind selects the C2 backend.
type EventSourceKind string

const (
	SourceFileWatcher EventSourceKind = "filewatcher"
	SourceWebhook     EventSourceKind = "webhook"
	SourceCloud       EventSourceKind = "cloud"
)

// Config is the process's environment-derived configuration, grounded
// on the environment variables named in the external interfaces section.
type Config struct {
	ProcessingMode ProcessingMode
	WorkerHost     string
	WorkerTimeout  time.Duration

	EventSource       EventSourceKind
	WatchDirectory    string
	PollInterval      time.Duration

	CloudCredentialRef string

	// CatalogPath, if set, names a YAML file declaring providers and
	// brands; internal/config.FileCatalog hot-reloads it via fsnotify
	// and feeds internal/registry.Registry.Reload.
	CatalogPath string

	ConfidenceThreshold float64
}

// FromEnv reads the process environment into a Config, applying the
// same defaults the directory watcher and worker pool fall back to
// when run standalone.
func FromEnv() (Config, error) {
	cfg := Config{
		ProcessingMode:      ProcessingMode(getEnv("AI_PROCESSING_MODE", string(ModeLocal))),
		WorkerHost:          getEnv("AI_WORKER_HOST", ""),
		EventSource:         EventSourceKind(getEnv("SEGMENT_EVENT_SOURCE", string(SourceFileWatcher))),
		WatchDirectory:      getEnv("SEGMENT_WATCH_DIR", "./segments"),
		CloudCredentialRef:  getEnv("AI_CLOUD_CREDENTIAL_REF", ""),
		CatalogPath:         getEnv("AI_PROVIDER_CATALOG", ""),
		ConfidenceThreshold: 0.5,
	}

	timeout, err := getDurationEnv("AI_WORKER_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerTimeout = timeout

	poll, err := getDurationEnv("FILE_WATCHER_POLL_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = poll

	if v := os.Getenv("AI_CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: AI_CONFIDENCE_THRESHOLD: %w", err)
		}
		cfg.ConfidenceThreshold = f
	}

	switch cfg.ProcessingMode {
	case ModeLocal, ModeRemoteLAN, ModeCloud:
	default:
		return Config{}, fmt.Errorf("config: unknown AI_PROCESSING_MODE %q", cfg.ProcessingMode)
	}

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

// catalogDocument is the YAML shape of the provider/brand catalog file.
type catalogDocument struct {
	Providers []models.Provider `yaml:"providers"`
	Brands    []models.Brand    `yaml:"brands"`
}
