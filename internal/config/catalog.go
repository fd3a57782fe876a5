package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"streamvision/pkg/models"
)

// FileCatalog implements internal/registry.Catalog by reading a YAML
// file of providers and brands, and watches that file's directory with
// fsnotify so an admin edit triggers a Reload without a process
// restart — the same "watch the directory, not the file" approach the
// ambient config-reload pattern in the retrieval pack uses, since many
// editors replace rather than truncate-and-rewrite on save.
type FileCatalog struct {
	path string

	mu        sync.RWMutex
	providers []models.Provider
	brands    []models.Brand
}

// NewFileCatalog loads path once. Call Watch to keep it current.
func NewFileCatalog(path string) (*FileCatalog, error) {
	c := &FileCatalog{path: path}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileCatalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", c.path, err)
	}
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.providers = doc.Providers
	c.brands = doc.Brands
	c.mu.Unlock()
	return nil
}

// Providers implements registry.Catalog.
func (c *FileCatalog) Providers() ([]models.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Provider, len(c.providers))
	copy(out, c.providers)
	return out, nil
}

// Brands implements registry.Catalog.
func (c *FileCatalog) Brands() ([]models.Brand, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Brand, len(c.brands))
	copy(out, c.brands)
	return out, nil
}

// Reloader is the narrow registry dependency FileCatalog's watch loop
// notifies on a detected file change.
type Reloader interface {
	Reload() error
}

// Watch starts an fsnotify watch on the catalog file's parent directory
// and calls reloader.Reload after every write event naming this file,
// logging and continuing on transient reload errors rather than
// exiting the watch loop. It runs until stop is closed.
func (c *FileCatalog) Watch(stop <-chan struct{}, reloader Reloader, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: create watcher: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("catalog: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != c.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.load(); err != nil {
					logger.Error("catalog reload: parse failed", "path", c.path, "error", err)
					continue
				}
				if err := reloader.Reload(); err != nil {
					logger.Error("catalog reload: registry reload failed", "path", c.path, "error", err)
					continue
				}
				logger.Info("catalog reloaded", "path", c.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("catalog watcher error", "error", err)
			case <-stop:
				return
			}
		}
	}()

	return nil
}
