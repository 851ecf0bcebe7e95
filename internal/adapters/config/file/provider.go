// Package file provides the file-based configuration provider.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
)

// Provider implements ports.ConfigProvider on a YAML file. Configuration is
// loaded once; Watch only reports that a restart is needed.
type Provider struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

var _ ports.ConfigProvider = (*Provider)(nil)

// NewProvider creates a provider for path. A missing file is allowed at
// load time; defaults and environment overrides still apply.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, logger: logger}, nil
}

// Path returns the watched file.
func (p *Provider) Path() string {
	return p.path
}

// Load reads and validates the configuration.
func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", p.path, err)
	}
	p.logger.InfoContext(ctx, "config loaded", slog.String("path", p.path))
	return cfg, nil
}

// Watch calls onChange whenever the file is written, created or replaced.
// The directory is watched so editors that rename over the file are seen.
// It returns once the watcher is running; ctx or Close stop it.
func (p *Provider) Watch(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	p.mu.Lock()
	if p.watcher != nil {
		p.watcher.Close()
	}
	p.watcher = watcher
	p.mu.Unlock()

	target := filepath.Clean(p.path)
	p.logger.InfoContext(ctx, "watching config file", slog.String("path", p.path))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				p.logger.WarnContext(ctx, "config file changed; restart required to apply",
					slog.String("path", event.Name),
					slog.String("op", event.Op.String()),
				)
				if onChange != nil {
					onChange(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.ErrorContext(ctx, "config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the config file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
