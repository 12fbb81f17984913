// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnknownFormat is returned for files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("unknown configuration file format")

// FormatOf derives the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Parse decodes a configuration document. Every top-level entry becomes a
// key; scalar entries are wrapped as {"value": v}.
func Parse(data []byte, format Format) (map[string]map[string]any, error) {
	raw := map[string]any{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	out := make(map[string]map[string]any, len(raw))
	for key, value := range raw {
		if section, ok := value.(map[string]any); ok {
			out[key] = section
		} else {
			out[key] = map[string]any{"value": value}
		}
	}

	return out, nil
}

// FileFeed is a Feed backed by one YAML or TOML file. Watch reloads the file
// whenever it changes on disk.
type FileFeed struct {
	feed   *MemoryFeed
	logger *zap.SugaredLogger
	cancel context.CancelFunc
	path   string
	format Format
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewFileFeed loads path. The file must exist and parse.
func NewFileFeed(path string, log *zap.SugaredLogger) (*FileFeed, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.For(logger.ComponentConfigFeed)
	}

	f := &FileFeed{
		feed:   NewMemoryFeed(),
		logger: log.With("path", path),
		path:   path,
		format: format,
	}

	if err := f.Reload(); err != nil {
		return nil, err
	}

	metrics.InitErrorCounter(metrics.ComponentConfigFeed, path)

	return f, nil
}

// Subscribe implements Feed.
func (f *FileFeed) Subscribe(handler ChangeHandler) (io.Closer, error) {
	return f.feed.Subscribe(handler)
}

// Current returns the configuration last loaded.
func (f *FileFeed) Current() map[string]Snapshot {
	return f.feed.Current()
}

// Reload reads the file again and publishes the keys that changed.
func (f *FileFeed) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading configuration file: %w", err)
	}

	parsed, err := Parse(data, f.format)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	return f.feed.Replace(parsed)
}

// Watch reloads the file on every change until ctx is done or Close is
// called. The parent directory is watched so that files replaced by rename
// are picked up.
func (f *FileFeed) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()

		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}

	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		_ = watcher.Close()

		return errors.New("already watching")
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.wg.Add(1)

	go f.watchLoop(ctx, watcher)

	return nil
}

func (f *FileFeed) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer f.wg.Done()
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(f.path)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}

			if err := f.Reload(); err != nil {
				// Editors truncate before writing; the next event reloads again.
				f.logger.Warnw("Failed to reload configuration", "error", err)
				metrics.IncErrorCount(metrics.ComponentConfigFeed, f.path)

				continue
			}

			f.logger.Debugw("Reloaded configuration", "op", ev.Op.String())
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			sentry.ReportIssueWithContext(err, sentry.IssueTypeWarning, f.logger, map[string]interface{}{
				"operation": "watch_config",
				"path":      f.path,
			})
		}
	}
}

// Close stops watching. It is safe to call without Watch.
func (f *FileFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	f.wg.Wait()

	return nil
}
