package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"go.quadlink.org/quadlink/logger"
)

// ErrNotFound is returned when no config file exists in any search path.
var ErrNotFound = errors.New("no config file found")

// searchPaths are tried in order when no explicit path is given.
var searchPaths = []string{
	"/app/config.yaml",
	"./config.yaml",
	"~/.quadlink/config.yaml",
	"/etc/quadlink/config.yaml",
}

var loadDotEnv sync.Once

// Loader loads the YAML configuration, caching the last successful
// load so a transiently unreadable file does not take the daemon down.
type Loader struct {
	explicitPath string

	mu     sync.Mutex
	cached *Config
}

// NewLoader creates a loader. With an explicit path only that file is
// considered; otherwise the standard search paths are tried in order.
func NewLoader(explicitPath string) *Loader {
	return &Loader{explicitPath: explicitPath}
}

// Load reads and validates the configuration, falling back to the
// cached config when a previous load succeeded.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	log := logger.FromContext(ctx)

	loadDotEnv.Do(func() {
		// optional .env with QL_USERNAME/QL_SECRET
		_ = godotenv.Load()
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.loadFromFile(ctx)
	if err != nil {
		if l.cached != nil {
			log.WarnContext(ctx, "config load failed, using cached version", "err", err)
			return l.cached, nil
		}
		return nil, err
	}

	l.cached = cfg
	return cfg, nil
}

func (l *Loader) loadFromFile(ctx context.Context) (*Config, error) {
	log := logger.FromContext(ctx)

	path, err := l.findFile()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(ctx, data)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "config loaded", "path", path)
	return cfg, nil
}

func (l *Loader) findFile() (string, error) {
	paths := searchPaths
	if l.explicitPath != "" {
		paths = []string{l.explicitPath}
	}

	for _, p := range paths {
		path := expandHome(p)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if l.explicitPath != "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, l.explicitPath)
	}
	return "", fmt.Errorf("%w, searched: %s", ErrNotFound, strings.Join(searchPaths, ", "))
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Watch notifies on the returned channel when the config file changes
// on disk. Events are debounced; the channel never blocks the watcher.
// The watcher shuts down when the context is canceled.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	log := logger.FromContext(ctx).WithGroup("config-watch")

	path, err := l.findFile()
	if err != nil {
		return nil, err
	}
	dir, file := filepath.Dir(path), filepath.Base(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	const debounceInterval = 100 * time.Millisecond

	changed := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case <-debounceC:
				debounce, debounceC = nil, nil
				select {
				case changed <- struct{}{}:
				default:
				}

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// editors and config management tools often replace
				// the file atomically, which shows up as Create/Rename
				if filepath.Base(event.Name) != file {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				log.DebugContext(ctx, "config file changed", "event", event.String())
				if debounce == nil {
					debounce = time.NewTimer(debounceInterval)
					debounceC = debounce.C
				} else {
					debounce.Reset(debounceInterval)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WarnContext(ctx, "file watcher error", "err", err)
			}
		}
	}()

	log.InfoContext(ctx, "watching config file", "dir", dir, "file", file)
	return changed, nil
}
