package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MinRecheckInterval is the minimum time between two mtime checks of the
// backing config file, per spec §4.2.
const MinRecheckInterval = 60 * time.Second

// RelativeConfigPath is where the workflow config lives under the
// resolved config root.
const RelativeConfigPath = ".taskorchestrator/config.yaml"

// Manager owns the active WorkflowConfig snapshot and reloads it when the
// backing file's mtime advances. Readers call Current(), which is a plain
// atomic load: a reload swaps the pointer, it never mutates a
// WorkflowConfig readers might be holding.
type Manager struct {
	path       string
	minRecheck time.Duration
	logger     *slog.Logger

	current atomic.Pointer[WorkflowConfig]

	mu          sync.Mutex
	lastChecked time.Time
	lastModTime time.Time
}

// ConfigRoot resolves the directory config.yaml is loaded relative to:
// AGENT_CONFIG_DIR if set, else the process working directory.
func ConfigRoot() string {
	if dir := os.Getenv("AGENT_CONFIG_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// NewManager loads the config at <root>/.taskorchestrator/config.yaml. If
// the file is absent, Default() becomes the active config and no error is
// returned; the file is optional, per spec §6.2.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:       filepath.Join(root, RelativeConfigPath),
		minRecheck: MinRecheckInterval,
		logger:     logger,
	}

	info, err := os.Stat(m.path)
	switch {
	case os.IsNotExist(err):
		m.current.Store(Default())
		m.lastChecked = time.Now()
		return m, nil
	case err != nil:
		return nil, err
	}

	cfg, err := loadFile(m.path)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	m.lastModTime = info.ModTime()
	m.lastChecked = time.Now()
	return m, nil
}

// Current returns the active snapshot.
func (m *Manager) Current() *WorkflowConfig {
	return m.current.Load()
}

// MaybeReload checks the backing file's mtime, no more than once per
// MinRecheckInterval, and reloads if it advanced. On a load error the
// previous config remains active and the error is logged, per spec §4.2.
func (m *Manager) MaybeReload() {
	m.mu.Lock()
	if time.Since(m.lastChecked) < m.minRecheck {
		m.mu.Unlock()
		return
	}
	m.lastChecked = time.Now()
	path := m.path
	lastModTime := m.lastModTime
	m.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("workflow config stat failed, keeping previous config", "path", path, "error", err)
		}
		return
	}
	if !info.ModTime().After(lastModTime) {
		return
	}

	cfg, err := loadFile(path)
	if err != nil {
		m.logger.Warn("workflow config reload failed, keeping previous config", "path", path, "error", err)
		return
	}

	m.mu.Lock()
	m.lastModTime = info.ModTime()
	m.mu.Unlock()
	m.current.Store(cfg)
	m.logger.Info("workflow config reloaded", "path", path)
}

// RunReloadLoop runs MaybeReload on a ticker until stop is closed; intended
// to be started once from cmd/taskorchestratord alongside the lock
// sweeper. It also watches the config file's parent directory with
// fsnotify so an edit is picked up promptly, but MaybeReload's own
// MinRecheckInterval floor still governs how often the file is actually
// re-stat'd and re-parsed: the watcher only wakes the ticker loop early,
// it never bypasses the recheck interval.
func (m *Manager) RunReloadLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.minRecheck)
	defer ticker.Stop()

	watcher, events := m.watchConfigDir()
	if watcher != nil {
		defer watcher.Close()
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.MaybeReload()
		case <-events:
			m.MaybeReload()
		}
	}
}

// watchConfigDir best-effort watches the config file's parent directory.
// A missing directory (config file never created) is not an error here;
// the ticker-driven MaybeReload still covers that case every
// MinRecheckInterval.
func (m *Manager) watchConfigDir() (*fsnotify.Watcher, <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("fsnotify watcher unavailable, falling back to ticker-only reload", "error", err)
		return nil, nil
	}
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		m.logger.Debug("config directory not watchable yet", "dir", dir, "error", err)
		watcher.Close()
		return nil, nil
	}

	wake := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(m.path) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return watcher, wake
}

func loadFile(path string) (*WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
