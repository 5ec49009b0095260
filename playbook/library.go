package playbook

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// filePattern matches playbook files anywhere under the library root.
const filePattern = "**/*.{yaml,yml}"

// Library holds the playbooks discovered under a directory. Reload is
// atomic: readers always see either the previous or the new set.
type Library struct {
	dir    string
	logger *slog.Logger

	mu   sync.RWMutex
	byID map[string]*Playbook
}

// NewLibrary creates a library rooted at dir. Call Discover to load it.
func NewLibrary(dir string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{dir: dir, logger: logger, byID: make(map[string]*Playbook)}
}

// Dir returns the library root.
func (l *Library) Dir() string {
	return l.dir
}

// Discover scans the library directory and replaces the loaded set.
// Files that fail to parse are skipped with a warning so one broken
// template does not take the whole library down.
func (l *Library) Discover() error {
	fsys := os.DirFS(l.dir)
	matches, err := doublestar.Glob(fsys, filePattern)
	if err != nil {
		return fmt.Errorf("glob playbooks: %w", err)
	}

	loaded := make(map[string]*Playbook, len(matches))
	for _, match := range matches {
		path := filepath.Join(l.dir, filepath.FromSlash(match))
		p, err := LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping unparseable playbook", "path", path, "error", err)
			continue
		}
		if existing, ok := loaded[p.ID]; ok {
			l.logger.Warn("duplicate playbook id, keeping first",
				"id", p.ID, "kept", existing.Name, "skipped", path)
			continue
		}
		loaded[p.ID] = p
	}

	l.mu.Lock()
	l.byID = loaded
	l.mu.Unlock()

	l.logger.Debug("playbook library loaded", "dir", l.dir, "count", len(loaded))
	return nil
}

// Get returns the playbook with the given id.
func (l *Library) Get(id string) (*Playbook, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.byID[id]
	return p, ok
}

// List returns all loaded playbooks sorted by id.
func (l *Library) List() []*Playbook {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Playbook, 0, len(l.byID))
	for _, p := range l.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// subdirs lists every directory under root, root included, so the
// watcher can register them all (fsnotify does not recurse).
func subdirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk library: %w", err)
	}
	return dirs, nil
}
