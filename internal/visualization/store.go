package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// URLPrefix is where stored visualizations are served
const URLPrefix = "/visualizations/"

var listedExtensions = map[string]bool{
	".html": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Entry describes one stored visualization
type Entry struct {
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Created  time.Time `json:"created"`
}

// Store keeps rendered visualizations in one flat directory. The directory
// listing is the only index.
type Store struct {
	Dir    string
	Logger *logrus.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a store; the directory is created on first write
func NewStore(dir string, logger *logrus.Logger) *Store {
	return &Store{Dir: dir, Logger: logger, now: time.Now}
}

// URL returns the served location of a stored file
func URL(filename string) string {
	return URLPrefix + filename
}

// Save writes an artifact. Without a filename one is derived from the prefix
// and the current time in milliseconds.
func (s *Store) Save(filename, prefix, ext string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create visualization directory: %w", err)
	}

	name := filepath.Base(filename)
	if filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		name = s.timestampName(prefix, ext)
	} else {
		name = withExtension(name, ext)
	}

	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write visualization: %w", err)
	}

	s.Logger.Infof("Saved visualization %s", path)
	return name, nil
}

// withExtension makes name end in ext. A listed extension that does not match
// the content is replaced; anything else is kept and ext appended.
func withExtension(name, ext string) string {
	current := filepath.Ext(name)
	if ext == "" || strings.EqualFold(current, ext) {
		return name
	}
	if listedExtensions[strings.ToLower(current)] {
		name = strings.TrimSuffix(name, current)
	}
	return name + ext
}

// timestampName picks prefix_<unixms>ext, moving forward a millisecond while the name is taken
func (s *Store) timestampName(prefix, ext string) string {
	ms := s.now().UnixMilli()
	for {
		name := fmt.Sprintf("%s_%d%s", prefix, ms, ext)
		if _, err := os.Stat(filepath.Join(s.Dir, name)); os.IsNotExist(err) {
			return name
		}
		ms++
	}
}

// List returns stored visualizations, newest first
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list visualizations: %w", err)
	}

	entries := []Entry{}
	for _, de := range dirEntries {
		if de.IsDir() || !listedExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			s.Logger.Warnf("Skipping visualization %s: %v", de.Name(), err)
			continue
		}
		entries = append(entries, Entry{
			Filename: de.Name(),
			URL:      URL(de.Name()),
			Created:  info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Created.After(entries[j].Created)
	})
	return entries, nil
}

// Delete removes a stored visualization by base name. It reports false when
// there was nothing to delete.
func (s *Store) Delete(filename string) bool {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.Dir, name)
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Errorf("Error deleting visualization: %v", err)
		}
		return false
	}
	s.Logger.Infof("Deleted visualization %s", path)
	return true
}
