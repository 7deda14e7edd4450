package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"redditcrawler/pkg/logger"
)

const fileSuffix = ".checkpoint.json"

// record is the on-disk form of one checkpoint file
type record struct {
	Subreddit string    `json:"subreddit"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// FileStore keeps one JSON file per subreddit under a directory. Writes go
// to a temporary file that is synced and renamed over the old one.
type FileStore struct {
	dir    string
	logger logger.Logger
}

// NewFileStore creates a file store rooted at dir. An empty dir selects the
// per-user data directory.
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileStore{dir: dir, logger: log}, nil
}

// Dir returns the directory holding the checkpoint files
func (f *FileStore) Dir() string {
	return f.dir
}

// ErrInvalidSubreddit is returned for names that cannot be a file name
var ErrInvalidSubreddit = errors.New("invalid subreddit name")

func (f *FileStore) path(subreddit string) (string, error) {
	if subreddit == "" || subreddit == "." || subreddit == ".." ||
		filepath.Base(subreddit) != subreddit || strings.ContainsAny(subreddit, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubreddit, subreddit)
	}
	return filepath.Join(f.dir, subreddit+fileSuffix), nil
}

// Load reads the subreddit's checkpoint; a missing file is NotStarted
func (f *FileStore) Load(ctx context.Context, subreddit string) (State, error) {
	path, err := f.path(subreddit)
	if err != nil {
		return State{}, err
	}
	rec, err := f.read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NotStarted(), nil
		}
		return State{}, err
	}

	f.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"subreddit":  subreddit,
		"state":      rec.State.String(),
		"updated_at": rec.UpdatedAt,
	})
	return rec.State, nil
}

func (f *FileStore) read(path string) (*record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rec record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the subreddit's checkpoint atomically
func (f *FileStore) Save(ctx context.Context, subreddit string, state State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := record{
		Subreddit: subreddit,
		State:     state,
		UpdatedAt: time.Now().UTC(),
		Version:   1,
	}

	target, err := f.path(subreddit)
	if err != nil {
		return err
	}
	file, err := os.CreateTemp(f.dir, subreddit+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	f.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"subreddit": subreddit,
		"state":     state.String(),
	})
	return nil
}

// List returns every stored checkpoint sorted by subreddit
func (f *FileStore) List(ctx context.Context) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		rec, err := f.read(m)
		if err != nil {
			return nil, err
		}
		name := rec.Subreddit
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(m), fileSuffix)
		}
		entries = append(entries, Entry{Subreddit: name, State: rec.State, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Subreddit < entries[j].Subreddit })
	return entries, nil
}

// Delete removes the checkpoint file
func (f *FileStore) Delete(ctx context.Context, subreddit string) error {
	path, err := f.path(subreddit)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	f.logger.InfoWithFields("Checkpoint deleted", map[string]interface{}{"subreddit": subreddit})
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "redditcrawler")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "redditcrawler")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "redditcrawler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "redditcrawler")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
