package flatfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Delimiter separates the columns of the submissions file
const Delimiter = '|'

// SubmissionHeader is the fixed header row of every submissions file
var SubmissionHeader = []string{
	"id",
	"created_utc",
	"title",
	"selftext",
	"score",
	"upvote_ratio",
	"permalink",
	"num_comments",
	"comments",
}

// BlacklistHeader is the single column of every blacklist file
const BlacklistHeader = "submission_id"

// Row is one line of a submissions file. Comments holds the JSON encoded
// comment samples.
type Row struct {
	ID          string
	CreatedUTC  int64
	Title       string
	SelfText    string
	Score       int
	UpvoteRatio float64
	Permalink   string
	NumComments int
	Comments    string
}

// Record returns the CSV fields of r. A literal delimiter inside the free
// text columns is replaced by a space.
func (r Row) Record() []string {
	return []string{
		r.ID,
		strconv.FormatInt(r.CreatedUTC, 10),
		Sanitize(r.Title),
		Sanitize(r.SelfText),
		strconv.Itoa(r.Score),
		strconv.FormatFloat(r.UpvoteRatio, 'f', -1, 64),
		r.Permalink,
		strconv.Itoa(r.NumComments),
		Sanitize(r.Comments),
	}
}

// Sanitize replaces the column delimiter with a space
func Sanitize(s string) string {
	return strings.ReplaceAll(s, string(Delimiter), " ")
}

// Manager owns the per-subreddit files under a data directory:
//
//	<dir>/<sub>/<sub>_submissions.csv
//	<dir>/<sub>/<sub>_blacklist.csv
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager creates the data directory if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the data directory
func (m *Manager) Dir() string {
	return m.dir
}

// SubmissionsPath returns the submissions file of subreddit
func (m *Manager) SubmissionsPath(subreddit string) string {
	return filepath.Join(m.dir, subreddit, subreddit+"_submissions.csv")
}

// BlacklistPath returns the blacklist file of subreddit
func (m *Manager) BlacklistPath(subreddit string) string {
	return filepath.Join(m.dir, subreddit, subreddit+"_blacklist.csv")
}

// Prepare creates the subreddit directory and both files with their
// headers. Existing files are left untouched.
func (m *Manager) Prepare(subreddit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(m.dir, subreddit), 0755); err != nil {
		return fmt.Errorf("failed to create subreddit directory: %w", err)
	}
	if err := createWithHeader(m.SubmissionsPath(subreddit), SubmissionHeader); err != nil {
		return err
	}
	return createWithHeader(m.BlacklistPath(subreddit), []string{BlacklistHeader})
}

func createWithHeader(path string, header []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := newWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	return f.Close()
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	return cw
}

// LoadBlacklist returns the ids already written for subreddit. A missing
// file is created and yields an empty set.
func (m *Manager) LoadBlacklist(subreddit string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.BlacklistPath(subreddit)
	ids := make(map[string]bool)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create subreddit directory: %w", err)
		}
		return ids, createWithHeader(path, []string{BlacklistHeader})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blacklist: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blacklist %s: %w", path, err)
		}
		if len(record) == 0 || record[0] == "" || record[0] == BlacklistHeader {
			continue
		}
		ids[record[0]] = true
	}
	return ids, nil
}

// AppendSubmissions appends rows to the submissions file of subreddit
func (m *Manager) AppendSubmissions(subreddit string, rows []Row) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.Record()
	}
	return m.appendRecords(m.SubmissionsPath(subreddit), records)
}

// AppendBlacklist appends ids to the blacklist of subreddit
func (m *Manager) AppendBlacklist(subreddit string, ids []string) error {
	records := make([][]string, len(ids))
	for i, id := range ids {
		records[i] = []string{id}
	}
	return m.appendRecords(m.BlacklistPath(subreddit), records)
}

func (m *Manager) appendRecords(path string, records [][]string) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	w := newWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}
