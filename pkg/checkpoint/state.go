package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the tag of a crawl State.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusExhausted  Status = "exhausted"
)

// DefaultEpoch is where a subreddit with no checkpoint starts: 2016-01-01T00:00:00Z.
const DefaultEpoch int64 = 1451606400

// ErrInvalidState is returned for a State whose tag is unknown or whose
// cursor does not fit its tag.
var ErrInvalidState = errors.New("invalid crawl state")

// State is the crawl state of one subreddit. It is one of NotStarted,
// InProgress(cursor) or Exhausted(cursor); Cursor is meaningless for NotStarted.
type State struct {
	Status Status
	Cursor int64
}

// NotStarted is the state of a subreddit that has never been crawled.
func NotStarted() State { return State{Status: StatusNotStarted} }

// InProgress is the state of a crawl that will resume strictly after cursor.
func InProgress(cursor int64) State { return State{Status: StatusInProgress, Cursor: cursor} }

// Exhausted is the state after an empty page. The cursor is kept.
func Exhausted(cursor int64) State { return State{Status: StatusExhausted, Cursor: cursor} }

// Started reports whether the state carries a cursor.
func (s State) Started() bool {
	return s.Status == StatusInProgress || s.Status == StatusExhausted
}

// CursorTime returns the cursor as a UTC time, or the zero time for NotStarted.
func (s State) CursorTime() time.Time {
	if !s.Started() {
		return time.Time{}
	}
	return time.Unix(s.Cursor, 0).UTC()
}

func (s State) Validate() error {
	switch s.Status {
	case StatusNotStarted:
		if s.Cursor != 0 {
			return fmt.Errorf("%w: not_started with cursor %d", ErrInvalidState, s.Cursor)
		}
	case StatusInProgress, StatusExhausted:
		if s.Cursor < 0 {
			return fmt.Errorf("%w: negative cursor %d", ErrInvalidState, s.Cursor)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, s.Status)
	}
	return nil
}

func (s State) String() string {
	if !s.Started() {
		return string(s.Status)
	}
	return fmt.Sprintf("%s(%d)", s.Status, s.Cursor)
}

type stateJSON struct {
	Status Status `json:"status"`
	Cursor *int64 `json:"cursor,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Status: s.Status}
	if s.Started() {
		c := s.Cursor
		out.Cursor = &c
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	st := State{Status: in.Status}
	if in.Cursor != nil {
		st.Cursor = *in.Cursor
	}
	if st.Started() && in.Cursor == nil {
		return fmt.Errorf("%w: %s without cursor", ErrInvalidState, st.Status)
	}
	if err := st.Validate(); err != nil {
		return err
	}
	*s = st
	return nil
}

// Entry is a stored state together with its subreddit.
type Entry struct {
	Subreddit string    `json:"subreddit"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
