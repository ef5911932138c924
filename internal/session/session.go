// Package session persists the progress of an import or export run, so a
// paged run survives across independent invocations and can resume at its
// last committed position.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a run.
const (
	DirectionExport = "export"
	DirectionImport = "import"
)

// State of a run.
type State string

const (
	// StateNew is a created but not yet started run.
	StateNew State = "new"
	// StateActive is a run with at least one processed page.
	StateActive State = "active"
	// StateFinished is a run whose position reached its total.
	StateFinished State = "finished"
	// StateClosed is a cancelled run.
	StateClosed State = "closed"
)

// Session is the persisted state of one run. Position advances
// monotonically; RecordIDs is the id snapshot taken once at preload so
// pages stay stable while underlying data changes.
type Session struct {
	ID         uuid.UUID
	ProfileID  int64
	Direction  string
	Format     string
	FileName   string
	Position   int
	TotalCount int
	// FileSize is the byte size of the exchange file after the last
	// committed export page. A retried page truncates the file back to it
	// before appending, so a crash between append and save cannot
	// duplicate records.
	FileSize  int64
	RecordIDs []int64
	Messages   []string
	State      State
	CreatedAt  time.Time
}

// New creates a fresh session for one run.
func New(profileID int64, direction, format, fileName string) *Session {
	return &Session{
		ID:        uuid.New(),
		ProfileID: profileID,
		Direction: direction,
		Format:    format,
		FileName:  fileName,
		State:     StateNew,
		CreatedAt: time.Now().UTC(),
	}
}

// Preloaded records the id snapshot and total of an export run and starts
// it. Calling it on an already started session is a no-op, so repeated
// prepare calls stay idempotent.
func (s *Session) Preloaded(ids []int64) {
	if s.State != StateNew {
		return
	}
	s.RecordIDs = ids
	s.TotalCount = len(ids)
	s.State = StateActive
}

// Started marks an import run active with the given file total.
func (s *Session) Started(total int) {
	if s.State != StateNew {
		return
	}
	s.TotalCount = total
	s.State = StateActive
}

// Advance moves the position after one committed page and finishes the run
// when the end is reached.
func (s *Session) Advance(n int) {
	s.Position += n
	if s.Position > s.TotalCount {
		s.Position = s.TotalCount
	}
	if s.Position >= s.TotalCount {
		s.State = StateFinished
	}
}

// PageIDs returns the id window for the next page of an export run.
func (s *Session) PageIDs(limit int) []int64 {
	if s.Position >= len(s.RecordIDs) {
		return nil
	}
	end := s.Position + limit
	if end > len(s.RecordIDs) {
		end = len(s.RecordIDs)
	}
	return s.RecordIDs[s.Position:end]
}

// Log appends recoverable per-record failure messages.
func (s *Session) Log(msgs ...string) {
	s.Messages = append(s.Messages, msgs...)
}

// Done reports whether the run has processed every record.
func (s *Session) Done() bool { return s.State == StateFinished }
