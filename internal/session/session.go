// Package session holds the state of one experiment run.
//
// A Session replaces process-wide globals: it owns the subject identity, the
// condition assignment, the investment decision and the append-only keystroke
// record list. Records are kept in memory and flushed once at the end of the
// run by the results package.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/ostracism-lab/internal/condition"
)

var (
	// ErrSubjectAlreadySet is returned when a second identity is confirmed.
	ErrSubjectAlreadySet = errors.New("session: subject id already set")
	// ErrEmptySubject is returned for a blank identity.
	ErrEmptySubject = errors.New("session: subject id is empty")
	// ErrInvestmentAlreadySet is returned when a second decision is confirmed.
	ErrInvestmentAlreadySet = errors.New("session: investment already set")
	// ErrInvestmentOutOfRange is returned when a decision falls outside [0, endowment].
	ErrInvestmentOutOfRange = errors.New("session: investment out of range")
)

// Record is one recorded keypress.
type Record struct {
	SubjectID      string
	Scene          string
	Timestamp      time.Time
	ReactionTimeMs int64
	Key            string
	Note           string
}

// Session is the explicit context passed to every scene.
type Session struct {
	RunID string

	now func() time.Time

	subjectID  string
	assignment condition.Assignment
	assigned   bool

	investment int
	endowment  int
	invested   bool

	scene      string
	sceneStart time.Time
	lastRT     int64

	records []Record
}

// New creates a session. A nil clock means time.Now.
func New(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		RunID: uuid.NewString(),
		now:   now,
	}
}

// Now reads the session clock.
func (s *Session) Now() time.Time {
	return s.now()
}

// EnterScene marks the start of a scene; reaction times are measured from here.
func (s *Session) EnterScene(name string) {
	s.scene = name
	s.sceneStart = s.now()
	s.lastRT = 0
}

// Scene returns the active scene name.
func (s *Session) Scene() string {
	return s.scene
}

// Elapsed returns the time since the active scene was entered.
func (s *Session) Elapsed() time.Duration {
	return s.now().Sub(s.sceneStart)
}

// Record appends a keypress for the active scene.
func (s *Session) Record(key, note string) Record {
	ts := s.now()
	rt := ts.Sub(s.sceneStart).Milliseconds()
	// Wall clocks can step backwards; keep reaction times monotonic per scene.
	if rt < s.lastRT {
		rt = s.lastRT
	}
	s.lastRT = rt
	rec := Record{
		Scene:          s.scene,
		Timestamp:      ts,
		ReactionTimeMs: rt,
		Key:            key,
		Note:           note,
	}
	s.records = append(s.records, rec)
	return rec
}

// Records returns a copy of the recorded keypresses.
func (s *Session) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// RecordsForSubject returns a copy with the subject id backfilled into every row.
func (s *Session) RecordsForSubject() []Record {
	out := s.Records()
	for i := range out {
		out[i].SubjectID = s.subjectID
	}
	return out
}

// SetSubject stores the identity. It can be set exactly once.
func (s *Session) SetSubject(id string) error {
	if s.subjectID != "" {
		return ErrSubjectAlreadySet
	}
	if id == "" {
		return ErrEmptySubject
	}
	s.subjectID = id
	return nil
}

// SubjectID returns the confirmed identity, empty until set.
func (s *Session) SubjectID() string {
	return s.subjectID
}

// Assign stores the condition assignment.
func (s *Session) Assign(a condition.Assignment) {
	s.assignment = a
	s.assigned = true
}

// Assignment returns the condition assignment and whether one was made.
func (s *Session) Assignment() (condition.Assignment, bool) {
	return s.assignment, s.assigned
}

// SetInvestment stores the decision. It must lie in [0, endowment] and can be
// set exactly once.
func (s *Session) SetInvestment(value, endowment int) error {
	if s.invested {
		return ErrInvestmentAlreadySet
	}
	if value < 0 || value > endowment {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvestmentOutOfRange, value, endowment)
	}
	s.investment = value
	s.endowment = endowment
	s.invested = true
	return nil
}

// Investment returns the decision and whether it has been confirmed.
func (s *Session) Investment() (int, bool) {
	return s.investment, s.invested
}

// Endowment returns the endowment the decision was validated against.
func (s *Session) Endowment() int {
	return s.endowment
}
