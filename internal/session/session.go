// Package session holds per-connection conversational state.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
)

// Session is the mutable state of one connected user. Callers must hold the
// session lock (Lock/Unlock) while reading or mutating any field.
type Session struct {
	mu sync.Mutex

	Key               string
	Turns             []domain.Turn
	StartedAt         time.Time
	LastActivity      time.Time
	UserSpeaking      bool
	AssistantSpeaking bool
	Interruptions     int
	Topic             string
	AwaitingInput     bool
	PendingOutput     string
	Builder           *builder.Builder
	// TotalTurns counts every turn ever recorded, including trimmed ones.
	TotalTurns int
	// SummarizedAt is TotalTurns when the history was last summarized.
	SummarizedAt int

	maxTurns    int
	retainTurns int
	// closed is set once the store has deleted the session.
	closed atomic.Bool
}

func newSession(key string, now time.Time, maxTurns, retainTurns int) *Session {
	return &Session{
		Key:          key,
		StartedAt:    now,
		LastActivity: now,
		maxTurns:     maxTurns,
		retainTurns:  retainTurns,
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Closed reports whether the session was deleted. A closed session is never
// snapshotted again.
func (s *Session) Closed() bool { return s.closed.Load() }

// AppendTurn records a turn. Once the history exceeds the maximum only the
// most recent retained turns are kept.
func (s *Session) AppendTurn(speaker domain.Speaker, text string, at time.Time) {
	s.Turns = append(s.Turns, domain.Turn{Speaker: speaker, Text: text, At: at})
	s.TotalTurns++
	s.LastActivity = at
	if len(s.Turns) > s.maxTurns {
		kept := make([]domain.Turn, s.retainTurns)
		copy(kept, s.Turns[len(s.Turns)-s.retainTurns:])
		s.Turns = kept
	}
}

// Interrupt stops the assistant mid-reply and hands the floor to the user.
func (s *Session) Interrupt(at time.Time) {
	s.AssistantSpeaking = false
	s.PendingOutput = ""
	s.Interruptions++
	s.AwaitingInput = true
	s.LastActivity = at
}

// ClearHistory drops the turn history and any order in progress.
func (s *Session) ClearHistory() {
	s.Turns = nil
	s.Builder = nil
	s.Topic = ""
	s.AwaitingInput = false
}

// Truncate keeps only the most recent keep turns.
func (s *Session) Truncate(keep int) {
	if keep < 0 {
		keep = 0
	}
	if len(s.Turns) > keep {
		s.Turns = append([]domain.Turn(nil), s.Turns[len(s.Turns)-keep:]...)
	}
	s.SummarizedAt = s.TotalTurns
}

// Touch marks activity without recording a turn.
func (s *Session) Touch(at time.Time) {
	s.LastActivity = at
}

// History returns a copy of the turn history.
func (s *Session) History() []domain.Turn {
	out := make([]domain.Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

// Snapshot is the serializable form of a session.
type Snapshot struct {
	Key           string           `json:"key"`
	Turns         []domain.Turn    `json:"turns"`
	StartedAt     time.Time        `json:"startedAt"`
	LastActivity  time.Time        `json:"lastActivity"`
	Interruptions int              `json:"interruptions"`
	Topic         string           `json:"topic,omitempty"`
	AwaitingInput bool             `json:"awaitingInput"`
	Builder       *builder.Builder `json:"builder,omitempty"`
	TotalTurns    int              `json:"totalTurns"`
	SummarizedAt  int              `json:"summarizedAt,omitempty"`
}

// Snapshot copies the session's durable fields.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Key:           s.Key,
		Turns:         s.History(),
		StartedAt:     s.StartedAt,
		LastActivity:  s.LastActivity,
		Interruptions: s.Interruptions,
		Topic:         s.Topic,
		AwaitingInput: s.AwaitingInput,
		TotalTurns:    s.TotalTurns,
		SummarizedAt:  s.SummarizedAt,
	}
	if s.Builder != nil {
		b := *s.Builder
		snap.Builder = &b
	}
	return snap
}

func (s *Session) restore(snap Snapshot) {
	s.Turns = snap.Turns
	if len(s.Turns) > s.maxTurns {
		s.Turns = s.Turns[len(s.Turns)-s.retainTurns:]
	}
	if !snap.StartedAt.IsZero() {
		s.StartedAt = snap.StartedAt
	}
	s.Interruptions = snap.Interruptions
	s.Topic = snap.Topic
	s.AwaitingInput = snap.AwaitingInput
	s.Builder = snap.Builder
	s.TotalTurns = snap.TotalTurns
	s.SummarizedAt = snap.SummarizedAt
}
