package chat

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. User turns carry Content; assistant turns
// carry the generated SQL, its result table and the summary.
type Turn struct {
	Index     int       `json:"index"`
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	Columns   []string  `json:"columns,omitempty"`
	Rows      [][]any   `json:"rows,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Exchange struct {
	Question Turn `json:"question"`
	Answer   Turn `json:"answer"`
}

type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	// askMu serialises asks so turns are appended in submission order.
	askMu sync.Mutex

	mu       sync.RWMutex
	turns    []Turn
	lastSeen time.Time
	closed   bool
}

func newSession(id, owner string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Owner:     owner,
		CreatedAt: now,
		lastSeen:  now,
	}
}

// Turns returns a copy of the transcript in arrival order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Turn(index int) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[index], true
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// commit appends a question and its answer as one unit.
func (s *Session) commit(question, answer Turn) (Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Exchange{}, ErrSessionClosed
	}
	question.Index = len(s.turns)
	answer.Index = len(s.turns) + 1
	s.turns = append(s.turns, question, answer)
	return Exchange{Question: question, Answer: answer}, nil
}

func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
