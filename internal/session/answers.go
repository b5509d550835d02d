package session

import (
	"strings"
	"sync"
)

// AnswerStore holds the in-progress answers of one session, keyed by question ID.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[uint]string
	frozen  bool
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[uint]string)}
}

// Set records an answer and reports whether it was applied; writes after
// Freeze are dropped.
func (s *AnswerStore) Set(questionID uint, answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return false
	}
	s.answers[questionID] = answer
	return true
}

func (s *AnswerStore) Get(questionID uint) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Count is the number of non-blank answers. It is derived on every call.
func (s *AnswerStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countAnswered(s.answers)
}

// Answered reports whether questionID has a non-blank answer.
func (s *AnswerStore) Answered(questionID uint) bool {
	a, ok := s.Get(questionID)
	return ok && strings.TrimSpace(a) != ""
}

// Snapshot returns an independent copy of the current answers.
func (s *AnswerStore) Snapshot() map[uint]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Freeze stops accepting writes and returns the final snapshot.
func (s *AnswerStore) Freeze() map[uint]string {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	return s.Snapshot()
}

func (s *AnswerStore) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Clear drops every answer and reopens the store for writing.
func (s *AnswerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(map[uint]string)
	s.frozen = false
}
