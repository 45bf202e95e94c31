package session

import (
	"sync"
	"time"
)

// Key identifies one conversation within one namespace.
type Key struct {
	ChatID    int64
	Namespace Namespace
}

// Store is the only cross-conversation shared state. At most one non-terminal
// session exists per key; Put replaces atomically.
type Store struct {
	mu sync.Mutex
	m  map[Key]Session
}

func NewStore() *Store {
	return &Store{m: make(map[Key]Session)}
}

func (s *Store) Get(k Key) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[k]
	return sess, ok
}

// Put installs a session, replacing any prior one for the key.
func (s *Store) Put(k Key, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = sess
}

func (s *Store) Remove(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

// RemoveIfProcessing removes the session only while it is still owned by a
// pipeline. A fresh session the user started mid-pipeline survives the old
// pipeline's terminal cleanup.
func (s *Store) RemoveIfProcessing(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[k]
	if !ok || sess.CurrentStep() != StepProcessing {
		return false
	}
	delete(s.m, k)
	return true
}

// RemoveChat clears every namespace for a chat (the /cancel path).
func (s *Store) RemoveChat(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range []Namespace{NamespaceSingle, NamespaceBulk, NamespacePDF} {
		delete(s.m, Key{ChatID: chatID, Namespace: ns})
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Expire drops sessions idle longer than ttl. Sessions in StepProcessing are
// owned by a running pipeline and are never expired here.
func (s *Store) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.m {
		if sess.CurrentStep() == StepProcessing {
			continue
		}
		if sess.Touched().Before(cutoff) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

