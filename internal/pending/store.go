// Package pending parks parsed drafts until the user confirms or cancels them.
//
// Entries live for TTL. Expired entries are purged on every Put and are never
// returned by Get, so callers treat a miss as "expired or unknown".
// Confirmation goes through Take, which hands an entry to exactly one caller.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"expense-bot/internal/model"
)

// TTL is how long a draft waits for confirmation.
const TTL = 5 * time.Minute

// Entry is a draft awaiting confirmation.
type Entry struct {
	UserID    uint         `json:"user_id"`
	ChatID    int64        `json:"chat_id"`
	Source    model.Source `json:"source"`
	Draft     model.Draft  `json:"draft"`
	CreatedAt time.Time    `json:"created_at"`
}

var (
	ErrExpired  = errors.New("pending entry expired or unknown")
	ErrNotOwner = errors.New("pending entry belongs to another user")
)

// Store is implemented by MemoryStore and BoltStore.
type Store interface {
	Put(e Entry) (string, error)
	Get(id string) (Entry, bool)
	Delete(id string)
	// Take removes and returns the entry owned by userID. Of concurrent Takes
	// for one id at most one succeeds. An entry owned by someone else is left
	// in place and ErrNotOwner is returned.
	Take(id string, userID uint) (Entry, error)
	// Restore puts a taken entry back under its id with its original
	// CreatedAt.
	Restore(id string, e Entry) error
}

func newID() string {
	return uuid.NewString()[:8]
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     TTL,
		now:     time.Now,
	}
}

// Put stores e under a fresh short id, stamping CreatedAt.
func (s *MemoryStore) Put(e Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, id)
		}
	}

	id := newID()
	for _, taken := s.entries[id]; taken; _, taken = s.entries[id] {
		id = newID()
	}
	e.CreatedAt = now
	s.entries[id] = e
	return id, nil
}

func (s *MemoryStore) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.now().Sub(e.CreatedAt) > s.ttl {
		return Entry{}, false
	}
	return e, true
}

func (s *MemoryStore) Take(id string, userID uint) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.now().Sub(e.CreatedAt) > s.ttl {
		delete(s.entries, id)
		return Entry{}, ErrExpired
	}
	if e.UserID != userID {
		return Entry{}, ErrNotOwner
	}
	delete(s.entries, id)
	return e, nil
}

func (s *MemoryStore) Restore(id string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
	return nil
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
