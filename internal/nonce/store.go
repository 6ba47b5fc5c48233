// ABOUTME: Thread-safe TTL store for one-shot values keyed by random tokens
// ABOUTME: Holds OAuth state and WebAuthn ceremony sessions between redirect legs

package nonce

import (
	"container/list"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	expires time.Time
	element *list.Element
}

// Store keeps values for a bounded time and hands each one out at most once.
// Insertion order is tracked in a linked list so the oldest entry can be
// evicted in O(1) when the store is full.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a store whose entries live for ttl. When maxSize entries are
// held the oldest is evicted. A background goroutine drops expired entries.
func New[T any](ttl time.Duration, maxSize int) *Store[T] {
	s := &Store[T]{
		entries: make(map[string]*entry[T]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Token returns a URL-safe random string suitable as a key.
func Token() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue stores value under a fresh random token and returns the token.
func (s *Store[T]) Issue(value T) (string, error) {
	key, err := Token()
	if err != nil {
		return "", err
	}
	s.Put(key, value)
	return key, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store[T]) Put(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expires = s.now().Add(s.ttl)
		s.order.MoveToBack(e.element)
		return
	}

	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[key] = &entry[T]{
		value:   value,
		expires: s.now().Add(s.ttl),
		element: s.order.PushBack(key),
	}
}

// Take removes and returns the value under key. The second result is false
// if the key is unknown or expired; either way the key cannot be taken again.
func (s *Store[T]) Take(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	s.order.Remove(e.element)
	delete(s.entries, key)

	if !s.now().Before(e.expires) {
		return zero, false
	}
	return e.value, true
}

// Len returns the number of held entries, including expired ones not yet swept.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Must be called with mu held.
func (s *Store[T]) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, key)
}

func (s *Store[T]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (s *Store[T]) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			s.order.Remove(e.element)
			delete(s.entries, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (s *Store[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
