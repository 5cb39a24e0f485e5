package store

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Soft is a string-keyed Store whose entries are reclaimed after staying
// unread for the idle period. It stands in for a soft-reference map: data is
// kept while it is in use and released when memory is better spent elsewhere.
//
// Writes and idle-refreshing reads are serialized so that a read never
// restores a value replaced by a concurrent Put.
type Soft[V any] struct {
	mu   sync.Mutex
	c    *gocache.Cache
	idle time.Duration
}

var _ Store[string, int] = (*Soft[int])(nil)

// NewSoft creates a Soft store. idle <= 0 keeps entries until removed;
// cleanup is the janitor interval (<= 0 disables the janitor).
func NewSoft[V any](idle, cleanup time.Duration) *Soft[V] {
	exp := idle
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	if cleanup < 0 {
		cleanup = 0
	}
	return &Soft[V]{c: gocache.New(exp, cleanup), idle: exp}
}

// OnReclaimed registers fn to be called when the janitor drops an idle entry
// or an entry is removed.
func (s *Soft[V]) OnReclaimed(fn func(k string, v V)) {
	s.c.OnEvicted(func(k string, v interface{}) {
		fn(k, as[V](v))
	})
}

// Get returns the value and restarts its idle period.
func (s *Soft[V]) Get(k string) (V, bool) {
	if s.idle != gocache.NoExpiration {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	v, ok := s.c.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	if s.idle != gocache.NoExpiration {
		s.c.Set(k, v, gocache.DefaultExpiration)
	}
	return as[V](v), true
}

func (s *Soft[V]) Put(k string, v V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.peek(k)
	s.c.Set(k, v, gocache.DefaultExpiration)
	return old, ok
}

func (s *Soft[V]) Remove(k string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.peek(k)
	if ok {
		s.c.Delete(k)
	}
	return old, ok
}

// Len counts entries including expired ones the janitor has not dropped yet.
func (s *Soft[V]) Len() int { return s.c.ItemCount() }

func (s *Soft[V]) Clear() { s.c.Flush() }

func (s *Soft[V]) Range(fn func(k string, v V) bool) {
	for k, item := range s.c.Items() {
		if !fn(k, as[V](item.Object)) {
			return
		}
	}
}

func (s *Soft[V]) peek(k string) (V, bool) {
	v, ok := s.c.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	return as[V](v), true
}

// as converts a stored object back to V; a nil interface maps to the zero V.
func as[V any](v interface{}) V {
	x, _ := v.(V)
	return x
}
