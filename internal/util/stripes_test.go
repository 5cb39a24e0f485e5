package util

import (
	"math"
	"sync"
	"testing"
)

func TestNextPow2(t *testing.T) {
	for _, tc := range []struct{ in, want uint64 }{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{17, 32},
		{1024, 1024},
		{1<<63 - 1, 1 << 63},
		{math.MaxUint64, 1 << 63},
	} {
		if got := NextPow2(tc.in); got != tc.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStripeIndex(t *testing.T) {
	if got := StripeIndex(12345, 1); got != 0 {
		t.Fatalf("single stripe: got %d", got)
	}
	if got := StripeIndex(0x1f, 16); got != 0xf {
		t.Fatalf("mask path: got %d", got)
	}
	if got := StripeIndex(10, 3); got != 1 {
		t.Fatalf("modulo path: got %d", got)
	}
}

func TestStripes(t *testing.T) {
	s := NewStripes[int](10)
	if s.Len() != 16 {
		t.Fatalf("stripe count should round up to 16, got %d", s.Len())
	}
	if n := NewStripes[string](0).Len(); !IsPowerOfTwo(uint64(n)) || n < 16 || n > 1024 {
		t.Fatalf("default stripe count out of range: %d", n)
	}

	// The same key always maps to the same stripe, so a shared counter guarded
	// by Lock(k) must not lose updates.
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				unlock := s.Lock(42)
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("lost updates: %d", counter)
	}
}

func TestHasher(t *testing.T) {
	hs := NewHasher[string]()
	if hs.Hash("a") != hs.Hash("a") {
		t.Fatal("string hash is not stable")
	}
	if hs.Hash("a") == hs.Hash("b") {
		t.Fatal("unexpected collision")
	}

	type key struct {
		a int
		b string
	}
	hk := NewHasher[key]()
	if hk.Hash(key{1, "x"}) != hk.Hash(key{1, "x"}) {
		t.Fatal("struct hash is not stable")
	}
}
