// Package util contains internal helpers (hashing, lock striping, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// CacheLinePad separates hot fields into distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicInt64 is an atomic int64 padded to exactly one cache line.
// Used for counters hammered from both ends of a structure (e.g. list size).
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte // 8 = size of int64; pad to 64 bytes
}

// PaddedAtomicUint64 is the uint64 counterpart padded to one cache line.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// PaddedMutex is a sync.Mutex that occupies a full cache line, so that
// neighbouring stripes do not false-share.
type PaddedMutex struct {
	sync.Mutex
	_ [CacheLineSize - unsafe.Sizeof(sync.Mutex{})]byte
}

// ---- Compile-time size checks (must be exactly one cache line) ----

var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicInt64{}))]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedMutex{}))]byte
)
