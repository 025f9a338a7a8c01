package syncore

import (
	"github.com/llxisdsh/pb"
)

// FairRWLockGroup hands out one [FairRWLock] per key.
//
// Features:
//   - RLock/RUnlock, Lock/Unlock and Upgrade with FairRWLock semantics per key.
//   - Unbounded key space; a key's lock exists only while somebody holds
//     or waits for it.
//
// Usage:
//
//	var group FairRWLockGroup[string]
//
//	group.RLock("eth0")
//	readStats()
//	group.RUnlock("eth0")
//
//	group.Lock("eth0")
//	reconfigure()
//	group.Unlock("eth0")
type FairRWLockGroup[K comparable] struct {
	_       noCopy
	m       pb.MapOf[K, *fairRWLockGroupEntry]
	options []func(*FairRWLockConfig)
}

type fairRWLockGroupEntry struct {
	mu *FairRWLock
	// ref counts holders and waiters; updated only inside ProcessEntry.
	ref int32
}

// NewFairRWLockGroup creates a group whose per-key locks are built with options.
func NewFairRWLockGroup[K comparable](options ...func(*FairRWLockConfig)) *FairRWLockGroup[K] {
	return &FairRWLockGroup[K]{options: options}
}

// acquire references the lock for k, creating it on first use.
func (g *FairRWLockGroup[K]) acquire(k K) *FairRWLock {
	v, _ := g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *fairRWLockGroupEntry]) (*pb.EntryOf[K, *fairRWLockGroupEntry], *fairRWLockGroupEntry, bool) {
			if l != nil {
				l.Value.ref++
				return l, l.Value, true
			}
			e := &fairRWLockGroupEntry{mu: NewFairRWLock(g.options...), ref: 1}
			return &pb.EntryOf[K, *fairRWLockGroupEntry]{Value: e}, e, false
		},
	)
	return v.mu
}

// lookup returns the lock for k, which the caller must be referencing.
func (g *FairRWLockGroup[K]) lookup(k K) *FairRWLock {
	v, ok := g.m.Load(k)
	if !ok {
		panic("syncore: FairRWLockGroup unlock of unknown key")
	}
	return v.mu
}

// release drops one reference to k and removes the entry at zero.
func (g *FairRWLockGroup[K]) release(k K) {
	g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *fairRWLockGroupEntry]) (*pb.EntryOf[K, *fairRWLockGroupEntry], *fairRWLockGroupEntry, bool) {
			if l == nil {
				return nil, nil, false
			}
			l.Value.ref--
			if l.Value.ref <= 0 {
				return nil, l.Value, true
			}
			return l, l.Value, true
		},
	)
}

// RLock locks k for reading.
func (g *FairRWLockGroup[K]) RLock(k K) {
	g.acquire(k).RLock()
}

// TryRLock locks k for reading if that does not require waiting.
func (g *FairRWLockGroup[K]) TryRLock(k K) bool {
	if g.acquire(k).TryRLock() {
		return true
	}
	g.release(k)
	return false
}

// RUnlock undoes a single RLock of k.
func (g *FairRWLockGroup[K]) RUnlock(k K) {
	g.lookup(k).RUnlock()
	g.release(k)
}

// Lock locks k for writing.
func (g *FairRWLockGroup[K]) Lock(k K) {
	g.acquire(k).Lock()
}

// TryLock locks k for writing if that does not require waiting.
func (g *FairRWLockGroup[K]) TryLock(k K) bool {
	if g.acquire(k).TryLock() {
		return true
	}
	g.release(k)
	return false
}

// Unlock releases a write hold on k.
func (g *FairRWLockGroup[K]) Unlock(k K) {
	g.lookup(k).Unlock()
	g.release(k)
}

// Upgrade converts the caller's read hold on k into a write hold.
// The reference taken by RLock carries over to the write hold.
func (g *FairRWLockGroup[K]) Upgrade(k K) {
	g.lookup(k).Upgrade()
}

// Len returns the number of keys with a live lock.
func (g *FairRWLockGroup[K]) Len() int {
	return g.m.Size()
}
