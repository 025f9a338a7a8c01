package syncore

import (
	"sync/atomic"

	"github.com/llxisdsh/syncore/internal/opt"
)

// Signal is a manual-reset blocking signal.
//
// Wait blocks until the signal is set open. Set(true) releases every current
// and future waiter; Set(false) makes later waits block again.
//
// [Gate] and [CondGate] implement it.
type Signal interface {
	Wait()
	Set(open bool)
}

var (
	_ Signal = (*Gate)(nil)
	_ Signal = (*CondGate)(nil)
)

// Gate is a synchronization primitive that can be manually opened and closed.
//
// State:
//   - Open: Wait returns immediately.
//   - Close: Wait blocks.
//
// It is zero-value usable (starts Close).
//
// Size: 16 bytes (8 byte state + 2*4 byte sema).
type Gate struct {
	_ noCopy
	// state 64-bit:
	//   Bit 63:    IsOpen (1 = Open, 0 = Close)
	//   Bit 32-62: Generation
	//   Bit 0-31:  Waiter Count
	state atomic.Uint64

	// sema is double-buffered so a waiter of an old generation cannot
	// consume a wake-up meant for the next one.
	sema [2]opt.Sema
}

const (
	gateOpenBit = 1 << 63
	gateGenMask = 0x7FFFFFFF
	gateCntMask = 0xFFFFFFFF
)

// Open sets the gate open and wakes every current waiter.
// Future calls to Wait() return immediately until Close() is called.
func (e *Gate) Open() {
	for {
		s := e.state.Load()
		if s&gateOpenBit != 0 {
			return
		}
		gen := (s >> 32) & gateGenMask
		cnt := s & gateCntMask

		// Keep the generation, drop the waiter count: all of them are woken below.
		if e.state.CompareAndSwap(s, gateOpenBit|(gen<<32)) {
			sema := &e.sema[gen%2]
			for range cnt {
				sema.Release()
			}
			return
		}
	}
}

// Close sets the gate closed. Future calls to Wait() block.
func (e *Gate) Close() {
	for {
		s := e.state.Load()
		if s&gateOpenBit == 0 {
			return
		}
		// A new closed phase starts a new generation.
		gen := (s >> 32) & gateGenMask
		next := ((gen + 1) & gateGenMask) << 32
		if e.state.CompareAndSwap(s, next) {
			return
		}
	}
}

// Set opens or closes the gate.
func (e *Gate) Set(open bool) {
	if open {
		e.Open()
	} else {
		e.Close()
	}
}

// Wait blocks until the gate is opened.
// If the gate is already open, it returns immediately.
func (e *Gate) Wait() {
	for {
		s := e.state.Load()
		if s&gateOpenBit != 0 {
			return
		}
		if e.state.CompareAndSwap(s, s+1) {
			gen := (s >> 32) & gateGenMask
			// Woken only by Open of this generation, which satisfies the wait
			// even if the gate was closed again right after.
			e.sema[gen%2].Acquire()
			return
		}
	}
}

// IsOpen returns true if the gate is currently opened.
func (e *Gate) IsOpen() bool {
	return e.state.Load()&gateOpenBit != 0
}
