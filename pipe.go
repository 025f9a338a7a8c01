package syncore

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrClosedPipe is returned by writes to a closed [Pipe].
var ErrClosedPipe = errors.New("syncore: write on closed pipe")

// Pipe is a blocking in-memory byte stream over a [Ring].
//
// Any number of goroutines may write and read. Writers are serialized by
// one [FairRWLock] and readers by another, so the ring itself always sees a
// single producer and a single consumer. Blocked sides sleep on an [Epoch]
// that the opposite side advances after each commit.
type Pipe struct {
	_        noCopy
	ring     *Ring
	wmu      FairRWLock
	rmu      FairRWLock
	written  Epoch
	consumed Epoch
	closed   atomic.Bool
	// sealed is set by Close once no writer can commit any more.
	sealed atomic.Bool
}

// testHookPipeCommit, if set, runs between the copy and the commit of a write.
var testHookPipeCommit func()

var (
	_ io.Reader = (*Pipe)(nil)
	_ io.Writer = (*Pipe)(nil)
	_ io.Closer = (*Pipe)(nil)
)

// NewPipe creates a pipe that buffers up to capacity bytes.
func NewPipe(capacity int) *Pipe {
	return &Pipe{ring: NewRing(capacity)}
}

// Write copies all of b into the pipe, blocking while the buffer is full.
// It returns ErrClosedPipe, with the count written so far, once the pipe is
// closed. Concurrent writes are not interleaved.
func (p *Pipe) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	var written int
	for len(b) > 0 {
		// Close stores closed before advancing consumed, so either the
		// check below fails or the wait returns.
		seen := p.consumed.Current()
		if p.closed.Load() {
			return written, ErrClosedPipe
		}
		n := min(len(b), p.ring.Free())
		if n == 0 {
			p.consumed.WaitAtLeast(seen + 1)
			continue
		}
		off, ok := p.ring.TryReserveWrite(n)
		if !ok {
			panic("syncore: pipe reservation failed within free space")
		}
		copy(p.ring.Buffer()[off:off+n], b[:n])
		if testHookPipeCommit != nil {
			testHookPipeCommit()
		}
		p.ring.CommitWrite()
		p.written.Add(1)
		b = b[n:]
		written += n
	}
	return written, nil
}

// Read copies up to len(b) buffered bytes into b, blocking until at least
// one byte is available. After Close it drains what is left, including
// writes that were in progress when Close was called, and then returns
// io.EOF.
func (p *Pipe) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.rmu.Lock()
	defer p.rmu.Unlock()

	for {
		seen := p.written.Current()
		if n := p.ring.Read(b); n > 0 {
			p.consumed.Add(1)
			return n, nil
		}
		if p.sealed.Load() {
			// Commits made before sealing may have landed after the read above.
			if n := p.ring.Read(b); n > 0 {
				p.consumed.Add(1)
				return n, nil
			}
			return 0, io.EOF
		}
		p.written.WaitAtLeast(seen + 1)
	}
}

// Buffered returns whether any bytes wait to be read.
func (p *Pipe) Buffered() bool {
	return !p.ring.IsEmpty()
}

// Close stops further writes and wakes every blocked reader and writer.
// It waits for writes already in progress, so every byte a Write reported
// as written is read before io.EOF. Closing twice is a no-op.
func (p *Pipe) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.consumed.Add(1)

	// Blocked writers wake, see closed and leave; one mid-copy commits first.
	p.wmu.Lock()
	p.sealed.Store(true)
	p.wmu.Unlock()
	p.written.Add(1)
	return nil
}
