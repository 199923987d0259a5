// Package delegate runs codec transforms on a separate execution unit.
//
// A Unit is a goroutine that owns every Transform it creates. Callers talk to it only through messages: each Task has
// a serial number, every reply carries the serial number of the task it belongs to, and a dispatcher goroutine routes
// replies to per-task channels. Several tasks can be in flight on the same Unit at once.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
)

// ErrTerminated is wrapped by every error returned after Unit.Terminate.
var ErrTerminated = errors.New("execution unit terminated")

// Error is returned when delegated execution fails (DelegationFault).
//
// If the failure originated from the codec itself, Err is the *codec.Error so errors.As works for both types.
type Error struct {
	// Serial is the task's serial number, 0 for the import handshake.
	Serial uint64
	// Op is the operation that failed, such as "import", "append", or "flush".
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Serial == 0 {
		return fmt.Sprintf("delegate %s error: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("delegate task %d %s error: %v", e.Serial, e.Op, e.Err)
}

// Options customises Start.
type Options struct {
	// Imports lists the codec families the unit must load before accepting tasks.
	//
	// By default, codec.Families is used. Names that are not in codec.Families fail Start.
	Imports []string

	// Logger is used to log dropped replies and termination.
	//
	// By default, log.Default is used.
	Logger *log.Logger
}

// Stats contains the accumulated diagnostic counters of a Unit.
type Stats struct {
	// CodecTime is the total time spent in codec Append and Flush.
	CodecTime time.Duration
	// CRCTime is the total time spent computing checksums.
	CRCTime time.Duration
}

// Unit is a handle to a running execution unit.
//
// A Unit is safe for concurrent use by multiple goroutines, although each Task must be used by only one goroutine at a
// time.
type Unit struct {
	inbox   chan request
	replies chan reply
	done    chan struct{}
	once    sync.Once
	logger  *log.Logger

	serial atomic.Uint64

	// mu guards tasks.
	mu    sync.Mutex
	tasks map[uint64]*Task

	codecTime, crcTime atomic.Int64
}

// Start launches a new execution unit and waits for it to acknowledge its imports.
//
// If the handshake fails, the unit is terminated and a *Error is returned.
func Start(ctx context.Context, optFns ...func(*Options)) (*Unit, error) {
	opts := &Options{
		Imports: codec.Families,
		Logger:  log.Default(),
	}
	for _, fn := range optFns {
		fn(opts)
	}

	u := &Unit{
		inbox:   make(chan request),
		replies: make(chan reply, 16),
		done:    make(chan struct{}),
		logger:  opts.Logger,
		tasks:   make(map[uint64]*Task),
	}

	go u.run()
	go u.dispatch()

	// serial 0 is reserved for the handshake.
	t := u.register(0, codec.NoOp(), checksum.None)
	defer t.unregister()

	if err := t.send(ctx, request{kind: reqImport, imports: slices.Clone(opts.Imports)}, "import"); err != nil {
		u.Terminate()
		return nil, err
	}

	switch r, err := t.recv(ctx, "import"); {
	case err != nil:
		u.Terminate()
		return nil, err
	case r.kind == replyError:
		u.Terminate()
		return nil, &Error{Op: "import", Err: r.err}
	case r.kind != replyImports:
		u.Terminate()
		return nil, &Error{Op: "import", Err: fmt.Errorf("unexpected reply %v", r.kind)}
	}

	return u, nil
}

// Submit allocates a new Task that will run the Transform described by spec.
//
// Nothing is sent to the unit until the first Task.Append or Task.Flush. The caller must eventually Task.Flush or
// Task.Close the task.
func (u *Unit) Submit(spec codec.Spec, mode checksum.Mode) *Task {
	return u.register(u.serial.Add(1), spec, mode)
}

// Stats returns the accumulated counters.
func (u *Unit) Stats() Stats {
	return Stats{
		CodecTime: time.Duration(u.codecTime.Load()),
		CRCTime:   time.Duration(u.crcTime.Load()),
	}
}

// Terminate stops the unit immediately.
//
// In-flight tasks are not drained; their pending and subsequent calls return a *Error wrapping ErrTerminated.
// Terminate is idempotent.
func (u *Unit) Terminate() {
	u.once.Do(func() {
		close(u.done)
	})
}

// Terminated returns a channel that is closed when the unit is terminated.
func (u *Unit) Terminated() <-chan struct{} {
	return u.done
}

func (u *Unit) register(serial uint64, spec codec.Spec, mode checksum.Mode) *Task {
	t := &Task{
		u:       u,
		serial:  serial,
		spec:    spec,
		mode:    mode,
		replies: make(chan reply, 4),
		closed:  make(chan struct{}),
	}

	u.mu.Lock()
	u.tasks[serial] = t
	u.mu.Unlock()
	return t
}

// dispatch routes replies from the unit to their tasks.
func (u *Unit) dispatch() {
	for {
		select {
		case <-u.done:
			return
		case r := <-u.replies:
			u.mu.Lock()
			t, ok := u.tasks[r.serial]
			u.mu.Unlock()

			if !ok {
				u.logger.Printf("delegate: dropping %v reply for unknown task %d", r.kind, r.serial)
				continue
			}

			select {
			case t.replies <- r:
			case <-t.closed:
			case <-u.done:
				return
			}
		}
	}
}
