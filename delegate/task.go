package delegate

import (
	"context"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
)

// Task is one streaming operation running on a Unit.
type Task struct {
	u       *Unit
	serial  uint64
	spec    codec.Spec
	mode    checksum.Mode
	started bool
	done    bool

	replies chan reply
	closed  chan struct{}
}

// Serial returns the task's serial number.
func (t *Task) Serial() uint64 {
	return t.serial
}

// Append sends data to the unit and returns the output produced by the codec, which may be empty.
//
// Ownership of data is transferred to the unit; the caller must not modify it afterwards. onProgress, if non-nil, is
// called with the total number of bytes the task has consumed so far.
func (t *Task) Append(ctx context.Context, data []byte, onProgress func(consumed int64)) ([]byte, error) {
	if err := t.send(ctx, t.first(request{kind: reqAppend, data: data}), "append"); err != nil {
		return nil, err
	}

	for {
		r, err := t.recv(ctx, "append")
		if err != nil {
			return nil, err
		}

		switch r.kind {
		case replyProgress:
			if onProgress != nil {
				onProgress(r.consumed)
			}
		case replyAppend:
			return r.data, nil
		case replyError:
			t.done = true
			return nil, &Error{Serial: t.serial, Op: "append", Err: r.err}
		default:
			t.u.logger.Printf("delegate: task %d ignoring unexpected %v reply", t.serial, r.kind)
		}
	}
}

// Flush ends the task and returns the remaining output and the final checksum.
//
// The checksum is 0 if the task was submitted with checksum.None.
func (t *Task) Flush(ctx context.Context) ([]byte, uint32, error) {
	defer t.unregister()

	if err := t.send(ctx, t.first(request{kind: reqFlush}), "flush"); err != nil {
		return nil, 0, err
	}

	for {
		r, err := t.recv(ctx, "flush")
		if err != nil {
			return nil, 0, err
		}

		switch r.kind {
		case replyFlush:
			t.done = true
			return r.data, r.crc, nil
		case replyError:
			t.done = true
			return nil, 0, &Error{Serial: t.serial, Op: "flush", Err: r.err}
		default:
			t.u.logger.Printf("delegate: task %d ignoring unexpected %v reply", t.serial, r.kind)
		}
	}
}

// Close abandons the task, asking the unit to release its Transform.
//
// Close is a no-op after Flush or after the task has failed.
func (t *Task) Close() {
	if t.started && !t.done {
		t.done = true

		select {
		case t.u.inbox <- request{serial: t.serial, kind: reqAbort}:
		case <-t.u.done:
		}
	}

	t.unregister()
}

// first attaches the spec and checksum mode to the first request of the task.
func (t *Task) first(req request) request {
	req.serial = t.serial
	if !t.started {
		t.started = true
		spec := t.spec
		req.spec, req.mode = &spec, t.mode
	}

	return req
}

func (t *Task) send(ctx context.Context, req request, op string) error {
	if err := t.check(ctx, op); err != nil {
		return err
	}

	select {
	case t.u.inbox <- req:
		return nil
	case <-ctx.Done():
		return &Error{Serial: t.serial, Op: op, Err: ctx.Err()}
	case <-t.u.done:
		return &Error{Serial: t.serial, Op: op, Err: ErrTerminated}
	}
}

func (t *Task) recv(ctx context.Context, op string) (reply, error) {
	if err := t.check(ctx, op); err != nil {
		return reply{}, err
	}

	select {
	case r := <-t.replies:
		return r, nil
	case <-ctx.Done():
		return reply{}, &Error{Serial: t.serial, Op: op, Err: ctx.Err()}
	case <-t.u.done:
		return reply{}, &Error{Serial: t.serial, Op: op, Err: ErrTerminated}
	}
}

// check fails fast once the unit is terminated or ctx is done, before any message is exchanged.
func (t *Task) check(ctx context.Context, op string) error {
	select {
	case <-t.u.done:
		return &Error{Serial: t.serial, Op: op, Err: ErrTerminated}
	default:
	}

	if err := ctx.Err(); err != nil {
		return &Error{Serial: t.serial, Op: op, Err: err}
	}

	return nil
}

func (t *Task) unregister() {
	t.u.mu.Lock()
	defer t.u.mu.Unlock()

	if t.u.tasks[t.serial] == t {
		delete(t.u.tasks, t.serial)
		close(t.closed)
	}
}
