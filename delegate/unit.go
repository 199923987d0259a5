package delegate

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
)

type requestKind uint8

const (
	reqImport requestKind = iota
	reqAppend
	reqFlush
	reqAbort
)

// request is a message to the unit.
//
// Only the first request of a task carries spec and mode.
type request struct {
	serial  uint64
	kind    requestKind
	spec    *codec.Spec
	mode    checksum.Mode
	imports []string
	data    []byte
}

type replyKind uint8

const (
	replyImports replyKind = iota
	replyProgress
	replyAppend
	replyFlush
	replyError
)

func (k replyKind) String() string {
	switch k {
	case replyImports:
		return "imports"
	case replyProgress:
		return "progress"
	case replyAppend:
		return "append"
	case replyFlush:
		return "flush"
	case replyError:
		return "error"
	default:
		return fmt.Sprintf("replyKind(%d)", uint8(k))
	}
}

// reply is a message from the unit, always tagged with the serial number of its task.
type reply struct {
	serial   uint64
	kind     replyKind
	data     []byte
	consumed int64
	crc      uint32
	err      error
}

// job is the unit-side state of a task.
type job struct {
	t        codec.Transform
	crc      *checksum.CRC32
	mode     checksum.Mode
	consumed int64
}

var errNotImported = errors.New("imports not complete")

// run is the unit's message loop. All Transforms are created, used, and closed on this goroutine.
func (u *Unit) run() {
	var (
		jobs     = make(map[uint64]*job)
		imported = make(map[string]bool)
		ready    bool
	)

	defer func() {
		for _, j := range jobs {
			_ = j.t.Close()
		}
	}()

	for {
		var req request
		select {
		case <-u.done:
			u.logger.Printf("delegate: terminated with %d task(s) in flight", len(jobs))
			return
		case req = <-u.inbox:
		}

		if req.kind == reqImport {
			if err := importFamilies(req.imports, imported); err != nil {
				u.reply(reply{serial: req.serial, kind: replyError, err: err})
				continue
			}

			ready = true
			u.reply(reply{serial: req.serial, kind: replyImports})
			continue
		}

		if req.kind == reqAbort {
			if j, ok := jobs[req.serial]; ok {
				_ = j.t.Close()
				delete(jobs, req.serial)
			}
			continue
		}

		if !ready {
			u.reply(reply{serial: req.serial, kind: replyError, err: errNotImported})
			continue
		}

		j, ok := jobs[req.serial]
		if !ok {
			var err error
			if j, err = newJob(req, imported); err != nil {
				u.reply(reply{serial: req.serial, kind: replyError, err: err})
				continue
			}

			jobs[req.serial] = j
		}

		switch req.kind {
		case reqAppend:
			out, err := u.append(j, req.data)
			if err != nil {
				_ = j.t.Close()
				delete(jobs, req.serial)
				u.reply(reply{serial: req.serial, kind: replyError, err: err})
				continue
			}

			u.reply(reply{serial: req.serial, kind: replyProgress, consumed: j.consumed})
			u.reply(reply{serial: req.serial, kind: replyAppend, data: out})

		case reqFlush:
			delete(jobs, req.serial)

			out, err := u.flush(j)
			if err != nil {
				_ = j.t.Close()
				u.reply(reply{serial: req.serial, kind: replyError, err: err})
				continue
			}

			u.reply(reply{serial: req.serial, kind: replyFlush, data: out, crc: j.checksum()})
		}
	}
}

// reply sends r to the dispatcher unless the unit has been terminated.
func (u *Unit) reply(r reply) {
	select {
	case u.replies <- r:
	case <-u.done:
	}
}

func (u *Unit) append(j *job, data []byte) ([]byte, error) {
	start := time.Now()
	out, err := j.t.Append(data)
	u.codecTime.Add(int64(time.Since(start)))
	if err != nil {
		return nil, err
	}

	j.consumed += int64(len(data))
	u.checksum(j, data, out)
	return out, nil
}

func (u *Unit) flush(j *job) ([]byte, error) {
	start := time.Now()
	out, err := j.t.Flush()
	u.codecTime.Add(int64(time.Since(start)))
	if err != nil {
		return nil, err
	}

	u.checksum(j, nil, out)
	return out, nil
}

func (u *Unit) checksum(j *job, in, out []byte) {
	if j.crc == nil {
		return
	}

	start := time.Now()
	switch j.mode {
	case checksum.Input:
		j.crc.Append(in)
	case checksum.Output:
		j.crc.Append(out)
	}
	u.crcTime.Add(int64(time.Since(start)))
}

func (j *job) checksum() uint32 {
	if j.crc == nil {
		return 0
	}

	return j.crc.Get()
}

func newJob(req request, imported map[string]bool) (*job, error) {
	if req.spec == nil {
		return nil, fmt.Errorf("unknown task %d", req.serial)
	}

	if family := req.spec.Family(); !imported[family] {
		return nil, fmt.Errorf("codec family %q not imported", family)
	}

	t, err := req.spec.New()
	if err != nil {
		return nil, err
	}

	j := &job{t: t, mode: req.mode}
	if req.mode != checksum.None {
		j.crc = checksum.New()
	}

	return j, nil
}

func importFamilies(names []string, imported map[string]bool) error {
	for _, name := range names {
		if !slices.Contains(codec.Families, name) {
			return fmt.Errorf("unknown codec family %q", name)
		}

		imported[name] = true
	}

	return nil
}
