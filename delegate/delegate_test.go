package delegate

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
	"github.com/stretchr/testify/assert"
)

func randomBytes(t *testing.T, n int) []byte {
	data := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, data)
	assert.NoErrorf(t, err, "fill random data error: %v", err)
	return data
}

// runTask pushes data through a task in chunks and returns the concatenated output and the final CRC.
func runTask(ctx context.Context, task *Task, data []byte, chunk int) ([]byte, uint32, error) {
	defer task.Close()

	var out bytes.Buffer
	for len(data) > 0 {
		n := min(chunk, len(data))
		b, err := task.Append(ctx, bytes.Clone(data[:n]), nil)
		if err != nil {
			return nil, 0, err
		}
		out.Write(b)
		data = data[n:]
	}

	b, crc, err := task.Flush(ctx)
	if err != nil {
		return nil, 0, err
	}
	out.Write(b)
	return out.Bytes(), crc, nil
}

// runLocal is the in-process equivalent of runTask.
func runLocal(t *testing.T, spec codec.Spec, data []byte) []byte {
	tr, err := spec.New()
	assert.NoError(t, err)

	out, err := tr.Append(data)
	assert.NoError(t, err)
	rest, err := tr.Flush()
	assert.NoError(t, err)
	return append(bytes.Clone(out), rest...)
}

func TestUnit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)
	defer u.Terminate()

	data := bytes.Repeat(randomBytes(t, 1000), 300)

	compressed, crc, err := runTask(ctx, u.Submit(codec.Deflate(codec.DefaultLevel), checksum.Input), data, 64*1024)
	assert.NoError(t, err)
	assert.Equal(t, checksum.Checksum(data), crc)
	assert.Less(t, len(compressed), len(data))
	assert.Equal(t, data, runLocal(t, codec.Inflate(), compressed))

	got, crc, err := runTask(ctx, u.Submit(codec.Inflate(), checksum.Output), compressed, 1000)
	assert.NoError(t, err)
	assert.Equal(t, checksum.Checksum(data), crc)
	assert.Equal(t, data, got)

	assert.Positive(t, u.Stats().CodecTime)
}

func TestUnit_CopyWithoutChecksum(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)
	defer u.Terminate()

	data := randomBytes(t, 5000)
	got, crc, err := runTask(ctx, u.Submit(codec.NoOp(), checksum.None), data, 1024)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), crc)
	assert.Equal(t, data, got)
}

func TestUnit_Progress(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)
	defer u.Terminate()

	task := u.Submit(codec.NoOp(), checksum.Input)
	defer task.Close()

	var progress []int64
	for range 3 {
		_, err = task.Append(ctx, make([]byte, 10), func(consumed int64) {
			progress = append(progress, consumed)
		})
		assert.NoError(t, err)
	}

	assert.Equal(t, []int64{10, 20, 30}, progress)
}

func TestUnit_InterleavedTasks(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)
	defer u.Terminate()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			data := randomBytes(t, 10_000+i*1000)
			spec := codec.Deflate(i % 10)
			compressed, crc, err := runTask(ctx, u.Submit(spec, checksum.Input), data, 777)
			assert.NoError(t, err)
			assert.Equal(t, checksum.Checksum(data), crc)

			got, _, err := runTask(ctx, u.Submit(codec.Inflate(), checksum.Output), compressed, 333)
			assert.NoError(t, err)
			assert.Equal(t, data, got)
		}()
	}
	wg.Wait()
}

func TestStart_UnknownImport(t *testing.T) {
	u, err := Start(context.Background(), func(opts *Options) {
		opts.Imports = []string{codec.FamilyDeflate, "brotli"}
	})
	assert.Nil(t, u)

	var de *Error
	assert.ErrorAs(t, err, &de)
	assert.Equal(t, "import", de.Op)
}

func TestUnit_FamilyNotImported(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx, func(opts *Options) {
		opts.Imports = []string{codec.FamilyCopy}
	})
	assert.NoError(t, err)
	defer u.Terminate()

	_, _, err = runTask(ctx, u.Submit(codec.Deflate(1), checksum.Input), []byte("hello"), 10)
	var de *Error
	assert.ErrorAs(t, err, &de)

	// copy still works.
	got, _, err := runTask(ctx, u.Submit(codec.NoOp(), checksum.Input), []byte("hello"), 10)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestUnit_CodecError(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)
	defer u.Terminate()

	// 0xff starts a final block with the reserved block type.
	_, _, err = runTask(ctx, u.Submit(codec.Inflate(), checksum.Output), bytes.Repeat([]byte{0xff}, 100), 10)
	var de *Error
	assert.ErrorAs(t, err, &de)
	var ce *codec.Error
	assert.ErrorAs(t, err, &ce)

	// the failure terminates only that task.
	data := randomBytes(t, 100)
	got, _, err := runTask(ctx, u.Submit(codec.NoOp(), checksum.Input), data, 10)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestUnit_Terminate(t *testing.T) {
	ctx := context.Background()
	u, err := Start(ctx)
	assert.NoError(t, err)

	task := u.Submit(codec.Deflate(1), checksum.Input)
	_, err = task.Append(ctx, randomBytes(t, 100), nil)
	assert.NoError(t, err)

	u.Terminate()
	u.Terminate()

	_, err = task.Append(ctx, randomBytes(t, 100), nil)
	assert.True(t, errors.Is(err, ErrTerminated), "Append() after Terminate error = %v", err)

	_, _, err = task.Flush(ctx)
	assert.ErrorIs(t, err, ErrTerminated)

	_, _, err = runTask(ctx, u.Submit(codec.NoOp(), checksum.None), []byte("x"), 1)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestTask_ContextCancelled(t *testing.T) {
	u, err := Start(context.Background())
	assert.NoError(t, err)
	defer u.Terminate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := u.Submit(codec.NoOp(), checksum.None)
	defer task.Close()

	_, err = task.Append(ctx, []byte("x"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
