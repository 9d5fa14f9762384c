package kfmt

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	const expStr = "[pmm] frame allocator ready"

	t.Run("read/write", func(t *testing.T) {
		var rb ringBuffer
		n, err := rb.Write([]byte(expStr))
		require.NoError(t, err)
		require.Equal(t, len(expStr), n)
		require.Equal(t, len(expStr), rb.Len())

		assert.Equal(t, expStr, readByteByByte(&rb))
		assert.Zero(t, rb.Len())
	})

	t.Run("overflow drops oldest bytes", func(t *testing.T) {
		var rb ringBuffer
		rb.wIndex = ringBufferSize - 1

		_, err := rb.Write([]byte{'!'})
		require.NoError(t, err)
		assert.Equal(t, 1, rb.rIndex)
		assert.Equal(t, 1, rb.dropped)
	})

	t.Run("wrapped contents", func(t *testing.T) {
		var rb ringBuffer
		rb.wIndex = ringBufferSize - 2
		rb.rIndex = ringBufferSize - 2

		_, err := rb.Write([]byte(expStr))
		require.NoError(t, err)
		assert.Equal(t, len(expStr), rb.Len())
		assert.Equal(t, expStr, readByteByByte(&rb))
	})

	t.Run("with io.Copy", func(t *testing.T) {
		var rb ringBuffer
		rb.wIndex = ringBufferSize - 2
		rb.rIndex = ringBufferSize - 2

		_, err := rb.Write([]byte(expStr))
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = io.Copy(&buf, &rb)
		require.NoError(t, err)
		assert.Equal(t, expStr, buf.String())
	})
}

func readByteByByte(r io.Reader) string {
	var (
		buf bytes.Buffer
		b   = make([]byte, 1)
	)
	for {
		if _, err := r.Read(b); err == io.EOF {
			break
		}
		buf.Write(b)
	}
	return buf.String()
}
