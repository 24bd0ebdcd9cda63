package utils

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}
	webpHeader = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "png", DetectFormat(pngHeader))
	assert.Equal(t, "jpeg", DetectFormat(jpegHeader))
	assert.Equal(t, "webp", DetectFormat(webpHeader))
	assert.Equal(t, "unknown", DetectFormat([]byte("plain text here")))
	assert.Equal(t, "unknown", DetectFormat(nil))
	assert.Equal(t, "unknown", DetectFormat([]byte{0x01}))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor(pngHeader))
	assert.Equal(t, "image/jpeg", ContentTypeFor(jpegHeader))
	assert.Equal(t, "image/webp", ContentTypeFor(webpHeader))
	assert.Equal(t, "application/octet-stream", ContentTypeFor([]byte("???")))
}

func TestDrainReader(t *testing.T) {
	data := strings.Repeat("abc", 10_000)
	buf, err := DrainReader(context.Background(), strings.NewReader(data), 1024)
	require.NoError(t, err)
	assert.Equal(t, data, buf.String())
	ReleaseBuffer(buf)
}

func TestDrainReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DrainReader(ctx, strings.NewReader("data"), 4)
	assert.Error(t, err)
}

func TestLimitedReaderWithinLimit(t *testing.T) {
	lr := &LimitedReader{R: strings.NewReader("hello"), Max: 100}
	out, err := io.ReadAll(lr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestLimitedReaderExceedsLimit(t *testing.T) {
	lr := &LimitedReader{R: bytes.NewReader(make([]byte, 64)), Max: 16}
	_, err := io.ReadAll(lr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCloneBytesIndependent(t *testing.T) {
	src := []byte{1, 2, 3}
	out := CloneBytes(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, out)
}

func TestBufferPoolReset(t *testing.T) {
	b := AcquireBuffer()
	b.WriteString("leftover")
	ReleaseBuffer(b)

	b2 := AcquireBuffer()
	assert.Zero(t, b2.Len(), "pooled buffers come back reset")
	ReleaseBuffer(b2)
}
