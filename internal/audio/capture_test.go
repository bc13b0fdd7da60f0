package audio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkSize(t *testing.T) {
	require.Equal(t, 640, ChunkSize(16000))
	require.Equal(t, 320, ChunkSize(8000))
	require.Equal(t, 640, ChunkSize(0))
}

func TestCaptureOnPCMChunkingAndStopFlushesPending(t *testing.T) {
	capture := newCapture(Device{ID: "mic"}, ChunkSize(16000))
	require.NoError(t, capture.Start())

	input := make([]byte, 640+111)
	for i := range input {
		input[i] = byte(i % 255)
	}

	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), capture.BytesCaptured())
	require.Equal(t, input, capture.RawPCM())

	first := <-capture.Chunks()
	require.Equal(t, input[:640], first)

	require.NoError(t, capture.Stop())

	remaining, ok := <-capture.Chunks()
	require.True(t, ok)
	require.Equal(t, input[640:], remaining)

	_, ok = <-capture.Chunks()
	require.False(t, ok)
}

func TestCaptureOnPCMIgnoresEmptyBuffer(t *testing.T) {
	capture := newCapture(Device{}, 4)
	n, err := capture.onPCM(nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, capture.BytesCaptured())
}

func TestCaptureOnPCMReturnsEOFWhenStopped(t *testing.T) {
	capture := newCapture(Device{}, 4)
	require.NoError(t, capture.Stop())

	n, err := capture.onPCM([]byte{1, 2, 3})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(0), capture.BytesCaptured())
}

func TestCaptureStartAfterStopFails(t *testing.T) {
	capture := newCapture(Device{}, 4)
	require.NoError(t, capture.Start())
	require.NoError(t, capture.Start())
	capture.Close()
	require.NoError(t, capture.Stop())
	require.ErrorIs(t, capture.Start(), ErrCaptureClosed)
}

func TestCaptureDeviceAndCloseAlias(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1", Description: "Mic"}, 4)
	require.Equal(t, "mic-1", capture.Device().ID)

	capture.Close()
	_, ok := <-capture.Chunks()
	require.False(t, ok)
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}
