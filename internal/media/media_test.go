package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	chunks   chan []byte
	starts   atomic.Int32
	stops    atomic.Int32
	stopOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan []byte, 16)}
}

func (f *fakeSource) Start() error          { f.starts.Add(1); return nil }
func (f *fakeSource) Chunks() <-chan []byte { return f.chunks }
func (f *fakeSource) Stop() error {
	f.stops.Add(1)
	f.stopOnce.Do(func() { close(f.chunks) })
	return nil
}

type fakeOpener struct {
	source *fakeSource
	err    error
	opens  atomic.Int32
}

func (f *fakeOpener) Open(context.Context, Constraints) (Source, Info, error) {
	f.opens.Add(1)
	if f.err != nil {
		return nil, Info{}, f.err
	}
	return f.source, Info{MIMEType: WebMType, Filename: WebMFilename}, nil
}

func drain(ch <-chan []byte) [][]byte {
	var out [][]byte
	for chunk := range ch {
		out = append(out, chunk)
	}
	return out
}

func TestHandleLifecycleDeliversNonEmptyChunksInOrder(t *testing.T) {
	source := newFakeSource()
	controller := NewController(&fakeOpener{source: source}, nil)

	handle, err := controller.Acquire(context.Background(), Constraints{Video: true, Audio: true})
	require.NoError(t, err)
	require.Equal(t, fsm.CaptureAcquiring, handle.State())
	require.Equal(t, WebMFilename, handle.Info().Filename)

	require.NoError(t, handle.Start())
	require.Equal(t, fsm.CaptureRecording, handle.State())

	source.chunks <- []byte("a")
	source.chunks <- nil
	source.chunks <- []byte("b")

	done := make(chan [][]byte)
	go func() { done <- drain(handle.Chunks()) }()

	require.NoError(t, handle.Stop())
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, <-done)
	require.Equal(t, fsm.CaptureStopped, handle.State())
	require.Equal(t, int32(1), source.stops.Load())
}

func TestHandleStopIsIdempotent(t *testing.T) {
	source := newFakeSource()
	controller := NewController(&fakeOpener{source: source}, nil)

	handle, err := controller.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)

	require.NoError(t, handle.Stop())
	require.NoError(t, handle.Stop())
	handle.Close()
	require.Equal(t, int32(1), source.stops.Load())
	require.Equal(t, int32(0), source.starts.Load())
}

func TestHandleStartAfterStopFails(t *testing.T) {
	controller := NewController(&fakeOpener{source: newFakeSource()}, nil)
	handle, err := controller.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)
	require.NoError(t, handle.Stop())

	err = handle.Start()
	require.Error(t, err)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
}

func TestAcquireWhileLiveReturnsBusy(t *testing.T) {
	opener := &fakeOpener{source: newFakeSource()}
	controller := NewController(opener, nil)

	handle, err := controller.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)

	_, err = controller.Acquire(context.Background(), Constraints{Audio: true})
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, int32(1), opener.opens.Load())

	require.NoError(t, handle.Stop())
	opener.source = newFakeSource()
	second, err := controller.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)
	second.Close()
}

func TestAcquireFailureIsPermissionErrorAndFreesController(t *testing.T) {
	opener := &fakeOpener{err: errors.New("device busy")}
	controller := NewController(opener, nil)

	_, err := controller.Acquire(context.Background(), Constraints{Video: true, Audio: true})
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindPermission))
	require.Equal(t, PermissionMessage, apperr.Message(err))

	opener.err = nil
	opener.source = newFakeSource()
	handle, err := controller.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)
	handle.Close()
}

func TestAcquireRejectsEmptyConstraints(t *testing.T) {
	controller := NewController(&fakeOpener{source: newFakeSource()}, nil)
	_, err := controller.Acquire(context.Background(), Constraints{})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestContextCancelStopsHandle(t *testing.T) {
	source := newFakeSource()
	controller := NewController(&fakeOpener{source: source}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := controller.Acquire(ctx, Constraints{Audio: true})
	require.NoError(t, err)
	require.NoError(t, handle.Start())

	go drain(handle.Chunks())
	cancel()

	require.Eventually(t, func() bool {
		return handle.State() == fsm.CaptureStopped
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), source.stops.Load())
}
