package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/media"
)

// ErrNotDictating is returned by Stop without a prior Start.
var ErrNotDictating = errors.New("dictation not started")

// Capturer acquires the microphone.
type Capturer interface {
	Acquire(ctx context.Context, constraints media.Constraints) (*media.Handle, error)
}

// DictationConfig controls one spoken-answer capture.
type DictationConfig struct {
	SampleRate int
	DumpAudio  bool
	Logger     *slog.Logger
}

// DictationResult summarizes one capture for logs.
type DictationResult struct {
	Device        string
	BytesCaptured int64
	Chunks        int
	Duration      time.Duration
	SendErrors    int
}

// Dictation pumps microphone PCM into an Adapter.
type Dictation struct {
	capture Capturer
	adapter *Adapter
	cfg     DictationConfig

	mu        sync.Mutex
	handle    *media.Handle
	startedAt time.Time
	sendDone  chan DictationResult
}

// NewDictation wires a microphone capturer to adapter.
func NewDictation(capture Capturer, adapter *Adapter, cfg DictationConfig) *Dictation {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Dictation{capture: capture, adapter: adapter, cfg: cfg}
}

// Active reports whether a capture is running.
func (d *Dictation) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

// Start acquires the microphone, opens recognition, and starts streaming.
func (d *Dictation) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		return ErrAlreadyListening
	}

	handle, err := d.capture.Acquire(ctx, media.Constraints{Audio: true})
	if err != nil {
		return err
	}
	if err := d.adapter.Start(ctx); err != nil {
		handle.Close()
		return err
	}
	if err := handle.Start(); err != nil {
		handle.Close()
		d.adapter.Abort()
		return err
	}

	d.handle = handle
	d.startedAt = time.Now()
	d.sendDone = make(chan DictationResult, 1)
	go d.sendLoop(handle, d.sendDone)
	return nil
}

// sendLoop drains the handle into the recognizer. Send failures are logged
// and counted; draining continues so the device can always be released.
func (d *Dictation) sendLoop(handle *media.Handle, done chan<- DictationResult) {
	result := DictationResult{Device: handle.Info().Device}
	var raw []byte
	for chunk := range handle.Chunks() {
		result.Chunks++
		result.BytesCaptured += int64(len(chunk))
		if d.cfg.DumpAudio {
			raw = append(raw, chunk...)
		}
		if err := d.adapter.SendAudio(chunk); err != nil {
			if result.SendErrors == 0 {
				d.cfg.Logger.Warn("speech send failed", "error", err.Error())
			}
			result.SendErrors++
		}
	}
	if d.cfg.DumpAudio {
		d.writeDebugAudio(raw)
	}
	done <- result
}

// Stop releases the microphone, then lets the recognizer finish so the last
// spoken words still land in the answer.
func (d *Dictation) Stop(ctx context.Context) (DictationResult, error) {
	handle, done, startedAt := d.detach()
	if handle == nil {
		return DictationResult{}, ErrNotDictating
	}

	stopErr := handle.Stop()
	result := <-done
	result.Duration = time.Since(startedAt)

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.adapter.Stop(closeCtx); err != nil {
		return result, fmt.Errorf("finish speech recognition: %w", err)
	}
	if stopErr != nil {
		return result, stopErr
	}
	return result, nil
}

// Cancel drops capture and recognition without waiting for results.
func (d *Dictation) Cancel() {
	handle, done, _ := d.detach()
	if handle != nil {
		handle.Close()
		<-done
	}
	d.adapter.Abort()
}

func (d *Dictation) detach() (*media.Handle, chan DictationResult, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handle, done, startedAt := d.handle, d.sendDone, d.startedAt
	d.handle, d.sendDone = nil, nil
	return handle, done, startedAt
}

func (d *Dictation) writeDebugAudio(rawPCM []byte) {
	if len(rawPCM) == 0 {
		return
	}
	file, err := createDebugFile("answer", "wav")
	if err != nil {
		d.cfg.Logger.Warn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, rawPCM, d.cfg.SampleRate, 1); err != nil {
		d.cfg.Logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}

// createDebugFile creates a timestamped artifact under the state debug dir.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := logging.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	debugDir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// writePCM16WAV writes little-endian PCM with a minimal RIFF header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
