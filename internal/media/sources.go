package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/apperr"
	"github.com/rbright/rehearse/internal/audio"
)

const (
	// WebMType and WebMFilename describe the camera recording payload.
	WebMType     = "video/webm"
	WebMFilename = "interview.webm"

	readBlockBytes     = 32 * 1024
	commandStopTimeout = 5 * time.Second
)

// DeviceOpener routes video constraints to the encoder command and
// audio-only constraints to a Pulse record stream.
type DeviceOpener struct {
	AudioInput    string
	AudioFallback string
	SampleRate    int

	VideoDevice  string
	EncoderArgv  []string
	OpenFile     func(name string) (*os.File, error)
	LookPath     func(file string) (string, error)
	SelectDevice func(ctx context.Context, input string, fallback string) (audio.Selection, error)
}

// Open implements Opener.
func (o DeviceOpener) Open(ctx context.Context, constraints Constraints) (Source, Info, error) {
	if constraints.Video {
		audioInput := strings.TrimSpace(o.AudioInput)
		if audioInput == "" {
			audioInput = "default"
		}
		argv := Expand(o.EncoderArgv, map[string]string{"audio": audioInput})
		source, err := OpenCommand(argv, o.VideoDevice, o.LookPath, o.OpenFile)
		if err != nil {
			return nil, Info{}, err
		}
		return source, Info{MIMEType: WebMType, Filename: WebMFilename, Device: o.VideoDevice}, nil
	}

	selectDevice := o.SelectDevice
	if selectDevice == nil {
		selectDevice = audio.SelectDevice
	}
	selection, err := selectDevice(ctx, o.AudioInput, o.AudioFallback)
	if err != nil {
		return nil, Info{}, apperr.Permission(PermissionMessage, err)
	}
	capture, err := audio.OpenCapture(selection.Device, o.SampleRate)
	if err != nil {
		return nil, Info{}, apperr.Permission(PermissionMessage, err)
	}

	rate := o.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return capture, Info{
		MIMEType: fmt.Sprintf("audio/L16;rate=%d;channels=1", rate),
		Filename: "answer.pcm",
		Device:   selection.Device.ID,
	}, nil
}

// CommandSource captures an encoded stream from an external encoder's stdout.
type CommandSource struct {
	argv []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	chunks  chan []byte
	readErr error
	read    chan struct{}
	stopped bool
}

// OpenCommand verifies the encoder binary and the camera node without
// starting capture. {device} in argv is replaced with device.
func OpenCommand(argv []string, device string, lookPath func(string) (string, error), openFile func(string) (*os.File, error)) (*CommandSource, error) {
	if len(argv) == 0 {
		return nil, errors.New("video.encoder_cmd is empty")
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if openFile == nil {
		openFile = os.Open
	}

	if _, err := lookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("encoder %q: %w", argv[0], err)
	}
	if device != "" {
		file, err := openFile(device)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				return nil, apperr.Permission(PermissionMessage, err)
			}
			return nil, fmt.Errorf("open camera %q: %w", device, err)
		}
		_ = file.Close()
	}

	return &CommandSource{
		argv:   Expand(argv, map[string]string{"device": device}),
		chunks: make(chan []byte, 64),
		read:   make(chan struct{}),
	}, nil
}

// Expand replaces {name} placeholders in argv. Unknown names are left as is.
func Expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		for name, value := range vars {
			arg = strings.ReplaceAll(arg, "{"+name+"}", value)
		}
		out[i] = arg
	}
	return out
}

// Argv returns the expanded encoder command.
func (s *CommandSource) Argv() []string {
	return append([]string(nil), s.argv...)
}

// Start launches the encoder.
func (s *CommandSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("encoder already stopped")
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return apperr.Permission(PermissionMessage, err)
	}
	s.cmd = cmd

	go s.readLoop(stdout)
	return nil
}

func (s *CommandSource) readLoop(stdout io.Reader) {
	defer close(s.read)
	for {
		buf := make([]byte, readBlockBytes)
		n, err := stdout.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// Chunks returns encoded stdout blocks in order.
func (s *CommandSource) Chunks() <-chan []byte {
	return s.chunks
}

// Stop interrupts the encoder so it can finalize the container, drains
// stdout, and waits for exit. The encoder is killed after a timeout.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil {
		close(s.chunks)
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-s.read:
	case <-time.After(commandStopTimeout):
		_ = cmd.Process.Kill()
		<-s.read
	}
	// Encoders commonly exit non-zero after an interrupt; the drained output is what matters.
	_ = cmd.Wait()
	close(s.chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return fmt.Errorf("read encoder output: %w", s.readErr)
	}
	return nil
}
