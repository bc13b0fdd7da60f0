// Package speaker voices interviewer turns through an external TTS command.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/logging"
)

const maxPlayback = 2 * time.Minute

// Command runs argv with the utterance on stdin. A new Speak cancels the
// playback in progress, matching one synthesizer voice per session.
type Command struct {
	argv   []string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a command voice.
func New(argv []string, logger *slog.Logger) *Command {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Command{argv: append([]string(nil), argv...), logger: logger}
}

// Speak starts playback of text in the background.
func (c *Command) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || len(c.argv) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxPlayback)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		err := runCommandWithInput(ctx, c.argv, text)
		if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
			c.logger.Warn("speech synthesis failed", "command", c.argv[0], "error", err.Error())
		}
	}()
}

// Cancel stops the current playback.
func (c *Command) Cancel() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

// Close cancels playback and waits for the command to exit.
func (c *Command) Close() {
	c.Cancel()
	c.wg.Wait()
}

// Wait blocks until every started playback has finished.
func (c *Command) Wait() {
	c.wg.Wait()
}

// Silent is the voice used when speech output is disabled.
type Silent struct{}

func (Silent) Speak(string) {}

// runCommandWithInput executes argv and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
