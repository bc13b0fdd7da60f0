package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
	notifyIcon  = "camera-video"
)

// urgency levels from the freedesktop notification spec.
type urgency byte

const (
	urgencyLow      urgency = 0
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

// notification is one Notify call. ReplaceID 0 opens a new bubble.
type notification struct {
	appName   string
	replaceID uint32
	summary   string
	urgency   urgency
	timeoutMS int
}

func (n notification) args() []string {
	return []string{
		"--user", "call", notifyDest, notifyPath, notifyIface,
		"Notify", "susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		notifyIcon,
		n.summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.urgency)),
		strconv.Itoa(n.timeoutMS),
	}
}

// send delivers n over the session bus and returns the server-assigned ID.
func (n notification) send(ctx context.Context) (uint32, error) {
	out, err := busctl(ctx, "desktop notify", n.args()...)
	if err != nil {
		return 0, err
	}

	// busctl prints the reply as "u <id>".
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify: unexpected reply %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

// closeNotification dismisses a bubble by ID.
func closeNotification(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "desktop dismiss",
		"--user", "call", notifyDest, notifyPath, notifyIface,
		"CloseNotification", "u", strconv.FormatUint(uint64(id), 10),
	)
	return err
}

func busctl(ctx context.Context, op string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", fmt.Errorf("%s: %w (%s)", op, err, trimmed)
	}
	return trimmed, nil
}
