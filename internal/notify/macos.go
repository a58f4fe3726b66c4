// Package notify delivers user-visible session alerts.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/world"
)

// DefaultTitle is used when no notification title is configured.
const DefaultTitle = "bankstander"

var execCommand = exec.Command

// Send shows a desktop notification: osascript on macOS, notify-send
// elsewhere.
func Send(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		cmd = execCommand("osascript", "-e", script)
	} else {
		cmd = execCommand("notify-send", "--app-name", DefaultTitle, title, message)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// Desktop shows messages as desktop notifications. Delivery failures are
// logged and otherwise ignored.
type Desktop struct {
	Title  string
	Logger *logging.Logger
}

func (d Desktop) ShowMessage(text string) {
	title := d.Title
	if title == "" {
		title = DefaultTitle
	}
	if err := Send(title, text); err != nil {
		d.Logger.Warnf("desktop notification failed: %v", err)
	}
}

// Log writes messages to a logger at WARN.
type Log struct {
	Logger *logging.Logger
}

func (l Log) ShowMessage(text string) {
	l.Logger.Warnf("notify: %s", text)
}

// Multi fans a message out to several notifiers.
type Multi []world.Notifier

func (m Multi) ShowMessage(text string) {
	for _, n := range m {
		if n != nil {
			n.ShowMessage(text)
		}
	}
}
