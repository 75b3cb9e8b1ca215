package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("liveobjects.host")

// DialogTimeout bounds how long a native dialog may stay open.
var DialogTimeout = 10 * time.Minute

// runner executes an AppleScript program and returns its trimmed stdout.
type runner func(ctx context.Context, script string) (string, error)

func osascript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), "(-128)") {
			return "", errCancelled
		}
		return "", fmt.Errorf("osascript: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

var errCancelled = errors.New("dialog cancelled")

func haveOsascript() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// appleString quotes s as an AppleScript string literal.
func appleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// ---------------------------------------------------------------------------
// Dialog display
// ---------------------------------------------------------------------------

// Dialog shows text in a native alert when osascript is present and falls
// back to Fallback otherwise, or when the alert fails.
type Dialog struct {
	Fallback Display
	run      runner
}

// NewDialog returns a Dialog that falls back to fallback.
func NewDialog(fallback Display) *Dialog {
	d := &Dialog{Fallback: fallback}
	if haveOsascript() {
		d.run = osascript
	}
	return d
}

func (d *Dialog) Show(text string) error {
	if d.run == nil {
		return d.fallback().Show(text)
	}
	ctx, cancel := context.WithTimeout(context.Background(), DialogTimeout)
	defer cancel()
	if _, err := d.run(ctx, "display dialog "+appleString(text)+` buttons {"OK"} default button "OK"`); err != nil {
		if errors.Is(err, errCancelled) {
			return nil
		}
		log.Warningf("dialog failed, using console: %v", err)
		return d.fallback().Show(text)
	}
	return nil
}

func (d *Dialog) fallback() Display {
	if d.Fallback == nil {
		return Console{}
	}
	return d.Fallback
}

// ---------------------------------------------------------------------------
// AppleScript toolkit
// ---------------------------------------------------------------------------

// AppleScript drives "choose from list" and "display dialog" through
// osascript.
type AppleScript struct {
	run runner
}

// DetectToolkit returns an AppleScript toolkit when osascript is on the
// PATH and NoToolkit otherwise.
func DetectToolkit() Toolkit {
	if haveOsascript() {
		return &AppleScript{run: osascript}
	}
	return NoToolkit{}
}

func (a *AppleScript) Available() bool { return a.run != nil }

func (a *AppleScript) Choose(title string, options []string) (string, error) {
	if a.run == nil || len(options) == 0 {
		return "", nil
	}
	items := make([]string, len(options))
	for i, o := range options {
		items[i] = appleString(o)
	}
	script := fmt.Sprintf("set r to choose from list {%s} with prompt %s\nif r is false then return \"\"\nreturn item 1 of r",
		strings.Join(items, ", "), appleString(title))

	ctx, cancel := context.WithTimeout(context.Background(), DialogTimeout)
	defer cancel()
	out, err := a.run(ctx, script)
	if errors.Is(err, errCancelled) {
		return "", nil
	}
	return out, err
}

func (a *AppleScript) Prompt(title, def string) (string, error) {
	if a.run == nil {
		return def, nil
	}
	script := fmt.Sprintf("text returned of (display dialog %s default answer %s)", appleString(title), appleString(def))

	ctx, cancel := context.WithTimeout(context.Background(), DialogTimeout)
	defer cancel()
	out, err := a.run(ctx, script)
	if errors.Is(err, errCancelled) {
		return "", nil
	}
	return out, err
}
