// Package host provides the capabilities LiveObjects borrows from the
// machine it runs on: a way to show text to the user and, where one exists,
// a native dialog toolkit for picking from lists and asking for input.
package host

import (
	"fmt"
	"io"
	"os"
)

// Display presents text to the user.
type Display interface {
	Show(text string) error
}

// Toolkit offers simple native dialogs.
//
// Choose returns "" and a nil error when the user cancels.
type Toolkit interface {
	Available() bool
	Choose(title string, options []string) (string, error)
	Prompt(title, def string) (string, error)
}

// Console writes shown text to W, or stdout when W is nil.
type Console struct {
	W io.Writer
}

func (c Console) Show(text string) error {
	w := c.W
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// NoToolkit is the toolkit used when no native dialogs exist.
type NoToolkit struct{}

func (NoToolkit) Available() bool { return false }

func (NoToolkit) Choose(string, []string) (string, error) { return "", nil }

func (NoToolkit) Prompt(string, string) (string, error) { return "", nil }
