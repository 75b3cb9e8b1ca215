// Package console runs LiveObjects commands from a string or an input
// stream and prints their results.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/chazu/liveobjects/object"
)

var log = commonlog.GetLogger("liveobjects.console")

// Object names the boot sequence looks for.
const (
	LobbyName     = "Lobby"
	KeyboardName  = "Keyboard_input_object"
	InspectorName = "Inspector"
)

// maxLine bounds a single interactive command.
const maxLine = 1 << 20

// Split breaks a batch string on ";" and drops empty chunks.
func Split(commands string) []string {
	var cmds []string
	for _, chunk := range strings.Split(commands, ";") {
		if chunk != "" {
			cmds = append(cmds, chunk)
		}
	}
	return cmds
}

// RunBatch runs the ";"-separated commands in order, printing non-silent
// results to out. It reports whether a command asked to exit.
func RunBatch(reg *object.Registry, commands string, out io.Writer) (bool, error) {
	return reg.RunCommands(Split(commands), func(text string) {
		fmt.Fprintln(out, text)
	})
}

// Loop reads commands from in until EOF or an exit command. The prompt is
// only written when in is a terminal. Command failures are printed and the
// loop continues; a persistence failure ends it with an error.
func Loop(reg *object.Registry, in io.Reader, out io.Writer, prompt string) error {
	interactive := isTerminal(in)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for {
		if interactive {
			fmt.Fprint(out, prompt)
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}
		reply, err := reg.RunCommand(Expand(reg, scanner.Text()))
		if err != nil {
			return err
		}
		switch reply.Outcome {
		case object.Exit:
			return nil
		case object.Printed:
			fmt.Fprintln(out, reply.Text)
		}
	}
}

// Expand rewrites a command starting with "." into a command on the
// Inspector's current object, so ".tagline()" after Inspector.co("OS")
// runs registry.lookup("OS").tagline(). Other commands are returned as is.
func Expand(reg *object.Registry, line string) string {
	cmd := strings.TrimSpace(line)
	if !strings.HasPrefix(cmd, ".") {
		return line
	}
	ins, ok := reg.Lookup(InspectorName)
	if !ok {
		return line
	}
	v, err := ins.ReadSlot("current_object")
	if err != nil {
		return line
	}
	current, ok := v.(*object.Object)
	if !ok {
		return line
	}
	return "registry.lookup(" + object.Quote(current.Name()) + ")" + cmd
}

// Boot runs the Lobby's go method, then hands control to the keyboard input
// object when one defines get_input, or to Loop otherwise.
func Boot(reg *object.Registry, in io.Reader, out io.Writer, prompt string) error {
	if lobby, ok := reg.Lookup(LobbyName); ok && lobby.HasSlot("go") {
		if err := callSlot(reg, lobby, "go"); err != nil {
			fmt.Fprintf(out, "Lobby failed: %v\n", err)
			log.Warningf("Lobby.go: %v", err)
		}
	}
	if kb, ok := reg.Lookup(KeyboardName); ok && kb.HasSlot("get_input") {
		return callSlot(reg, kb, "get_input")
	}
	return Loop(reg, in, out, prompt)
}

func callSlot(reg *object.Registry, obj *object.Object, name string) error {
	fn, err := obj.ReadSlot(name)
	if err != nil {
		return err
	}
	_, err = reg.Call(fn)
	return err
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
