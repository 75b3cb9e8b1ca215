package object

import (
	"os"
	"path/filepath"
	"runtime"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// sysModule exposes facts about the host process to scripts.
var sysModule = &starlarkstruct.Module{
	Name: "sys",
	Members: starlark.StringDict{
		"platform":     starlark.String(runtime.GOOS),
		"hostname":     starlark.NewBuiltin("sys.hostname", sysHostname),
		"pid":          starlark.NewBuiltin("sys.pid", sysPid),
		"uid":          starlark.NewBuiltin("sys.uid", sysUid),
		"program_name": starlark.NewBuiltin("sys.program_name", sysProgramName),
	},
}

func sysHostname(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	name, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	return starlark.String(name), nil
}

func sysPid(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(os.Getpid()), nil
}

// sys.uid() is -1 on platforms without numeric user ids.
func sysUid(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(os.Getuid()), nil
}

func sysProgramName(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(filepath.Base(os.Args[0])), nil
}
