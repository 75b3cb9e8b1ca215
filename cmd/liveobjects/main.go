// LiveObjects CLI - runs a persistent world of prototype objects.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/liveobjects/config"
	"github.com/chazu/liveobjects/console"
	"github.com/chazu/liveobjects/host"
	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
	"github.com/chazu/liveobjects/world"

	_ "github.com/tliron/commonlog/simple"
)

const appName = "liveobjects"

var log = commonlog.GetLogger("liveobjects.cli")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	dir       string
	imagePath string
	verbosity int
	logFile   string
	noStartup bool
}

func rootCmd() *cobra.Command {
	opts := &options{}
	var commands string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Run a live world of prototype objects",
		Long: `LiveObjects keeps a registry of prototype objects whose fields and
methods can be changed while the program runs. The whole world is saved
with the "snapshot" command to a Starlark image that is loaded again on
the next start.

Without -c, the Lobby's go method runs and an interactive loop reads one
command per line until "exit" or end of input.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("commands") {
				_, err := console.RunBatch(s.reg, commands, out)
				return err
			}
			return console.Boot(s.reg, cmd.InOrStdin(), out, s.cfg.Session.Prompt)
		},
	}

	cmd.Flags().StringVarP(&commands, "commands", "c", "", `Run ";"-separated commands and exit`)
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Directory to search upward for "+config.FileName)
	cmd.PersistentFlags().StringVar(&opts.imagePath, "image", "", "Image path (overrides config)")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log", "", "Log file (default stderr)")
	cmd.PersistentFlags().BoolVar(&opts.noStartup, "no-startup", false, "Skip startup hooks after loading")

	cmd.AddCommand(
		initCmd(opts),
		serveCmd(opts),
		inspectCmd(opts),
		backupsCmd(opts),
		restoreCmd(opts),
		exportCmd(opts),
		remoteCmd(opts),
	)
	return cmd
}

// loadConfig finds liveobjects.toml above opts.dir, applies flag overrides
// and configures logging.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.FindAndLoad(opts.dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(opts.dir)
	}
	if opts.imagePath != "" {
		cfg.Image.Path = opts.imagePath
	}
	if opts.verbosity > 0 {
		cfg.Log.Verbosity = opts.verbosity
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if opts.noStartup {
		off := false
		cfg.Session.Startup = &off
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogPath())
	return cfg, nil
}

// session is a loaded registry together with its image and configuration.
type session struct {
	cfg   *config.Config
	reg   *object.Registry
	store *image.Store
}

// newRegistry builds an empty registry wired to the configured host
// capabilities.
func newRegistry(cfg *config.Config, out io.Writer) *object.Registry {
	opts := []object.Option{object.WithOutput(out)}
	if cfg.Session.Dialogs {
		opts = append(opts,
			object.WithDisplay(host.NewDialog(host.Console{W: out})),
			object.WithToolkit(host.DetectToolkit()),
		)
	}
	return object.NewRegistry(opts...)
}

// openSession loads the configured image, or seeds a fresh world when none
// exists yet, then runs startup hooks.
func openSession(cmd *cobra.Command, opts *options) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	out := cmd.OutOrStdout()
	s := &session{
		cfg:   cfg,
		reg:   newRegistry(cfg, out),
		store: image.NewStore(cfg.ImagePath()),
	}

	err = s.store.Hydrate(s.reg)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Noticef("no image at %s; seeding a fresh world", s.store.Path)
		if err := world.Seed(s.reg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	s.store.Attach(s.reg)

	if cfg.RunStartup() {
		s.reg.StartupAll()
	}
	return s, nil
}
