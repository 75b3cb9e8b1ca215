package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chazu/liveobjects/config"
	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
	"github.com/chazu/liveobjects/server"
	"github.com/chazu/liveobjects/world"
)

func initCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a fresh world image and a default " + config.FileName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(filepath.Join(cfg.Dir, config.FileName)); errors.Is(err, os.ErrNotExist) {
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", filepath.Join(cfg.Dir, config.FileName))
			}

			store := image.NewStore(cfg.ImagePath())
			if _, err := os.Stat(store.Path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", store.Path)
			}
			reg := newRegistry(cfg, out)
			if err := world.Seed(reg); err != nil {
				return err
			}
			res, err := store.Snapshot(reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s (generation %d)\n", res.Path, res.Generation)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing image (the old one is backed up)")
	return cmd
}

func serveCmd(opts *options) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the world over Connect (HTTP/JSON) with Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = s.cfg.Server.Addr
			}
			srvOpts := []server.ServerOption{server.WithStore(s.store)}
			if watch || s.cfg.Server.Watch {
				srvOpts = append(srvOpts, server.WithWatch(s.cfg.RunStartup()))
			}

			srv := server.New(s.reg, srvOpts...)
			defer srv.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the world when the image changes on disk")
	return cmd
}

func inspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [name]",
		Short: "List objects, or describe one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, obj := range s.reg.Objects() {
					fmt.Fprintf(out, "%d\t%s\n", obj.Serial(), obj.Name())
				}
				return nil
			}
			obj, ok := s.reg.Lookup(args[0])
			if !ok {
				return fmt.Errorf("object %q: %w", args[0], object.ErrNotFound)
			}
			doc, err := object.Inspect(obj).YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(out, doc)
			return nil
		},
	}
}

func backupsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List numbered backups of the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			backups, err := image.NewStore(cfg.ImagePath()).Backups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range backups {
				info, err := os.Stat(b.Path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d\t%s\t%s\n", b.N, info.ModTime().Format("2006-01-02 15:04:05"), b.Path)
			}
			return nil
		},
	}
}

func restoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <n>",
		Short: "Replace the image with backup n (the current image is backed up first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("backup number %q: %w", args[0], err)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store := image.NewStore(cfg.ImagePath())
			saved, err := store.Restore(n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Restored %s from backup %d\n", store.Path, n)
			if saved != "" {
				fmt.Fprintf(out, "Previous image saved to %s\n", saved)
			}
			return nil
		},
	}
}

func exportCmd(opts *options) *cobra.Command {
	var output string
	var digest bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the object graph as canonical CBOR, or print its digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if digest {
				sum, err := image.Digest(s.reg)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sum)
				return nil
			}
			data, err := image.ExportCBOR(s.reg)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = out.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&digest, "digest", false, "Print the SHA-256 digest of the graph instead")
	return cmd
}

func remoteCmd(opts *options) *cobra.Command {
	var commands string
	var list string
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "remote <url>",
		Short: "Send commands to a running liveobjects serve",
		Long: `Send commands to a server started with "liveobjects serve".

With -c the batch runs remotely in one request. Otherwise commands are
read from standard input one per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(opts); err != nil {
				return err
			}
			client := server.NewClient(http.DefaultClient, args[0])
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case snapshot:
				res, err := client.Snapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Snapshot saved to %s (generation %d)\n", res.Path, res.Generation)
				return nil
			case cmd.Flags().Changed("list"):
				objs, err := client.ListObjects(ctx, list)
				if err != nil {
					return err
				}
				for _, o := range objs {
					fmt.Fprintf(out, "%d\t%s\n", o.Serial, o.Name)
				}
				return nil
			case cmd.Flags().Changed("commands"):
				res, err := client.RunBatch(ctx, commands)
				if err != nil {
					return err
				}
				fmt.Fprint(out, res.Output)
				for _, text := range res.Printed {
					fmt.Fprintln(out, text)
				}
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == object.ExitCommand {
					return nil
				}
				if line == "" {
					continue
				}
				reply, err := client.RunCommand(ctx, line)
				if err != nil {
					return err
				}
				fmt.Fprint(out, reply.Output)
				if reply.Outcome == object.Printed.String() {
					fmt.Fprintln(out, reply.Text)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&commands, "commands", "c", "", `Run ";"-separated commands remotely`)
	cmd.Flags().StringVar(&list, "list", "*", "List remote objects matching a glob")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Ask the server to snapshot its image")
	return cmd
}
