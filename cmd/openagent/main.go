// ABOUTME: CLI entry point for openagent: loads config, starts the backend, dispatches to mode
// ABOUTME: Falls back to offline mode when the backend cannot be spawned or exits at once

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// termfix must be imported before any package that imports bubbletea.
	_ "github.com/mauromedda/openagent-go/internal/termfix"

	"golang.org/x/term"

	"github.com/mauromedda/openagent-go/internal/backend"
	"github.com/mauromedda/openagent-go/internal/config"
	pilog "github.com/mauromedda/openagent-go/internal/log"
	"github.com/mauromedda/openagent-go/internal/mode/print"
	"github.com/mauromedda/openagent-go/internal/tui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// startupWait is how long startup waits for server.ready before carrying on.
// A child that exits within it is treated as unavailable.
const startupWait = 500 * time.Millisecond

func main() {
	args, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	if args.version {
		fmt.Printf("openagent %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run loads config, starts the backend, and dispatches to the selected mode.
func run(args cliArgs) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pilog.SetLevel(pilog.ParseLevel(cfg.LogLevel))
	if args.verbose {
		pilog.SetLevel(pilog.LevelDebug)
	}

	interactive := !args.print && len(args.prompt) == 0 &&
		term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))

	// The TUI owns the terminal, so logs and the child's stderr go to a file.
	childStderr := io.Writer(os.Stderr)
	if interactive {
		logFile, err := openLogFile(cfg.LogFile)
		if err != nil {
			pilog.Warn("log file: %v", err)
			childStderr = io.Discard
			pilog.SetOutput(io.Discard)
		} else {
			defer logFile.Close()
			childStderr = logFile
			pilog.SetOutput(logFile)
		}
	}

	opts, err := cfg.BackendOptions()
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	applyOverrides(&opts, args)
	opts.Stderr = childStderr

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	var b *backend.Backend
	if !args.offline {
		b = startBackend(opts)
	}
	if b != nil {
		defer func() {
			if err := b.Stop(); err != nil {
				pilog.Debug("backend stop: %v", err)
			}
		}()
	}

	if !interactive {
		if b == nil {
			return errors.New("backend not available; print mode needs a running backend")
		}
		client := backend.NewClient(b, ttl)
		defer client.Close()
		return print.RunWithConfig(context.Background(), print.Config{
			OutputFormat: args.outputFormat,
		}, client, args.promptText())
	}

	deps := tui.Deps{Cwd: cwd, Version: version}
	if b != nil {
		client := backend.NewClient(b, ttl)
		defer client.Close()
		deps.Client = client
		deps.Exited = b.Exited()
		deps.ServerVersion = b.ServerVersion()
	}
	return tui.Run(deps)
}

// startBackend spawns the backend and waits briefly for it to come up.
// It returns nil when the process cannot be used.
func startBackend(opts backend.Options) *backend.Backend {
	b := backend.New(opts)
	if err := b.Start(); err != nil {
		pilog.Warn("backend unavailable, running offline: %v", err)
		return nil
	}

	select {
	case <-b.Ready():
		pilog.Info("backend ready (server %s)", b.ServerVersion())
	case <-b.Exited():
		pilog.Warn("backend exited during startup, running offline")
		_ = b.Stop()
		return nil
	case <-time.After(startupWait):
		pilog.Debug("no server.ready within %s; continuing", startupWait)
	}
	return b
}

// applyOverrides applies --backend and --python on top of the configured command.
func applyOverrides(opts *backend.Options, args cliArgs) {
	if fields := strings.Fields(args.backend); len(fields) > 0 {
		opts.Command = fields[0]
		opts.Args = fields[1:]
		return
	}
	if args.python != "" {
		opts.Command = args.python
	}
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = config.DefaultLogFile()
	}
	if err := config.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
