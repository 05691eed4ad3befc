package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tsbridge/internal/buffersync"
	"github.com/dshills/tsbridge/internal/config"
	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/eventloop"
	"github.com/dshills/tsbridge/internal/logging"
	"github.com/dshills/tsbridge/internal/tsserver"
)

type serveOptions struct {
	configPath string
	logLevel   string
	tsserver   string
	workspace  string
	color      string
}

func newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Read editor events from stdin and print diagnostics to stdout",
		Long: `Run a tsserver and keep it in sync with the editor events read from stdin, one
JSON object per line. Diagnostics and command results are written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.configPath, err = cmd.Flags().GetString("config"); err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			if opts.logLevel, err = cmd.Flags().GetString("log-level"); err != nil {
				return fmt.Errorf("failed to get log-level flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.tsserver, "tsserver", "", "path to tsserver (overrides tsserver.path)")
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "workspace root (defaults to workspace.root, then the working directory)")
	cmd.Flags().StringVar(&opts.color, "color", colorAuto, "colorize output (auto|on|off)")
	return cmd
}

// loadStore loads the configuration. Without a path the store is not backed
// by a file and never reloads.
func loadStore(path string) (*config.Store, error) {
	if path == "" {
		return config.NewStoreWith(config.Default()), nil
	}
	return config.NewStore(path)
}

func workspaceRoot(flag string, cfg *config.Config) (string, error) {
	root := flag
	if root == "" {
		root = cfg.Workspace.Root
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Abs(root)
}

func serve(ctx context.Context, opts serveOptions, in io.Reader, out io.Writer) error {
	store, err := loadStore(opts.configPath)
	if err != nil {
		return err
	}
	cfg := store.Current()
	if opts.tsserver != "" {
		cfg.TSServer.Path = opts.tsserver
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logging.Configure(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.NewLogger("serve")

	root, err := workspaceRoot(opts.workspace, cfg)
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}

	b := newBridge(cfg, store, root, newPrinter(out, root, opts.color))
	log.WithFields(logrus.Fields{
		"workspace": root,
		"tsserver":  cfg.TSServer.Path,
		"mode":      cfg.TSServer.Mode(),
	}).Info("Starting bridge")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	ready := make(chan struct{})
	supervisor := b.supervisor(cfg, ready)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-supervisor.Events():
				b.printer.serverEvent(ev)
			}
		}
	})

	if store.Path() != "" {
		watcher, err := config.NewWatcher(store, config.WithLogger(logging.NewLogger("config")))
		if err != nil {
			log.WithError(err).Warn("Configuration changes will not be picked up")
		} else {
			g.Go(func() error {
				return watcher.Run(gctx)
			})
		}
	}

	g.Go(func() error {
		select {
		case <-ready:
		case <-gctx.Done():
			return nil
		}

		// The decoder blocks in Read and cannot observe cancellation.
		done := make(chan error, 1)
		go func() {
			done <- b.readEvents(editor.NewDecoder(in))
		}()

		select {
		case err := <-done:
			cancel()
			return err
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	b.dispose()
	return err
}

// bridge connects the editor event stream, the synchronization core, and
// tsserver. Everything except the printer is used from the loop.
type bridge struct {
	loop      *eventloop.Loop
	client    *tsserver.Client
	workspace *editor.Workspace
	support   *buffersync.Support
	printer   *printer
	log       *logrus.Entry
}

func newBridge(cfg *config.Config, store *config.Store, root string, p *printer) *bridge {
	rootURI := editor.FileURI(root)

	client := tsserver.NewClient(tsserver.ClientConfig{
		Server: tsserver.ServerConfig{
			Path:     cfg.TSServer.Path,
			NodePath: cfg.TSServer.NodePath,
			Args:     cfg.TSServer.Args,
			Mode:     cfg.TSServer.Mode(),
			Locale:   cfg.TSServer.Locale,
			WorkDir:  root,
		},
		WorkspaceRoots:           []editor.URI{rootURI},
		Plugins:                  cfg.TSPlugins(),
		EnableProjectDiagnostics: cfg.TSServer.EnableProjectDiagnostics,
		RequestTimeout:           cfg.TSServer.Timeout(),
	}, logging.NewLogger("tsserver"))

	loop := eventloop.New(eventloop.WithLogger(logging.NewLogger("eventloop")))
	ws := editor.NewWorkspace()

	support := buffersync.New(client, loop,
		buffersync.WithWorkspace(ws),
		buffersync.WithSettings(store),
		buffersync.WithCaseInsensitiveFileSystem(cfg.CaseInsensitive(root)),
		buffersync.WithLogger(logging.NewLogger("buffersync")),
	)

	b := &bridge{
		loop:      loop,
		client:    client,
		workspace: ws,
		support:   support,
		printer:   p,
		log:       logging.NewLogger("bridge"),
	}

	// Every Execute is issued from the loop, so the flush runs there too.
	client.SetBeforeCommand(support.BeforeCommand)

	client.OnDiagnostics(func(ev tsserver.DiagnosticEvent) {
		loop.Post(func() {
			b.printer.diagnostics(support.ToResource(ev.File), ev)
		})
	})

	store.OnDidReload(func(cfg *config.Config) {
		client.SetProjectDiagnosticsEnabled(cfg.TSServer.EnableProjectDiagnostics)
	})

	loop.Post(support.Listen)
	return b
}

// supervisor keeps tsserver running. ready is closed after the first
// successful start; every later start replays the open buffers.
func (b *bridge) supervisor(cfg *config.Config, ready chan struct{}) *tsserver.Supervisor {
	sc := tsserver.DefaultSupervisorConfig()
	sc.MaxRestarts = cfg.TSServer.MaxRestarts

	proc := &notifyingProcess{Client: b.client, started: func() {
		close(ready)
	}}
	return tsserver.NewSupervisor(proc, sc, b.restarted, logging.NewLogger("supervisor"))
}

// restarted replays the open buffers into a restarted server. The client
// refuses commands until then, so edits made while the server was down are
// dropped by the reset instead of reaching a process that never opened them.
func (b *bridge) restarted() {
	b.loop.Post(func() {
		b.client.Resume()
		b.support.Reinitialize()
		b.support.RequestAllDiagnostics()
	})
}

// notifyingProcess reports the first successful start.
type notifyingProcess struct {
	*tsserver.Client
	once    sync.Once
	started func()
}

func (p *notifyingProcess) Start(ctx context.Context) error {
	if err := p.Client.Start(ctx); err != nil {
		return err
	}
	p.once.Do(p.started)
	return nil
}

// readEvents posts every decoded event to the loop until the input ends.
// Malformed lines are logged and skipped.
func (b *bridge) readEvents(dec *editor.Decoder) error {
	for {
		ev, err := dec.Next()
		switch {
		case err == nil:
			b.loop.Post(func() { b.handle(ev) })
		case errors.Is(err, io.EOF):
			b.log.Info("Editor input closed")
			return nil
		case errors.Is(err, editor.ErrMalformedEvent):
			b.log.WithError(err).Warn("Skipping editor event")
		default:
			return fmt.Errorf("read editor events: %w", err)
		}
	}
}

// handle applies one editor event. It runs on the loop.
func (b *bridge) handle(ev editor.Event) {
	switch ev.Type {
	case editor.EventGetErr:
		if len(ev.URIs) == 0 {
			b.support.RequestAllDiagnostics()
			return
		}
		b.support.GetErr(ev.URIs)
	case editor.EventCommand:
		b.runCommand(ev)
	default:
		if err := b.workspace.Apply(ev); err != nil {
			b.log.WithError(err).WithField("type", ev.Type).Warn("Editor event rejected")
		}
	}
}

// runCommand sends an editor-supplied command with diagnostics paused so it
// does not queue behind a geterr.
func (b *bridge) runCommand(ev editor.Event) {
	var args any
	if len(ev.Arguments) > 0 {
		args = ev.Arguments
	}

	b.support.InterruptGetErr(func() {
		b.client.Execute(ev.Command, args, tsserver.ExecOptions{}, func(resp *tsserver.Response, err error) {
			b.printer.commandResult(ev.Command, resp, err)
		})
	})
}

func (b *bridge) dispose() {
	b.support.Dispose()
	b.client.Shutdown()
}
