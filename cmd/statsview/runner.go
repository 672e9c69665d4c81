package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/googol/statsview/internal/app"
	"github.com/googol/statsview/internal/config"
	"github.com/googol/statsview/internal/indexing"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/session"
	"github.com/googol/statsview/internal/sink"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "statsview.yaml"

// Runner holds the dependencies shared by every command action.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a Runner, filling in defaults.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		watchCommand, tailCommand, indexCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// loadConfig reads the configuration file and applies flag overrides.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		r.logger.Debug("loaded config", "path", path)
	}

	if cmd.IsSet("base-url") {
		cfg.Server.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logOutput is where a command's logger writes.
type logOutput struct {
	logger *log.Logger
	// file is the open log file in TUI mode, nil otherwise.
	file  io.Writer
	close func()
}

// newLogger builds the command logger. With toFile set, output goes to the
// configured log file, or nowhere when none is configured, so it cannot
// tear the TUI.
func (r *Runner) newLogger(cfg *config.Config, toFile bool) (*logOutput, error) {
	out := &logOutput{close: func() {}}
	var w io.Writer = os.Stderr

	if toFile {
		if cfg.Log.File == "" {
			out.logger = logging.Discard()
			return out, nil
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		out.file = f
		out.close = func() { f.Close() }
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: w,
	})
	if err != nil {
		out.close()
		return nil, err
	}
	out.logger = logger
	return out, nil
}

// Watch runs the dashboard. The session and the Bubble Tea program share a
// context; quitting the UI disconnects the session. With a log file
// configured, every event is also written there as a transcript.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := r.newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer out.close()
	logger := out.logger

	opts, err := session.OptionsFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	programSink := &app.ProgramSink{}
	var events model.Sink = programSink
	if out.file != nil {
		events = sink.Multi{programSink, sink.NewWriter(out.file)}
	}

	sess := session.New(opts, events)
	root := app.New(app.Options{
		Session:  sess,
		Indexer:  indexing.NewClient(cfg.IndexURL(), cfg.Indexing.Timeout, logger),
		Query:    cfg.Indexing.Query,
		Endpoint: opts.Transport.URL,
		Context:  ctx,
		Sink:     events,
	})
	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))
	programSink.Attach(p)

	logger.Info("starting dashboard", "endpoint", opts.Transport.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Tail prints every connection change and snapshot until interrupted.
func (r *Runner) Tail(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := r.newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer out.close()
	logger := out.logger

	opts, err := session.OptionsFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	opts.AutoConnect = true

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("tailing stats", "endpoint", opts.Transport.URL, "topic", opts.Topic)
	return session.New(opts, sink.NewWriter(r.output)).Run(ctx)
}

// Index submits the ids given as arguments and prints the outcome. Anything
// but a success exits with status 1.
func (r *Runner) Index(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := r.newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer out.close()
	logger := out.logger

	var ids []int
	for _, arg := range cmd.Args().Slice() {
		parsed, err := indexing.ParseIDs(arg)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		ids = append(ids, parsed...)
	}

	query := cfg.Indexing.Query
	if cmd.IsSet("query") {
		query = cmd.String("query")
	}

	client := indexing.NewClient(cfg.IndexURL(), cfg.Indexing.Timeout, logger)
	res := client.Submit(ctx, ids, query)
	sink.NewWriter(r.output).OnIndexResult(res)

	if res.Level() != model.LevelSuccess {
		return cli.Exit("", 1)
	}
	return nil
}
