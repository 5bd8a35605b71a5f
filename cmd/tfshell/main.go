package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/crystal-mush/gotinytf/pkg/boltstore"
	"github.com/crystal-mush/gotinytf/pkg/config"
	"github.com/crystal-mush/gotinytf/pkg/events"
	"github.com/crystal-mush/gotinytf/pkg/logging"
	"github.com/crystal-mush/gotinytf/pkg/session"
	"github.com/crystal-mush/gotinytf/pkg/tf"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// terminal renders bus events as prefixed lines.
type terminal struct {
	mu     sync.Mutex
	out    io.Writer
	quit   atomic.Bool
	closed atomic.Bool
}

func (t *terminal) Receive(ev events.Event) {
	var line string
	switch ev.Type {
	case events.EvLine, events.EvMessage:
		line = ev.Text
	case events.EvSend:
		line = "> " + ev.Text
	case events.EvClientCommand:
		if ev.Text == "/quit" {
			t.quit.Store(true)
		}
		line = ": " + ev.Text
	case events.EvError:
		line = "! " + ev.Text
	default:
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

func (t *terminal) Closed() bool { return t.closed.Load() }

// readLines delivers lines from r until it ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		confPath    string
		statePath   string
		macroPath   string
		world       string
		metricsAddr string
		debug       bool
		verbosity   int
	)
	flagSet := pflag.NewFlagSet("tfshell", pflag.ContinueOnError)
	flagSet.StringVar(&confPath, "conf", os.Getenv("TF_CONF"), "path to YAML config file (env: TF_CONF)")
	flagSet.StringVar(&statePath, "state", "", "path to bbolt state database (env: TF_STATE_DB)")
	flagSet.StringVar(&macroPath, "macros", "", "path to YAML macro file (env: TF_MACRO_FILE)")
	flagSet.StringVar(&world, "world", "", "initial world (env: TF_DEFAULT_WORLD)")
	flagSet.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (env: TF_METRICS_ADDR)")
	flagSet.BoolVar(&debug, "debug", false, "trace trigger matching (env: TF_DEBUG)")
	flagSet.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(confPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("state") {
		cfg.StateDB = statePath
	}
	if flagSet.Changed("macros") {
		cfg.MacroFile = macroPath
		cfg.WatchMacros = true
	}
	if flagSet.Changed("world") {
		cfg.DefaultWorld = world
	}
	if flagSet.Changed("metrics") {
		cfg.MetricsAddr = metricsAddr
	}
	if flagSet.Changed("debug") {
		cfg.Debug = debug
	}
	if flagSet.Changed("verbose") {
		cfg.Verbosity = verbosity
	}

	logging.SetupLogger(cfg.Verbosity, os.Stderr)
	logging.SetDebug(cfg.Debug)
	log.Info().Msg(tf.VersionString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	term := &terminal{out: stdout}
	defer func() {
		term.closed.Store(true)
		bus.Cleanup()
	}()

	opts := []session.Option{
		session.WithWorld(cfg.DefaultWorld),
		session.WithFollower(term),
		session.WithHistory(cfg.History),
	}
	var store *boltstore.Store
	if cfg.StateDB != "" {
		store, err = boltstore.Open(cfg.StateDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, session.WithStore(store))
	}
	sess := session.New(bus, opts...)
	if err := sess.Restore(); err != nil {
		return err
	}

	if cfg.MacroFile != "" {
		if err := sess.LoadMacroFile(cfg.MacroFile); err != nil {
			log.Warn().Err(err).Msg("macro file")
		}
		if cfg.WatchMacros {
			err := config.WatchFile(ctx, cfg.MacroFile, func() {
				if err := sess.LoadMacroFile(cfg.MacroFile); err != nil {
					log.Warn().Err(err).Msg("macro file reload")
				}
			})
			if err != nil {
				log.Warn().Err(err).Msg("macro file watcher")
			}
		}
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", sess.MetricsHandler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	lines := readLines(readCtx, stdin)

loop:
	for !term.quit.Load() {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			sess.HandleInput(line)
		}
	}

	if err := sess.Save(); err != nil {
		return err
	}
	return nil
}
