package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/InsulaLabs/isl/config"
	"github.com/InsulaLabs/isl/db/journal"
	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/pkg/sys"
	"github.com/InsulaLabs/isl/runtime"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"
)

var (
	configPath   string
	generatePath string
	logLevel     string
	startRepl    bool
	listExits    bool
	execTimeout  time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the runtime configuration file")
	flag.StringVar(&generatePath, "generate-config", "", "Write the default configuration to this path and exit")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides the config file.")
	flag.BoolVar(&startRepl, "repl", false, "Start the interactive REPL after running any files")
	flag.BoolVar(&listExits, "exits", false, "List recorded process exits before quitting")
	flag.DurationVar(&execTimeout, "timeout", 0, "Give up on a file after this long (0 waits forever)")
}

func main() {
	flag.Parse()

	if generatePath != "" {
		if _, err := config.GenerateConfig(generatePath); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
			os.Exit(1)
		}
		fmt.Printf("wrote default configuration to %s\n", color.CyanString(generatePath))
		return
	}

	cfg, err := loadRuntimeConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed to load config %s: %v\n", color.RedString("Error:"), configPath, err)
		os.Exit(1)
	}

	files := flag.Args()
	interactive := startRepl || len(files) == 0

	// the REPL owns the terminal, keep the log quiet unless asked for
	if logLevel == "" && interactive {
		logLevel = "warn"
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := io.Writer(os.Stdout)
	var replOut *programWriter
	if interactive {
		replOut = &programWriter{}
		out = replOut
	}

	exits, err := openJournal(cfg, logger)
	if err != nil {
		logger.Error("failed to open exit journal", "error", err)
		os.Exit(1)
	}

	sched := runtime.New(runtime.Config{
		Logger:     logger,
		Table:      sys.Default(out),
		Workers:    cfg.Workers,
		Reductions: cfg.Reductions,
		MaxFrames:  cfg.MaxFrames,
		Journal:    exits,
		Retention:  cfg.Exits.Retention,
	})
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	failed := false
	for _, file := range files {
		if err := runFile(ctx, sched, file); err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.RedString("Error:"), file, describeError(err))
		}
	}

	if interactive {
		if err := runRepl(ctx, sched, replOut); err != nil {
			logger.Error("repl failed", "error", err)
			failed = true
		}
	}

	if listExits {
		printExits(sched.Journal())
	}

	sched.Stop()
	if exits != nil {
		if err := exits.Close(); err != nil {
			logger.Error("failed to close exit journal", "error", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func loadRuntimeConfig(path string) (*config.Runtime, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func newLogger(levelName string) *slog.Logger {
	level, ok := config.ParseLevel(levelName)
	if !ok {
		fmt.Fprintf(os.Stderr, "%s unknown log level %q, using info\n", color.HiYellowString("Warning:"), levelName)
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "isl",
	})
	return slog.New(handler)
}

// openJournal returns nil when no journal directory is configured; the
// scheduler then keeps exits in memory.
func openJournal(cfg *config.Runtime, logger *slog.Logger) (journal.Journal, error) {
	if cfg.Exits.JournalDir == "" {
		return nil, nil
	}
	return journal.New(journal.Config{
		Logger:         logger,
		BadgerLogLevel: slog.LevelWarn,
		Directory:      cfg.Exits.JournalDir,
		Retention:      cfg.Exits.Retention,
		Capacity:       cfg.Exits.Capacity,
	})
}

func runFile(ctx context.Context, sched *runtime.Scheduler, file string) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	exprs, err := slp.Parse(string(src))
	if err != nil {
		return err
	}

	if execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, execTimeout)
		defer cancel()
	}

	result, _, err := sched.Exec(ctx, exprs, slp.NewEnv())
	if err != nil {
		return err
	}
	fmt.Println(color.GreenString(result.Encode()))
	return nil
}

// describeError renders host and language errors for a terminal.
func describeError(err error) string {
	var (
		lerr  *slp.Error
		exit  *runtime.ExitError
		parse *slp.ParseError
	)
	switch {
	case errors.As(err, &lerr):
		return fmt.Sprintf("%s %s", lerr.Kind, lerr.Payload.Encode())
	case errors.As(err, &exit):
		return fmt.Sprintf("terminated %s", exit.Reason.Encode())
	case errors.As(err, &parse):
		return parse.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return err.Error()
}

func printExits(j journal.Journal) {
	header := color.New(color.FgYellow, color.Bold)
	cyan := color.New(color.FgCyan)

	header.Println("Process exits")
	count := 0
	err := j.Iterate(func(rec journal.Record) bool {
		count++
		fmt.Printf("  %s  %s  %s\n",
			cyan.Sprint(rec.Pid),
			rec.ExitedAt.Format(time.RFC3339),
			rec.Reason.Encode())
		return true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		return
	}
	if count == 0 {
		fmt.Println("  (none)")
	}
}
