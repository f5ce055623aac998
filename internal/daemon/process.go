// Package daemon runs the gridsync watch process, which keeps the SQLite
// cache in step with hand edits and with other writers of the data
// directory.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/gridsync/internal/storage"
)

// StatusInterval is how often the process logs a heartbeat.
const StatusInterval = time.Minute

// Options configure a watch process.
type Options struct {
	// LogFile, when set, receives the process log with size-based rotation.
	LogFile    string
	LogLevel   string
	MaxSizeMB  int
	MaxBackups int
	Debounce   time.Duration
	// Logger is used when LogFile is empty. Nil means slog.Default().
	Logger *slog.Logger
}

// Process is a foreground watch process over one data directory.
type Process struct {
	baseDir string
	opts    Options
	logger  *slog.Logger
	sink    io.Closer
	store   *storage.Store
	watcher *Watcher
}

// NewProcess creates a watch process for the data directory baseDir.
func NewProcess(baseDir string, opts Options) *Process {
	return &Process{baseDir: baseDir, opts: opts}
}

// Run watches until ctx is cancelled or SIGINT/SIGTERM arrives. Every
// dataset cache is rebuilt once on start.
func (p *Process) Run(ctx context.Context) error {
	p.setupLogging()
	defer p.closeLogging()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(p.baseDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	p.store = store

	p.logger.Info("watch process starting", "dir", p.baseDir)
	p.rebuildAll(ctx)

	watcher, err := NewWatcher(p.baseDir,
		func(ds string) error { return p.store.RebuildCache(ctx, ds) },
		func(ds string) error {
			_, err := p.store.ReloadDataset(ctx, ds)
			return err
		},
		p.logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	watcher.SetDebounce(p.opts.Debounce)
	if err := watcher.Start(); err != nil {
		watcher.Close()
		return err
	}
	defer watcher.Close()
	p.watcher = watcher

	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()

	p.logger.Info("watching for changes", "datasets", watcher.DatasetCount())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("watch process stopping")
			return nil
		case <-ticker.C:
			p.logger.Debug("watch process alive", "datasets", watcher.DatasetCount())
		}
	}
}

// Logger returns the process logger. Valid once Run has started.
func (p *Process) Logger() *slog.Logger {
	return p.logger
}

func (p *Process) rebuildAll(ctx context.Context) {
	datasets, err := p.store.ListDatasets(ctx)
	if err != nil {
		p.logger.Error("listing datasets failed", "error", err)
		return
	}
	for _, ds := range datasets {
		if err := p.store.RebuildCache(ctx, ds.Name); err != nil {
			p.logger.Error("cache rebuild failed", "dataset", ds.Name, "error", err)
		}
	}
}

func (p *Process) setupLogging() {
	if p.opts.LogFile == "" {
		p.logger = p.opts.Logger
		if p.logger == nil {
			p.logger = slog.Default()
		}
		return
	}

	sink := &lumberjack.Logger{
		Filename:   p.opts.LogFile,
		MaxSize:    p.opts.MaxSizeMB,
		MaxBackups: p.opts.MaxBackups,
	}
	p.sink = sink
	p.logger = slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{
		Level: ParseLevel(p.opts.LogLevel),
	}))
}

func (p *Process) closeLogging() {
	if p.sink != nil {
		p.sink.Close()
	}
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TailLog reads the last n lines of a log file.
func TailLog(logPath string, n int) ([]string, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) <= n {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}
