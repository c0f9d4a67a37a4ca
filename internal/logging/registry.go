package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const rootLoggerName = "root"

// Registry holds the loggers built from a Document.
type Registry struct {
	doc      Document
	handlers map[string]builtHandler
	root     *zap.Logger

	mu      sync.Mutex
	loggers map[string]*zap.Logger

	closers []func()
	restore func()
}

type builtHandler struct {
	encoder zapcore.Encoder
	sink    zapcore.WriteSyncer
	level   zapcore.Level
}

// Build turns a document into a Registry without touching the global loggers.
func Build(doc Document) (*Registry, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		doc:      doc,
		handlers: make(map[string]builtHandler, len(doc.Handlers)),
		loggers:  make(map[string]*zap.Logger, len(doc.Loggers)),
	}

	names := make([]string, 0, len(doc.Handlers))
	for name := range doc.Handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := doc.Handlers[name]
		class, _ := handlerClass(spec.Class)
		if class == nullSink {
			continue
		}
		sink, closer, err := openSink(class, spec)
		if err != nil {
			r.closeSinks()
			return nil, fmt.Errorf("%w: handler %q: %v", ErrInvalidDocument, name, err)
		}
		if closer != nil {
			r.closers = append(r.closers, closer)
		}
		level, _, _ := parseLevel(spec.Level)
		r.handlers[name] = builtHandler{
			encoder: newEncoder(doc.Formatters[spec.Formatter]),
			sink:    sink,
			level:   level,
		}
	}

	r.root = r.build("")
	for name := range doc.Loggers {
		r.loggers[name] = r.build(name)
	}

	return r, nil
}

// Apply builds the document and installs its root logger as the process-wide
// zap logger, replacing whatever was installed before. Close undoes it.
func Apply(doc Document) (*Registry, error) {
	r, err := Build(doc)
	if err != nil {
		return nil, err
	}
	r.restore = zap.ReplaceGlobals(r.root)
	r.root.Debug("logging configuration applied", zap.Int("handlers", len(r.handlers)))
	return r, nil
}

// Root returns the root logger.
func (r *Registry) Root() *zap.Logger {
	return r.root
}

// Logger returns the logger for a dotted name such as "uvicorn.access".
// Names missing from the document inherit from their nearest configured ancestor.
func (r *Registry) Logger(name string) *zap.Logger {
	name = strings.TrimSpace(name)
	if name == "" || name == rootLoggerName {
		return r.root
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[name]; ok {
		return l
	}
	l := r.build(name)
	r.loggers[name] = l
	return l
}

// Sync flushes every logger.
func (r *Registry) Sync() error {
	var errs []error
	for name, h := range r.handlers {
		if err := h.sink.Sync(); err != nil && !isIgnorableSyncError(err) {
			errs = append(errs, fmt.Errorf("sync handler %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes file handlers and restores the previous global logger.
func (r *Registry) Close() {
	_ = r.Sync()
	if r.restore != nil {
		r.restore()
		r.restore = nil
	}
	r.closeSinks()
}

func (r *Registry) closeSinks() {
	for _, c := range r.closers {
		c()
	}
	r.closers = nil
}

// build assembles the logger for name ("" is the root): its level is the
// nearest explicit level up the dotted chain, its handlers are collected
// while propagation holds.
func (r *Registry) build(name string) *zap.Logger {
	level := r.effectiveLevel(name)

	var cores []zapcore.Core
	seen := map[string]bool{}
	attach := func(refs []string) {
		for _, ref := range refs {
			h, ok := r.handlers[ref]
			if !ok || seen[ref] {
				continue
			}
			seen[ref] = true
			handlerLevel := h.level
			cores = append(cores, zapcore.NewCore(h.encoder, h.sink, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
				return l >= level && l >= handlerLevel
			})))
		}
	}

	propagate := true
	for current := name; current != "" && propagate; current = parentName(current) {
		spec, ok := r.doc.Loggers[current]
		if !ok {
			continue
		}
		attach(spec.Handlers)
		propagate = spec.propagates()
	}
	if propagate {
		attach(r.doc.Root.Handlers)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	if name != "" {
		logger = logger.Named(name)
	}
	return logger
}

func (r *Registry) effectiveLevel(name string) zapcore.Level {
	for current := name; current != ""; current = parentName(current) {
		if spec, ok := r.doc.Loggers[current]; ok {
			if level, explicit, _ := parseLevel(spec.Level); explicit {
				return level
			}
		}
	}
	if level, explicit, _ := parseLevel(r.doc.Root.Level); explicit {
		return level
	}
	return zapcore.WarnLevel
}

func parentName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return ""
}

func newEncoder(f Formatter) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if f.TimeLayout != "" {
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(f.TimeLayout)
	}

	if strings.EqualFold(f.Encoding, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(class sinkClass, spec Handler) (zapcore.WriteSyncer, func(), error) {
	switch class {
	case fileSink:
		if spec.Filename == "" {
			return nil, nil, errors.New("file handler requires a filename")
		}
		if err := os.MkdirAll(filepath.Dir(spec.Filename), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(spec.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return zapcore.Lock(f), func() { _ = f.Close() }, nil
	default:
		switch strings.ToLower(strings.TrimPrefix(spec.Stream, "ext://sys.")) {
		case "", "stderr":
			return zapcore.Lock(os.Stderr), nil, nil
		case "stdout":
			return zapcore.Lock(os.Stdout), nil, nil
		default:
			return nil, nil, fmt.Errorf("unsupported stream %q", spec.Stream)
		}
	}
}

// isIgnorableSyncError filters the EINVAL/ENOTTY errors returned when syncing terminals.
func isIgnorableSyncError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Path == os.Stdout.Name() || pathErr.Path == os.Stderr.Name()
	}
	return false
}
