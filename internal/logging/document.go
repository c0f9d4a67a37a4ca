package logging

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when a logging document cannot be turned into loggers.
var ErrInvalidDocument = errors.New("invalid logging document")

// Document is the hierarchical logging configuration: formatters feed
// handlers, handlers are attached to named loggers and to the root.
type Document struct {
	Version    int                  `yaml:"version"`
	Formatters map[string]Formatter `yaml:"formatters"`
	Handlers   map[string]Handler   `yaml:"handlers"`
	Loggers    map[string]Logger    `yaml:"loggers"`
	Root       Logger               `yaml:"root"`
}

// Formatter selects the zap encoder used by a handler.
type Formatter struct {
	// Encoding is "json" or "console". Defaults to console.
	Encoding string `yaml:"encoding"`
	// TimeLayout is a Go time layout. Empty means ISO8601.
	TimeLayout string `yaml:"time_layout"`
}

// Handler is a log sink.
type Handler struct {
	Class     string `yaml:"class"`
	Level     string `yaml:"level"`
	Formatter string `yaml:"formatter"`
	Stream    string `yaml:"stream"`
	Filename  string `yaml:"filename"`
}

// Logger configures a named logger (or the root).
type Logger struct {
	Level     string   `yaml:"level"`
	Handlers  []string `yaml:"handlers"`
	Propagate *bool    `yaml:"propagate"`
}

func (l Logger) propagates() bool {
	return l.Propagate == nil || *l.Propagate
}

// ParseDocument decodes a YAML logging document and validates its references.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: parse YAML: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks that every referenced formatter and handler exists and that levels parse.
func (d Document) Validate() error {
	for name, h := range d.Handlers {
		if h.Formatter != "" {
			if _, ok := d.Formatters[h.Formatter]; !ok {
				return fmt.Errorf("%w: handler %q references unknown formatter %q", ErrInvalidDocument, name, h.Formatter)
			}
		}
		if _, _, err := parseLevel(h.Level); err != nil {
			return fmt.Errorf("%w: handler %q: %v", ErrInvalidDocument, name, err)
		}
		if _, err := handlerClass(h.Class); err != nil {
			return fmt.Errorf("%w: handler %q: %v", ErrInvalidDocument, name, err)
		}
	}
	for name, f := range d.Formatters {
		switch strings.ToLower(f.Encoding) {
		case "", "console", "json":
		default:
			return fmt.Errorf("%w: formatter %q has unknown encoding %q", ErrInvalidDocument, name, f.Encoding)
		}
	}

	check := func(loggerName string, l Logger) error {
		if _, _, err := parseLevel(l.Level); err != nil {
			return fmt.Errorf("%w: logger %q: %v", ErrInvalidDocument, loggerName, err)
		}
		for _, ref := range l.Handlers {
			if _, ok := d.Handlers[ref]; !ok {
				return fmt.Errorf("%w: logger %q references unknown handler %q", ErrInvalidDocument, loggerName, ref)
			}
		}
		return nil
	}
	if err := check("root", d.Root); err != nil {
		return err
	}
	for name, l := range d.Loggers {
		if err := check(name, l); err != nil {
			return err
		}
	}
	return nil
}

// parseLevel maps level names onto zap levels. ok is false for an empty or
// NOTSET level, meaning the level is inherited.
func parseLevel(raw string) (zapcore.Level, bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "NOTSET":
		return zapcore.DebugLevel, false, nil
	case "DEBUG":
		return zapcore.DebugLevel, true, nil
	case "INFO":
		return zapcore.InfoLevel, true, nil
	case "WARNING", "WARN":
		return zapcore.WarnLevel, true, nil
	case "ERROR":
		return zapcore.ErrorLevel, true, nil
	case "CRITICAL", "FATAL":
		return zapcore.FatalLevel, true, nil
	default:
		return zapcore.DebugLevel, false, fmt.Errorf("unknown level %q", raw)
	}
}

type sinkClass int

const (
	streamSink sinkClass = iota
	fileSink
	nullSink
)

func handlerClass(raw string) (sinkClass, error) {
	class := strings.ToLower(raw)
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	switch class {
	case "", "stream", "streamhandler":
		return streamSink, nil
	case "file", "filehandler":
		return fileSink, nil
	case "null", "nullhandler":
		return nullSink, nil
	default:
		return 0, fmt.Errorf("unsupported handler class %q", raw)
	}
}
