// Package cli parses the process arguments into startup options.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/eugenenazirov/appshell/internal/server"
)

const usageHelp = `Bootstraps the application and serves the API with the selected backend.

The configuration file is config/<env>.toml, where <env> comes from --env or the
APP_ENVIRONMENT variable.

Examples:
  $ appshell --env=qa
  $ appshell --uvicorn`

// Options is the result of parsing the command line.
type Options struct {
	Help        bool
	EnvOverride string
	Backend     server.Kind
}

// ArgumentError reports a command line that could not be parsed.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Parser wraps the kingpin application describing the supported flags.
type Parser struct {
	usage io.Writer
}

// NewParser returns a Parser that writes usage text to w. A nil writer means stderr.
func NewParser(w io.Writer) *Parser {
	if w == nil {
		w = os.Stderr
	}
	return &Parser{usage: w}
}

// Parse is a shortcut for NewParser(os.Stderr).Parse(args).
func Parse(args []string) (Options, error) {
	return NewParser(os.Stderr).Parse(args)
}

// Parse reads args (without the program name). Help is reported through
// Options.Help instead of terminating the process.
func (p *Parser) Parse(args []string) (Options, error) {
	opts := Options{Backend: server.Hypercorn}

	if err := rejectUnlistedFlags(args); err != nil {
		return Options{}, &ArgumentError{Err: err}
	}

	helped := false
	kingpinApp := kingpin.New("appshell", usageHelp).
		UsageWriter(p.usage).
		ErrorWriter(io.Discard).
		Terminate(func(code int) {
			if code == 0 {
				helped = true
			}
		})

	kingpinApp.Flag("env", "Config environment to load instead of APP_ENVIRONMENT (e.g. qa)").
		PlaceHolder("NAME").
		SetValue(&lastValue{value: &opts.EnvOverride})
	kingpinApp.Flag("hypercorn", "Serve with the net/http backend (default)").
		SetValue(&backendFlag{selected: &opts.Backend, kind: server.Hypercorn})
	kingpinApp.Flag("uvicorn", "Serve with the fasthttp backend").
		SetValue(&backendFlag{selected: &opts.Backend, kind: server.Uvicorn})

	_, err := kingpinApp.Parse(args)
	if helped {
		return Options{Help: true, Backend: server.Hypercorn}, nil
	}
	if err != nil {
		return Options{}, &ArgumentError{Err: err}
	}

	return opts, nil
}

// supportedFlags is the closed flag set. kingpin registers --help-long,
// --help-man and the completion flags on its own and derives --no-<name>
// for boolean flags; none of those are part of the command line.
var supportedFlags = map[string]bool{
	"help":      true,
	"env":       true,
	"hypercorn": true,
	"uvicorn":   true,
}

func rejectUnlistedFlags(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return nil
		}
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name, _, inline := strings.Cut(arg[2:], "=")
		if !supportedFlags[name] {
			return fmt.Errorf("unknown long flag '--%s'", name)
		}
		if name == "env" && !inline {
			i++
		}
	}
	return nil
}

// lastValue is a repeatable string flag that keeps the final occurrence.
type lastValue struct {
	value *string
}

func (v *lastValue) Set(s string) error {
	*v.value = s
	return nil
}

func (v *lastValue) String() string {
	return *v.value
}

func (v *lastValue) IsCumulative() bool {
	return true
}

// backendFlag is a boolean flag that points the shared selector at its kind
// when set. Flags are applied in command line order, so the last one wins.
type backendFlag struct {
	selected *server.Kind
	kind     server.Kind
}

func (f *backendFlag) Set(value string) error {
	on, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	if on {
		*f.selected = f.kind
	}
	return nil
}

func (f *backendFlag) String() string {
	return strconv.FormatBool(*f.selected == f.kind)
}

func (f *backendFlag) IsBoolFlag() bool {
	return true
}

// IsCumulative lets the flag repeat; kingpin refuses repeats otherwise.
func (f *backendFlag) IsCumulative() bool {
	return true
}
