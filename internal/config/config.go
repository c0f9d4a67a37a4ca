package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/logging"
)

const (
	// DefaultPort is used by both backends when their section sets no port.
	DefaultPort = 5050

	defaultRateLimitRPS        = 25.0
	defaultRateLimitBurst      = 50
	defaultShutdownGracePeriod = 10 * time.Second
)

// Resolved is the configuration for one process, built once at startup and
// read-only afterwards.
type Resolved struct {
	Environment     string
	Mode            LaunchMode
	ConfigLocation  string
	LoggingLocation string

	// Sections is the decoded TOML document keyed by section name.
	Sections map[string]any

	Logging   LoggingSection
	Hypercorn ServerSection
	Uvicorn   ServerSection
	API       APISection

	LogDocument logging.Document
}

// WatchPaths lists the files a reloading server should watch. Bundled
// documents cannot change, so archive mode has none.
func (r Resolved) WatchPaths() []string {
	if r.Mode != DirectoryMode {
		return nil
	}
	return []string{r.ConfigLocation, r.LoggingLocation}
}

// LoggingSection is the [logging] table.
type LoggingSection struct {
	LogConfig string
}

// ServerSection is a backend table ([hypercorn] or [uvicorn]).
type ServerSection struct {
	Port          int
	HasPort       bool
	SSLCertFile   string
	SSLKeyFile    string
	SSLKeyFilePwd string
}

// PortOr returns the configured port, or def when the section sets none.
func (s ServerSection) PortOr(def int) int {
	if s.HasPort {
		return s.Port
	}
	return def
}

// APISection is the optional [api] table.
type APISection struct {
	RateLimitRPS        float64
	RateLimitBurst      int
	RequestLogging      bool
	ShutdownGracePeriod time.Duration
}

// fileConfig mirrors the TOML layout; pointers tell absent keys from zero values.
type fileConfig struct {
	Logging struct {
		LogConfig string `toml:"log_config"`
	} `toml:"logging"`
	Hypercorn fileServer `toml:"hypercorn"`
	Uvicorn   fileServer `toml:"uvicorn"`
	API       fileAPI    `toml:"api"`
}

type fileServer struct {
	Port          *int   `toml:"port"`
	SSLCertFile   string `toml:"sslcertfile"`
	SSLKeyFile    string `toml:"sslkeyfile"`
	SSLKeyFilePwd string `toml:"sslkeyfilepwd"`
}

type fileAPI struct {
	RateLimitRPS        *float64 `toml:"rate_limit_rps"`
	RateLimitBurst      *int     `toml:"rate_limit_burst"`
	RequestLogging      *bool    `toml:"request_logging"`
	ShutdownGracePeriod string   `toml:"shutdown_grace_period"`
}

// Resolver loads the configuration for an environment from a Source.
type Resolver struct {
	source Source
	logger *zap.Logger
}

// NewResolver returns a Resolver reading from src.
func NewResolver(src Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: src, logger: logger}
}

// Resolve picks the config file for env (or override), decodes it and loads
// the logging document it references.
func (r *Resolver) Resolve(env Environment, override string) (Resolved, error) {
	name, err := env.EffectiveName(override)
	if err != nil {
		return Resolved{}, err
	}
	file := name + ".toml"

	r.logger.Info("loading configuration",
		zap.String("environment", name),
		zap.String("mode", r.source.Mode().String()),
		zap.String("file", file),
	)

	data, location, err := r.source.ConfigFile(file)
	if err != nil {
		r.logger.Error("config file is not available", zap.String("path", location), zap.Error(err))
		return Resolved{}, err
	}

	cfg, err := parse(data)
	if err != nil {
		return Resolved{}, fmt.Errorf("%s: %w", location, err)
	}
	cfg.Environment = name
	cfg.Mode = r.source.Mode()
	cfg.ConfigLocation = location

	if cfg.Logging.LogConfig == "" {
		return Resolved{}, fmt.Errorf("%s: %w", location, ErrMissingLogConfig)
	}

	logData, logLocation, err := r.source.LoggingDocument(cfg.Logging.LogConfig)
	if err != nil {
		return Resolved{}, fmt.Errorf("%s: %w", logLocation, err)
	}
	doc, err := logging.ParseDocument(logData)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %s: %w", ErrLoggingDocument, logLocation, err)
	}
	cfg.LoggingLocation = logLocation
	cfg.LogDocument = doc

	r.logger.Info("configuration loaded",
		zap.String("config", location),
		zap.String("logging", logLocation),
		zap.Strings("sections", sectionNames(cfg.Sections)),
	)

	return cfg, nil
}

// parse decodes a TOML document into a Resolved value with defaults applied.
func parse(data []byte) (Resolved, error) {
	var sections map[string]any
	if err := toml.Unmarshal(data, &sections); err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}

	cfg := Resolved{
		Sections: sections,
		Logging:  LoggingSection{LogConfig: raw.Logging.LogConfig},
		API:      defaultAPI(),
	}
	cfg.Hypercorn = raw.Hypercorn.section()
	cfg.Uvicorn = raw.Uvicorn.section()

	if err := applyAPI(&cfg.API, raw.API); err != nil {
		return Resolved{}, err
	}

	return cfg, nil
}

func defaultAPI() APISection {
	return APISection{
		RateLimitRPS:        defaultRateLimitRPS,
		RateLimitBurst:      defaultRateLimitBurst,
		RequestLogging:      true,
		ShutdownGracePeriod: defaultShutdownGracePeriod,
	}
}

func (f fileServer) section() ServerSection {
	s := ServerSection{
		SSLCertFile:   f.SSLCertFile,
		SSLKeyFile:    f.SSLKeyFile,
		SSLKeyFilePwd: f.SSLKeyFilePwd,
	}
	if f.Port != nil {
		s.Port = *f.Port
		s.HasPort = true
	}
	return s
}

// applyAPI overlays the [api] table onto the defaults.
func applyAPI(api *APISection, raw fileAPI) error {
	if raw.RateLimitRPS != nil {
		if *raw.RateLimitRPS < 0 {
			return fmt.Errorf("%w: api.rate_limit_rps must be >= 0", ErrMalformedConfig)
		}
		api.RateLimitRPS = *raw.RateLimitRPS
	}

	if raw.RateLimitBurst != nil {
		if *raw.RateLimitBurst < 0 {
			return fmt.Errorf("%w: api.rate_limit_burst must be >= 0", ErrMalformedConfig)
		}
		api.RateLimitBurst = *raw.RateLimitBurst
	}

	if raw.RequestLogging != nil {
		api.RequestLogging = *raw.RequestLogging
	}

	if raw.ShutdownGracePeriod != "" {
		d, err := time.ParseDuration(raw.ShutdownGracePeriod)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: api.shutdown_grace_period %q", ErrMalformedConfig, raw.ShutdownGracePeriod)
		}
		api.ShutdownGracePeriod = d
	}

	return nil
}

func sectionNames(sections map[string]any) []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
