package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

var hostname = os.Hostname

// Environment holds the settings taken from environment variables.
type Environment struct {
	// Name is the default config stem, lower-cased.
	Name string `env:"APP_ENVIRONMENT"`
	// Root overrides the directory holding config/ in directory mode.
	Root string `env:"APP_ROOT"`
	// BindHost overrides the host the server binds to. Defaults to the machine hostname.
	BindHost string `env:"APP_BIND_HOST"`
}

// LoadEnvironment reads the APP_* variables. A missing APP_ENVIRONMENT is not
// an error here: an --env override may still name the config.
func LoadEnvironment() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return Environment{}, fmt.Errorf("parse environment: %w", err)
	}

	e.Name = strings.ToLower(strings.TrimSpace(e.Name))
	e.Root = strings.TrimSpace(e.Root)
	e.BindHost = strings.TrimSpace(e.BindHost)

	if e.BindHost == "" {
		host, err := hostname()
		if err != nil {
			return Environment{}, fmt.Errorf("resolve hostname: %w", err)
		}
		e.BindHost = host
	}

	return e, nil
}

// EffectiveName returns the config stem to load: the override when given,
// the environment otherwise.
func (e Environment) EffectiveName(override string) (string, error) {
	name := strings.TrimSpace(override)
	if name == "" {
		name = e.Name
	}
	if name == "" {
		return "", ErrEnvironmentNotSet
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, name)
	}
	return name, nil
}
