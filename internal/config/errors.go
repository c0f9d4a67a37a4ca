package config

import "errors"

var (
	// ErrEnvironmentNotSet is returned when neither --env nor APP_ENVIRONMENT names a config.
	ErrEnvironmentNotSet = errors.New("APP_ENVIRONMENT is not set and no --env override was given")
	// ErrInvalidEnvironment is returned for environment names that would escape the config directory.
	ErrInvalidEnvironment = errors.New("invalid environment name")
	// ErrConfigNotFound is returned when the selected config file does not exist.
	ErrConfigNotFound = errors.New("config file does not exist")
	// ErrMalformedConfig is returned when the TOML document cannot be decoded.
	ErrMalformedConfig = errors.New("malformed config file")
	// ErrMissingLogConfig is returned when logging.log_config is absent.
	ErrMissingLogConfig = errors.New("logging.log_config is not set")
	// ErrLoggingDocument is returned when the logging document cannot be read or decoded.
	ErrLoggingDocument = errors.New("cannot load logging document")
)
