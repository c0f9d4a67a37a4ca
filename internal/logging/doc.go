// Package logging builds zap loggers. A small bootstrap logger covers startup
// until the YAML logging document named by the configuration is loaded; the
// document then describes formatters, handlers and a dotted logger hierarchy
// which Apply installs process-wide.
package logging
