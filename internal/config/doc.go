// Package config resolves the runtime configuration. The environment name
// comes from --env or APP_ENVIRONMENT and selects config/<name>.toml, read
// either from the directory the binary was installed in or from the bundle
// embedded into it. The TOML file names a YAML logging document which is
// loaded alongside it.
package config
