// Package config loads engine options from defaults, an optional YAML file
// and IDENTITYSTORE_* environment variables, in that order of precedence.
package config
