// Package config loads the gateway configuration from an optional YAML file,
// a .env file and environment variables, in increasing order of precedence.
// Nested keys map to environment variables with dots replaced by underscores,
// so guard.block_duration is read from GUARD_BLOCK_DURATION.
package config
