// Package config loads relay's configuration: built-in defaults, an
// optional JSON or YAML file, then RELAY_* environment overrides.
//
//	cfg, err := config.Load("/etc/relay/relay.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//
// Watch re-parses the file on change and hands every valid new Config to a
// callback. Only settings that are safe to change at runtime (log level and
// producer limits) are applied by the server; the rest take effect on
// restart.
package config
