// Package config provides configuration types and loading for sitegate.
//
// This package defines the service configuration model, YAML loading with
// environment variable substitution, defaults, and validation.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Struct validation via go-playground/validator with readable paths
//   - Human-readable durations ("30s", "50m")
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("configs/sitegate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Validation is structural only. Entity-level problems in tenants and API
// keys (unknown tenant references, unresolvable secrets, empty role sets) are
// handled by the registries, which skip the offending entry instead of
// refusing to start.
package config
