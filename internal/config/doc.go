// Package config provides the gateway configuration model, YAML loading
// with environment variable substitution, validation and file watching.
//
// Configuration is loaded in four steps: built-in defaults, an optional
// YAML file (with ${VAR} and ${VAR:-default} substitution), environment
// overrides for backend URLs, the JWT secret and breaker thresholds, and
// finally validation.
//
//	cfg, err := config.Load("gateway.yaml")
//	if err != nil {
//	    return err
//	}
//
// The route table is immutable once loaded. The Watcher only reports new
// configurations; callers decide which settings may change at runtime.
package config
