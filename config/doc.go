// Package config loads the process configuration for the ingest binary.
//
// Configuration is built in layers, last wins:
//
//  1. built-in defaults (a local NATS server and the standard pipeline)
//  2. each file added with AddLayer, JSON or YAML by extension, deep-merged
//  3. environment overrides under the E2T_ prefix
//  4. Validate, when enabled
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Deep merging means a later layer only has to name what it changes:
//
//	base.yaml:        platform: {id: dev, log_level: debug}
//	production.yaml:  platform: {id: prod}
//	result:           platform: {id: prod, log_level: debug}
//
// Components are keyed by instance name. Each entry names its factory, its
// type and an opaque config object that is handed to the factory unparsed:
//
//	components:
//	  timescale:
//	    name: timescale
//	    type: output
//	    enabled: true
//	    config:
//	      table: conditions
//
// Environment overrides:
//
//	E2T_PLATFORM_ID     E2T_LOG_LEVEL      E2T_LOG_FORMAT
//	E2T_NATS_URLS       E2T_NATS_USERNAME  E2T_NATS_PASSWORD  E2T_NATS_TOKEN
//	E2T_METRICS_ENABLED E2T_METRICS_ADDRESS
//
// Files are read with a size limit and a nesting-depth check, and must be
// regular files.
package config
