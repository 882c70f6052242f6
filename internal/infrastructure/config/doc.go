// Package config handles loading and validating servicedesk-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file
//   - Overriding with SERVICEDESK_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Secrets (JWT secret, database DSN, broker passwords) should be set via
//     environment variables rather than committed config files
//   - The JWT secret has no default; startup fails without one
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
