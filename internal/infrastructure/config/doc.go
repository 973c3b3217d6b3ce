// Package config handles loading and validating edge agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Picking up file edits between connection cycles (Provider)
//
// Security Considerations:
//   - Tenant passwords should be set via EDGEAGENT_MQTT_PASSWORD
//   - The config file should have restricted permissions (0600)
//   - mqtt.broker.insecure_skip_verify disables broker certificate checks
//     in mutual TLS mode and must stay off in production
//
// Usage:
//
//	provider, err := config.NewProvider("configs/agent.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conn := provider.Connection() // re-read at the top of every run cycle
//	fmt.Println(conn.Host)
package config
