// Package config handles loading and validating mqtt2graphite configuration.
//
// This package manages:
//   - Loading an optional YAML file
//   - Loading a .env file from the working directory, if present
//   - Overriding with environment variables
//   - Validation of required fields
//
// The environment variable names predate the YAML file and are kept so that
// existing deployments keep working: MQTT_HOST, MQTT_PORT, CARBON_SERVER,
// CARBON_PORT, SYSLOG_HOST, SYSLOG_PORT and DEBUG.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("MQTT2GRAPHITE_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Carbon.Address())
package config
