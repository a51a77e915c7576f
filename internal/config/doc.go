// Package config provides configuration management for routerd.
//
// Configuration comes in two layers: process-level settings are read from
// environment variables using the env package, and the routing document
// (listen addresses, host groups, graphs and routes) is a JSON file whose
// path defaults to ROUTERD_CONFIG or the first command-line argument.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	doc, err := config.LoadDocument(cfg.ConfigPath)
package config
