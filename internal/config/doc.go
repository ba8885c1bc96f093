// Package config loads runtime configuration for the storefront CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations may be strings like "10s" or integer nanoseconds:
//
//	{
//	  "products": ["puppet3d_bundle"],
//	  "backend": "firestore",
//	  "firestore_project": "my-project",
//	  "sync_timeout": "10s"
//	}
//
// This package does not read environment variables; use the JSON file or
// flags to configure values.
package config
