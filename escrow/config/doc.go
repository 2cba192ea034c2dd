// Package config loads escrow engine settings from ESCROW_* environment variables.
//
// Load parses with caarlos0/env and validates with go-playground/validator.
// The accessor methods translate the flat settings into the option structs of
// the zap, circuitbreaker and backoff packages.
package config
