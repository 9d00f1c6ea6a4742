// Package config defines the relay settings and provides helpers to load,
// validate and save them in YAML format.
//
// Secrets may be kept out of the file: auth_token_env names an environment
// variable that takes precedence over auth_token.
package config
