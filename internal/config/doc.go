// Package config loads driveproxy settings.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// environment variables, then command-line flags applied by the caller.
// Environment variable names are listed on the struct fields.
package config
