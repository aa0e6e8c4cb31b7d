// Package config loads the sandnet runtime configuration from YAML.
//
// All fields carry built-in defaults, so a missing or partial file is
// fine: Load starts from Default and overlays whatever the file sets,
// then validates the result.
package config
