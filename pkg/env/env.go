// Package env reads ad-hoc process environment values, for the couple
// of settings (like the API token) that live outside the envconfig
// structs.
package env

import "os"

// Get returns the named variable, or fallback when it is unset or
// empty. Empty counts as unset: an operator blanking a variable wants
// the default, not "".
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
