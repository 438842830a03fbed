package config

import (
	"os"
	"strconv"
)

// OverrideString overrides *field with the named environment variable, if set.
func OverrideString(field *string, env string) {
	if val := os.Getenv(env); val != "" {
		*field = val
	}
}

// OverrideInt overrides *field with the named environment variable, if set
// and parseable as an integer.
func OverrideInt(field *int, env string) {
	if val := os.Getenv(env); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*field = i
		}
	}
}

// OverrideFloat overrides *field with the named environment variable, if set
// and parseable as a float64.
func OverrideFloat(field *float64, env string) {
	if val := os.Getenv(env); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*field = f
		}
	}
}
