package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load exports the variables of the given dotenv files, ".env" when none are
// named, into the process environment. It is the first layer of the recorder
// configuration: LoadRecorder starts from Defaults, overlays the TOML file
// named by CONFIG_FILE, then overlays the environment, so a value set in .env
// or the shell wins over the file. Variables already set in the environment
// are never overwritten. A missing .env yields an error callers may ignore.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key (time.ParseDuration syntax, e.g. "30s"), or fallback if the variable
// is unset, empty, or malformed.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
