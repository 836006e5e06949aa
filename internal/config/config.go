// Package config holds defaults and small parsers for command-line settings.
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; required only with the postgres storage.
	DefaultDatabaseURL = ""

	// DefaultRedisURL is empty, which disables the cross-instance relay.
	DefaultRedisURL = ""

	// DefaultPolicy accepts every move between known statuses.
	DefaultPolicy = "permissive"

	// DefaultTokenTTL is the lifetime of tokens issued by the token command.
	DefaultTokenTTL = 24 * time.Hour

	// DefaultMaxConns caps the Postgres pool.
	DefaultMaxConns = 10

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Storage selects the persistence backend.
type Storage string

const (
	StorageMemory   Storage = "memory"
	StoragePostgres Storage = "postgres"
)

// ParseStorage validates a storage name.
func ParseStorage(value string) (Storage, error) {
	switch s := Storage(strings.ToLower(strings.TrimSpace(value))); s {
	case StorageMemory, StoragePostgres:
		return s, nil
	default:
		return "", fmt.Errorf("unknown storage %q (want memory or postgres)", value)
	}
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
