package docstore

import (
	"fmt"
	"strings"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendUpstash  = "upstash"
)

// Open builds the store for the named backend. Backend specific settings
// come from the matching config; unused configs may be nil.
func Open(backend, dataDir string, pg *PostgresConfig, up *UpstashConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(dataDir)
	case BackendPostgres:
		if pg == nil {
			return nil, fmt.Errorf("docstore: postgres backend selected without POSTGRES_* config")
		}
		return NewPostgresStore(*pg)
	case BackendUpstash:
		if up == nil {
			return nil, fmt.Errorf("docstore: upstash backend selected without UPSTASH_REDIS_* config")
		}
		return NewUpstashStore(*up)
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q", backend)
	}
}
