package instance

import (
	"os"

	"github.com/angelmondragon/marketplace-inventory/pkg/env"
)

const fallbackID = "local"

// GetID identifies this process in logs and lock diagnostics. WORKER_ID wins
// over the platform DYNO name; the hostname is the last resort.
func GetID() string {
	if id, ok := env.First("WORKER_ID", "DYNO"); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
