package instance

import "os"

// EnvInstanceID overrides the identifier a replica reports in logs.
const EnvInstanceID = "LAUNDRYTRACK_INSTANCE_ID"

// ID returns the replica identifier: the explicit override, then the
// hostname, then fallback.
func ID(fallback string) string {
	if id := os.Getenv(EnvInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
