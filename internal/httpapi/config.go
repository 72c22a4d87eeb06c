package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes configures the maximum request body size; non-positive
// values restore the 1 MiB default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// eventWriteTimeout bounds a single event write to a WebSocket client.
var eventWriteTimeout = 10 * time.Second

// SetEventWriteTimeout sets the per-event write deadline; non-positive values
// restore the default.
func SetEventWriteTimeout(d time.Duration) {
	if d <= 0 {
		d = 10 * time.Second
	}
	eventWriteTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added and
// WebSocket upgrades accept any origin.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
