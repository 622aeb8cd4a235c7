package config

import "time"

// HTTP server timeouts. WriteTimeout stays zero: relay connections are
// long-lived and must not be cut by the server.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Rate limit window for the pairing issuance endpoint
const PairingRateWindow = time.Minute
