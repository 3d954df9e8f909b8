package config

import "time"

// DefaultAddr is the default listen interface for the host.
const DefaultAddr = "0.0.0.0"

// DefaultPort is the default TCP port for the host.
const DefaultPort = 8080

const (
	DefaultCredentialExpiry = 5 * time.Minute
	DefaultClientTimeout    = 15 * time.Second
	DefaultClientSweep      = 30 * time.Second
	DefaultProbeTimeout     = 2500 * time.Millisecond
	DefaultMonitorSettle    = 10 * time.Second
	DefaultMonitorInterval  = 10 * time.Second
	DefaultRecordingPoll    = 750 * time.Millisecond
	DefaultDuplicateWindow  = 3 * time.Second
)
