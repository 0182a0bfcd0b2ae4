package server

import "time"

const (
	// DefaultPort is the standard FTP control port.
	DefaultPort = 21

	// DefaultListenAddress binds to all interfaces.
	DefaultListenAddress = "0.0.0.0"

	// DefaultBannerName appears in the 220 welcome banner.
	DefaultBannerName = "goftpd"

	// DefaultIdleTimeout is the control-channel read/write timeout.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultDataTimeout bounds data-channel establishment: the wait
	// for a passive client to connect, or the active-mode dial.
	DefaultDataTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the graceful shutdown timeout used when
	// the server is stopped by a signal.
	DefaultShutdownTimeout = 10 * time.Second

	// MaxCommandLength is the maximum allowed FTP command length in bytes
	MaxCommandLength = 4096
)
