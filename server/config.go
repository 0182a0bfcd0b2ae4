// Package server provides the FTP server implementation for goftpd.
package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"goftpd/auth"
	"goftpd/logging"
)

// PortRange represents an inclusive range of TCP ports.
type PortRange struct {
	Name  string
	Start int
	End   int
}

// Contains checks if a port is within this range.
func (pr PortRange) Contains(port int) bool {
	return port >= pr.Start && port <= pr.End
}

// Valid reports whether the range is well formed.
func (pr PortRange) Valid() bool {
	return pr.Start >= 1 && pr.End <= 65535 && pr.Start <= pr.End
}

// Config represents the server configuration.
type Config struct {
	// Port is the control-channel listening port.
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// ListenAddress is the IP to bind the control listener to.
	ListenAddress string `koanf:"listen-address"`

	// Root is the sandbox root directory; nothing outside it is ever
	// read, written, listed or traversed.
	Root string `koanf:"root" validate:"required"`

	// BannerName appears in the 220 welcome banner.
	BannerName string `koanf:"banner-name"`

	// PasvPortMin/PasvPortMax optionally confine passive-mode data
	// listeners to an inclusive port range. Both zero means ephemeral
	// ports chosen by the kernel.
	PasvPortMin int `koanf:"pasv-port-min" validate:"min=0,max=65535"`
	PasvPortMax int `koanf:"pasv-port-max" validate:"min=0,max=65535"`

	// MaxSessions caps concurrent control connections; 0 means
	// unlimited. Connections over the cap are greeted with 421 and
	// closed.
	MaxSessions int `koanf:"max-sessions" validate:"min=0"`

	// IdleTimeout bounds each control-channel read and write.
	IdleTimeout time.Duration `koanf:"idle-timeout"`

	// DataTimeout bounds establishing a data connection (the passive
	// accept or the active dial).
	DataTimeout time.Duration `koanf:"data-timeout"`

	// ShutdownTimeout is the graceful shutdown bound.
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout"`

	// Users seeds the in-memory credential store (name -> password).
	// Ignored when a custom Authenticator is supplied.
	Users map[string]string `koanf:"users"`

	// Logging configuration
	LogLevel       string `koanf:"log-level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	LogFormat      string `koanf:"log-format" validate:"omitempty,oneof=text json"`
	LogOutput      string `koanf:"log-output"`
	SyslogFacility string `koanf:"syslog-facility"`

	// Authenticator verifies credentials (default: in-memory store
	// seeded from Users).
	Authenticator auth.Authenticator `koanf:"-"`

	// Logger overrides the logger built from the Log* settings.
	Logger logging.Logger `koanf:"-"`
}

// validate is shared; validator instances cache struct metadata.
var validate = validator.New()

// EnsureDefaults fills zero-valued fields with the documented defaults.
func (c *Config) EnsureDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.BannerName == "" {
		c.BannerName = DefaultBannerName
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.DataTimeout == 0 {
		c.DataTimeout = DefaultDataTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = logging.InfoLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.LogOutput == "" {
		c.LogOutput = "stdout"
	}
	if c.SyslogFacility == "" {
		c.SyslogFacility = "ftp"
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if (c.PasvPortMin == 0) != (c.PasvPortMax == 0) {
		return fmt.Errorf("passive port range requires both bounds, got [%d, %d]", c.PasvPortMin, c.PasvPortMax)
	}
	if c.PasvPortMin > 0 {
		pasvRange := PortRange{Name: "passive", Start: c.PasvPortMin, End: c.PasvPortMax}
		if !pasvRange.Valid() {
			return fmt.Errorf("invalid passive port range [%d, %d]", c.PasvPortMin, c.PasvPortMax)
		}
		if pasvRange.Contains(c.Port) {
			return fmt.Errorf("control port %d conflicts with passive range [%d, %d]",
				c.Port, c.PasvPortMin, c.PasvPortMax)
		}
	}
	return nil
}

// LogConfig builds the logging configuration from the Log* fields.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:          logging.ParseLogLevel(c.LogLevel),
		Format:         c.LogFormat,
		Output:         c.LogOutput,
		SyslogFacility: c.SyslogFacility,
	}
}
