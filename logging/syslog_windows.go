//go:build windows
// +build windows

package logging

// Syslog isn't available on Windows; fall back to stdout with the same
// formatting so the "syslog" output setting stays portable.

// NewSyslogLogger returns a stdout logger as the Windows fallback.
func NewSyslogLogger(config *LogConfig) (Logger, error) {
	return NewStdoutLogger(config), nil
}
