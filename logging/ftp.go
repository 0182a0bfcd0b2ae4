// Package logging provides FTP-specific structured logging
package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"
)

// FTPLogger wraps a Logger with per-session context and provides the
// event methods the server core emits on the control and data channels.
type FTPLogger struct {
	Logger
	sessionID string
	clientIP  string
}

// SessionIDBytes is the number of bytes used for session ID generation
const SessionIDBytes = 6

// generateSessionID creates a random session identifier
func generateSessionID() string {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		// Fallback: use timestamp-based ID if crypto/rand fails (very unlikely)
		return fmt.Sprintf("sess_%x", time.Now().UnixNano())
	}
	return "sess_" + hex.EncodeToString(b)
}

// NewFTPLogger creates an FTP logger bound to a control connection.
func NewFTPLogger(logger Logger, conn net.Conn) *FTPLogger {
	sessionID := generateSessionID()
	clientIP := ""
	if conn != nil {
		if addr := conn.RemoteAddr(); addr != nil {
			clientIP = addr.String()
			if host, _, err := net.SplitHostPort(clientIP); err == nil {
				clientIP = host
			}
		}
	}

	return &FTPLogger{
		Logger:    logger.With(F("session_id", sessionID)),
		sessionID: sessionID,
		clientIP:  clientIP,
	}
}

// SessionID returns the generated session identifier.
func (l *FTPLogger) SessionID() string {
	return l.sessionID
}

// ClientIP returns the remote IP of the control connection.
func (l *FTPLogger) ClientIP() string {
	return l.clientIP
}

// LogConnection logs acceptance of a control connection.
func (l *FTPLogger) LogConnection(remoteAddr string) {
	l.Info("FTP connection established",
		F("client_ip", l.clientIP),
		F("remote_addr", remoteAddr))
}

// LogConnectionClosed logs the end of a session.
func (l *FTPLogger) LogConnectionClosed(duration time.Duration) {
	l.Info("FTP connection closed",
		F("client_ip", l.clientIP),
		F("duration_ms", duration.Milliseconds()))
}

// LogCommand logs a received command. Callers redact sensitive
// arguments (PASS) before calling.
func (l *FTPLogger) LogCommand(verb, arg, user string) {
	fields := []Field{
		F("client_ip", l.clientIP),
		F("command", verb),
	}
	if arg != "" {
		fields = append(fields, F("arg", arg))
	}
	if user != "" {
		fields = append(fields, F("user", user))
	}
	l.Info("FTP command received", fields...)
}

// LogResponse logs a response sent on the control channel. Error-class
// codes are logged at WARN so operational filters catch them.
func (l *FTPLogger) LogResponse(code int, message string) {
	fields := []Field{
		F("client_ip", l.clientIP),
		F("code", code),
		F("response", message),
	}
	if code >= 400 {
		l.Warn("FTP error response sent", fields...)
		return
	}
	l.Info("FTP response sent", fields...)
}

// LogDataChannel logs establishment or closure of a data channel.
func (l *FTPLogger) LogDataChannel(mode, event, addr string) {
	l.Debug("FTP data channel "+event,
		F("client_ip", l.clientIP),
		F("mode", mode),
		F("data_addr", addr))
}

// LogTransfer logs completion of a data transfer.
func (l *FTPLogger) LogTransfer(verb, path string, bytes int64, duration time.Duration, err error) {
	fields := []Field{
		F("client_ip", l.clientIP),
		F("operation", verb),
		F("path", path),
		F("bytes", bytes),
		F("duration_ms", duration.Milliseconds()),
	}
	if err != nil {
		l.Error("FTP transfer failed", err, fields...)
		return
	}
	l.Info("FTP transfer complete", fields...)
}

// LogError logs a handler error that was converted to an error reply.
func (l *FTPLogger) LogError(verb string, err error) {
	l.Warn("FTP command failed",
		F("client_ip", l.clientIP),
		F("command", verb),
		F("err", err))
}
