package server

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"net"
	"strings"
	"sync"
	"time"

	"goftpd/ftp"
	"goftpd/logging"
	"goftpd/storage"
)

// errSessionClosed signals a clean, client-requested end of session.
var errSessionClosed = errors.New("session closed")

// Session represents a single FTP control connection and the protocol
// state attached to it. All fields are owned by the session goroutine;
// the mutex only guards the pieces Close touches from the server side
// (the sockets and the data-channel intent).
type Session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	logger *logging.FTPLogger

	startTime time.Time

	// Login state
	username      string
	authenticated bool

	// currentDir is the virtual working directory, "/"-rooted with
	// forward slashes, no trailing slash except for "/" itself.
	currentDir string

	// renameFrom is the host path recorded by RNFR, non-empty only
	// between a successful RNFR and the next RNTO.
	renameFrom string

	// restartPos is the REST offset; consumed by the next RETR/STOR.
	restartPos int64

	// transferType is "A" or "I". Advisory only: transfers are always
	// byte-transparent.
	transferType string

	// Data channel intent: at most one of activeAddr / pasvListener is
	// set. Guarded by mu together with conn closure.
	mu           sync.Mutex
	activeAddr   string
	pasvListener net.Listener
	closed       bool

	// writeErr records the first control-channel write failure; the
	// command loop exits once it is set.
	writeErr error
}

// commandHandlers maps FTP verbs to their handler methods. A handler
// either sends its own positive reply and returns nil, or returns an
// error that the loop converts to exactly one terminal error reply.
var commandHandlers = map[string]func(*Session, string) error{
	ftp.CmdUSER: (*Session).handleUSER,
	ftp.CmdPASS: (*Session).handlePASS,
	ftp.CmdQUIT: (*Session).handleQUIT,
	ftp.CmdNOOP: (*Session).handleNOOP,
	ftp.CmdSYST: (*Session).handleSYST,
	ftp.CmdTYPE: (*Session).handleTYPE,
	ftp.CmdPWD:  (*Session).handlePWD,
	ftp.CmdXPWD: (*Session).handlePWD,
	ftp.CmdCWD:  (*Session).handleCWD,
	ftp.CmdCDUP: (*Session).handleCDUP,
	ftp.CmdMKD:  (*Session).handleMKD,
	ftp.CmdXMKD: (*Session).handleMKD,
	ftp.CmdRMD:  (*Session).handleRMD,
	ftp.CmdDELE: (*Session).handleDELE,
	ftp.CmdSIZE: (*Session).handleSIZE,
	ftp.CmdMDTM: (*Session).handleMDTM,
	ftp.CmdRNFR: (*Session).handleRNFR,
	ftp.CmdRNTO: (*Session).handleRNTO,
	ftp.CmdPORT: (*Session).handlePORT,
	ftp.CmdPASV: (*Session).handlePASV,
	ftp.CmdREST: (*Session).handleREST,
	ftp.CmdLIST: (*Session).handleLIST,
	ftp.CmdNLST: (*Session).handleNLST,
	ftp.CmdRETR: (*Session).handleRETR,
	ftp.CmdSTOR: (*Session).handleSTOR,
	ftp.CmdAPPE: (*Session).handleAPPE,
}

// NewSession creates a session bound to an accepted control connection.
func NewSession(conn net.Conn, server *Server) *Session {
	return &Session{
		server:       server,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		logger:       logging.NewFTPLogger(server.logger, conn),
		startTime:    time.Now(),
		currentDir:   "/",
		transferType: "I",
	}
}

// Handle runs the session until the client quits, the connection
// drops, or the server shuts down. It always leaves both channels
// closed.
func (s *Session) Handle() error {
	s.logger.LogConnection(s.conn.RemoteAddr().String())

	defer func() {
		duration := time.Since(s.startTime)
		s.logger.LogConnectionClosed(duration)
		s.Close()
	}()

	s.reply(ftp.Code220, "Welcome to "+s.server.config.BannerName)
	if s.writeErr != nil {
		return s.writeErr
	}

	return s.runCommandLoop()
}

// runCommandLoop reads one CRLF-terminated line at a time and
// dispatches it. End-of-stream exits cleanly; control-socket errors
// exit with the error; handler failures are answered on the wire and
// never terminate the loop.
func (s *Session) runCommandLoop() error {
	for {
		if timeout := s.server.config.IdleTimeout; timeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if len(line) > MaxCommandLength {
			s.logger.Warn("Command length limit exceeded",
				logging.F("command_length", len(line)),
				logging.F("max_length", MaxCommandLength))
			s.reply(ftp.Code500, "Command line too long.")
			if s.writeErr != nil {
				return s.writeErr
			}
			continue
		}

		if err := s.handleCommand(line); err != nil {
			if errors.Is(err, errSessionClosed) {
				return nil
			}
			return err
		}

		if s.writeErr != nil {
			return s.writeErr
		}
	}
}

// handleCommand parses and dispatches one command line. The returned
// error is non-nil only for session-terminating conditions (QUIT or a
// broken control socket); protocol failures are answered in place.
func (s *Session) handleCommand(line string) error {
	cmd := ftp.ParseCommand(line)

	logArg := cmd.Arg
	if cmd.Verb == ftp.CmdPASS {
		logArg = "***"
	}
	s.logger.LogCommand(cmd.Verb, logArg, s.username)

	if !cmd.IsKnown() {
		s.reply(ftp.Code502, "Command not implemented: "+cmd.Verb)
		return nil
	}

	if cmd.RequiresAuth() && !s.authenticated {
		s.reply(ftp.Code530, "Not logged in.")
		return nil
	}

	handler := commandHandlers[cmd.Verb]
	if err := handler(s, cmd.Arg); err != nil {
		if errors.Is(err, errSessionClosed) {
			return err
		}
		s.replyError(cmd.Verb, err)
	}
	return nil
}

// reply sends a single-line response on the control channel. The first
// write failure is recorded and ends the session once the current
// command has been handled. The mutex keeps the writer safe against a concurrent Close
// from the server's shutdown path.
func (s *Session) reply(code int, message string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if timeout := s.server.config.IdleTimeout; timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	_, err := s.writer.WriteString(ftp.FormatReply(code, message))
	if err == nil {
		err = s.writer.Flush()
	}
	s.mu.Unlock()

	if err != nil {
		if s.writeErr == nil {
			s.writeErr = err
		}
		return
	}
	s.logger.LogResponse(code, message)
}

// replyError converts a handler error to its one terminal reply.
// Native error text never reaches the client.
func (s *Session) replyError(verb string, err error) {
	s.logger.LogError(verb, err)

	var ferr *ftp.Error
	switch {
	case errors.As(err, &ferr):
		s.reply(ferr.Kind.Code(), ferr.Message)
	case errors.Is(err, storage.ErrOutsideRoot):
		s.reply(ftp.Code550, "Path is outside the served area.")
	case errors.Is(err, fs.ErrNotExist):
		s.reply(ftp.Code550, "No such file or directory.")
	case errors.Is(err, fs.ErrExist):
		s.reply(ftp.Code550, "Already exists.")
	case errors.Is(err, storage.ErrNotDirectory):
		s.reply(ftp.Code550, "Not a directory.")
	case errors.Is(err, storage.ErrNotRegularFile):
		s.reply(ftp.Code550, "Not a regular file.")
	case errors.Is(err, fs.ErrPermission):
		s.reply(ftp.Code550, "Permission denied.")
	default:
		s.reply(ftp.Code550, "Requested action not taken.")
	}
}

// Close shuts both channels. Safe to call from the server's shutdown
// path concurrently with the session goroutine; closing the control
// socket aborts any blocked read and ends the command loop.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	s.clearDataIntentLocked()
	_ = s.writer.Flush()
	_ = s.conn.Close()
}
