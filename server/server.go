package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"goftpd/auth"
	"goftpd/logging"
	"goftpd/storage"
)

// Server represents an FTP server instance.
type Server struct {
	config        *Config
	logger        logging.Logger
	root          *storage.Root
	authenticator auth.Authenticator

	// control listener, guarded so Shutdown can close it safely
	listener   net.Listener
	listenerMu sync.Mutex

	// active sessions tracking
	sessions   map[*Session]struct{}
	sessionsMu sync.Mutex
	sessionsWG sync.WaitGroup

	// shutdown flag
	shuttingDown int32

	// round-robin cursor for the passive port range
	nextPasvPort int32
}

// NewServer creates a new FTP server with the specified configuration.
func NewServer(config *Config) (*Server, error) {
	config.EnsureDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logCfg := config.LogConfig()
		var err error
		logger, err = logging.NewLogger(&logCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise logger: %w", err)
		}
	}

	root, err := storage.NewRoot(config.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory: %w", err)
	}

	authenticator := config.Authenticator
	if authenticator == nil {
		store := auth.NewMemoryStore()
		for name, password := range config.Users {
			store.AddUser(name, password)
		}
		authenticator = store
	}

	return &Server{
		config:        config,
		logger:        logger,
		root:          root,
		authenticator: authenticator,
		sessions:      make(map[*Session]struct{}),
	}, nil
}

// Root returns the canonical sandbox root path.
func (s *Server) Root() string {
	return s.root.Path()
}

// Addr returns the control listener address, or nil before the server
// is listening. Useful when binding port 0 in tests.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the control listener, installs a SIGINT/SIGTERM handler
// for graceful shutdown, and serves until the listener is closed.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.ListenAddress, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutdown signal received, initiating graceful shutdown")
		if err := s.Shutdown(ctx); err != nil {
			s.logger.Error("Graceful shutdown failed", err)
		}
	}()

	return s.Serve(listener)
}

// Serve accepts control connections on the provided listener until it
// is closed. Accept errors other than closure are logged and the loop
// continues; a session failure never affects its peers.
func (s *Server) Serve(listener net.Listener) error {
	s.listenerMu.Lock()
	s.listener = listener
	// A Shutdown that ran before the listener was recorded had nothing
	// to close; close it here so the accept loop exits at once.
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		_ = listener.Close()
	}
	s.listenerMu.Unlock()

	s.logger.Info("goftpd server started",
		logging.F("addr", listener.Addr().String()),
		logging.F("root", s.root.Path()),
		logging.F("log_level", s.config.LogLevel))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("Listener closed, exiting accept loop")
				return nil
			}
			s.logger.Warn("Failed to accept connection", logging.F("err", err))
			continue
		}

		if s.config.MaxSessions > 0 && s.activeSessionCount() >= s.config.MaxSessions {
			s.logger.Warn("Session limit reached, refusing connection",
				logging.F("remote_addr", conn.RemoteAddr().String()),
				logging.F("max_sessions", s.config.MaxSessions))
			// Advisory limit: greet with 421 and close immediately
			_, _ = conn.Write([]byte("421 Too many connections.\r\n"))
			_ = conn.Close()
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	// A crashing session must not take the server or its peers down
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session panic", fmt.Errorf("%v", r),
				logging.F("remote_addr", conn.RemoteAddr().String()))
			_ = conn.Close()
		}
	}()

	sess := NewSession(conn, s)
	s.registerSession(sess)
	defer s.unregisterSession(sess)

	if err := sess.Handle(); err != nil {
		s.logger.Debug("Session ended with error", logging.F("err", err))
	}
}

func (s *Server) registerSession(sess *Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[sess] = struct{}{}
	s.sessionsWG.Add(1)
}

func (s *Server) unregisterSession(sess *Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, sess)
	s.sessionsWG.Done()
}

func (s *Server) activeSessionSnapshot() []*Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (s *Server) activeSessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeListener() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Shutdown stops accepting connections, asks every active session to
// close, and waits for them to finish or for ctx to expire. Closing a
// session's sockets aborts any blocked read or running transfer.
func (s *Server) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.shuttingDown, 0, 1) {
		// already shutting down
		return nil
	}

	s.closeListener()

	count := s.activeSessionCount()
	if count == 0 {
		s.logger.Info("No active sessions; shutdown complete")
		return nil
	}

	s.logger.Info("Shutting down: closing active sessions", logging.F("sessions", count))

	for _, sess := range s.activeSessionSnapshot() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.sessionsWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("All sessions closed; shutdown complete")
		return nil
	}
}
