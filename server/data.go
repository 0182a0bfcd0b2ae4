package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"goftpd/ftp"
)

// The data channel carries exactly one transfer. A session holds at
// most one pending intent — the endpoint from the last PORT, or the
// listener from the last PASV. A transfer command that reaches the
// data-channel step consumes and clears the intent, whether or not the
// transfer then succeeds. A transfer command refused before that step
// (missing argument, path or file error) leaves the intent in place.

// handlePORT parses "h1,h2,h3,h4,p1,p2" and records the active-mode
// endpoint. Any prior intent is discarded.
func (s *Session) handlePORT(arg string) error {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		return ftp.NewError(ftp.KindBadArgument, "Syntax error in parameters or arguments.")
	}

	nums := make([]int, 6)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return ftp.NewError(ftp.KindBadArgument, "Syntax error in parameters or arguments.")
		}
		nums[i] = n
	}

	host := strings.Join(parts[0:4], ".")
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		return ftp.NewError(ftp.KindBadArgument, "Invalid IP address.")
	}

	port := nums[4]<<8 | nums[5]
	if port == 0 {
		return ftp.NewError(ftp.KindBadArgument, "Invalid port number.")
	}

	s.setActiveIntent(net.JoinHostPort(host, strconv.Itoa(port)))
	s.reply(ftp.Code200, "PORT command successful.")
	return nil
}

// handlePASV opens a listener for the client to connect to and
// advertises it. The advertised host octets are those of the control
// socket's local address.
func (s *Session) handlePASV(_ string) error {
	ip := s.controlLocalIP()
	if ip == nil {
		return ftp.NewError(ftp.KindDataChannelUnavailable, "Can't determine passive address.")
	}

	ln, err := s.listenPassive()
	if err != nil {
		// A failed PASV still supersedes whatever intent came before
		s.clearDataIntent()
		return ftp.NewError(ftp.KindDataChannelUnavailable, "Can't open passive connection.")
	}
	s.setPassiveIntent(ln)

	port := ln.Addr().(*net.TCPAddr).Port
	s.reply(ftp.Code227, fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256))
	return nil
}

// controlLocalIP returns the IPv4 address of this session's end of the
// control connection.
func (s *Session) controlLocalIP() net.IP {
	addr, ok := s.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil
	}
	return addr.IP.To4()
}

// listenPassive binds a listener for one passive transfer. With a
// configured range, ports are probed round-robin so concurrent
// sessions spread out; without one the kernel picks an ephemeral port.
func (s *Session) listenPassive() (net.Listener, error) {
	cfg := s.server.config
	if cfg.PasvPortMin == 0 {
		return net.Listen("tcp", ":0")
	}

	rangeLen := int32(cfg.PasvPortMax - cfg.PasvPortMin + 1)
	startOffset := atomic.AddInt32(&s.server.nextPasvPort, 1)

	for i := int32(0); i < rangeLen; i++ {
		offset := (startOffset + i) % rangeLen
		port := cfg.PasvPortMin + int(offset)
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no available ports in range [%d, %d]", cfg.PasvPortMin, cfg.PasvPortMax)
}

func (s *Session) setActiveIntent(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDataIntentLocked()
	s.activeAddr = addr
}

func (s *Session) setPassiveIntent(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDataIntentLocked()
	s.pasvListener = ln
}

// clearDataIntent drops any pending intent and closes its socket.
func (s *Session) clearDataIntent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearDataIntentLocked()
}

func (s *Session) clearDataIntentLocked() {
	if s.pasvListener != nil {
		_ = s.pasvListener.Close()
		s.pasvListener = nil
	}
	s.activeAddr = ""
}

// openDataConn establishes the data connection for one transfer:
// exactly one accept (passive) or one connect (active). Callers hand
// the connection to closeDataChannel when the transfer ends.
func (s *Session) openDataConn() (net.Conn, error) {
	s.mu.Lock()
	ln := s.pasvListener
	active := s.activeAddr
	s.mu.Unlock()

	timeout := s.server.config.DataTimeout

	switch {
	case ln != nil:
		if tcpLn, ok := ln.(*net.TCPListener); ok && timeout > 0 {
			_ = tcpLn.SetDeadline(time.Now().Add(timeout))
		}
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("passive accept: %w", err)
		}
		// Exactly one accept per transfer; the listener is done
		_ = ln.Close()
		s.logger.LogDataChannel("passive", "established", conn.RemoteAddr().String())
		return conn, nil

	case active != "":
		conn, err := net.DialTimeout("tcp", active, timeout)
		if err != nil {
			return nil, fmt.Errorf("active connect to %s: %w", active, err)
		}
		s.logger.LogDataChannel("active", "established", active)
		return conn, nil

	default:
		return nil, ftp.NewError(ftp.KindDataChannelUnavailable, "Use PORT or PASV first.")
	}
}

// closeDataChannel ends a transfer's data connection and clears the
// intent, so sequential transfers never share a data socket.
func (s *Session) closeDataChannel(conn net.Conn) {
	if conn != nil {
		addr := conn.RemoteAddr().String()
		_ = conn.Close()
		s.logger.LogDataChannel("", "closed", addr)
	}
	s.clearDataIntent()
}
