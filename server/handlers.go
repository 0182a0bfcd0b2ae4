package server

import (
	"fmt"
	"strconv"
	"strings"

	"goftpd/ftp"
)

// Handlers for the verbs that complete on the control channel alone.
// Each sends its own positive reply, or returns an error that the loop
// maps to the one terminal error reply.

func (s *Session) handleUSER(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "USER requires a username.")
	}
	// A new USER restarts the login exchange; any previous
	// authentication is discarded.
	s.username = arg
	s.authenticated = false
	s.reply(ftp.Code331, "Password required for "+arg+".")
	return nil
}

func (s *Session) handlePASS(arg string) error {
	if s.username == "" {
		return ftp.NewError(ftp.KindSequence, "Login with USER first.")
	}
	if !s.server.authenticator.Authenticate(s.username, arg) {
		s.authenticated = false
		return ftp.NewError(ftp.KindNotAuthenticated, "Login incorrect.")
	}
	s.authenticated = true
	s.reply(ftp.Code230, "User "+s.username+" logged in.")
	return nil
}

func (s *Session) handleQUIT(_ string) error {
	s.reply(ftp.Code221, "Goodbye")
	return errSessionClosed
}

func (s *Session) handleNOOP(_ string) error {
	s.reply(ftp.Code200, "OK.")
	return nil
}

func (s *Session) handleSYST(_ string) error {
	s.reply(ftp.Code215, "UNIX Type: L8")
	return nil
}

func (s *Session) handleTYPE(arg string) error {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A", "A N":
		s.transferType = "A"
		s.reply(ftp.Code200, "Type set to A.")
	case "I", "L 8":
		s.transferType = "I"
		s.reply(ftp.Code200, "Type set to I.")
	default:
		return ftp.NewError(ftp.KindUnsupportedParameter, "Type not supported.")
	}
	return nil
}

func (s *Session) handlePWD(_ string) error {
	s.reply(ftp.Code257, fmt.Sprintf("%q is current directory", s.currentDir))
	return nil
}

func (s *Session) handleCWD(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "CWD requires a directory.")
	}

	// The virtual path is normalised before it is stored, so a CWD
	// containing ".." that stays inside the sandbox still round-trips
	// through PWD in canonical form.
	target := ftp.JoinVirtual(s.currentDir, arg)
	if _, err := s.server.root.StatDir(target); err != nil {
		return err
	}
	s.currentDir = target
	s.reply(ftp.Code250, "Directory changed to "+target+".")
	return nil
}

func (s *Session) handleCDUP(_ string) error {
	s.currentDir = ftp.ParentVirtual(s.currentDir)
	s.reply(ftp.Code250, "Directory changed to "+s.currentDir+".")
	return nil
}

func (s *Session) handleMKD(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "MKD requires a directory.")
	}
	target := ftp.JoinVirtual(s.currentDir, arg)
	if err := s.server.root.Mkdir(target); err != nil {
		return err
	}
	s.reply(ftp.Code257, fmt.Sprintf("%q created", target))
	return nil
}

func (s *Session) handleRMD(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "RMD requires a directory.")
	}
	if err := s.server.root.RemoveDir(ftp.JoinVirtual(s.currentDir, arg)); err != nil {
		return err
	}
	s.reply(ftp.Code250, "Directory removed.")
	return nil
}

func (s *Session) handleDELE(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "DELE requires a file.")
	}
	if err := s.server.root.RemoveFile(ftp.JoinVirtual(s.currentDir, arg)); err != nil {
		return err
	}
	s.reply(ftp.Code250, "File deleted.")
	return nil
}

func (s *Session) handleSIZE(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "SIZE requires a file.")
	}
	info, err := s.server.root.Stat(ftp.JoinVirtual(s.currentDir, arg))
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return ftp.NewError(ftp.KindNotFound, "Not a regular file.")
	}
	s.reply(ftp.Code213, strconv.FormatInt(info.Size(), 10))
	return nil
}

func (s *Session) handleMDTM(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "MDTM requires a file.")
	}
	info, err := s.server.root.Stat(ftp.JoinVirtual(s.currentDir, arg))
	if err != nil {
		return err
	}
	s.reply(ftp.Code213, info.ModTime().UTC().Format("20060102150405"))
	return nil
}

func (s *Session) handleRNFR(arg string) error {
	// RNFR starts a fresh rename exchange; a dangling source from an
	// earlier failed exchange is discarded either way.
	s.renameFrom = ""

	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "RNFR requires a path.")
	}
	host, err := s.server.root.Resolve(ftp.JoinVirtual(s.currentDir, arg))
	if err != nil {
		return err
	}
	if _, err := s.server.root.Stat(ftp.JoinVirtual(s.currentDir, arg)); err != nil {
		return err
	}
	s.renameFrom = host
	s.reply(ftp.Code350, "Ready for RNTO.")
	return nil
}

func (s *Session) handleRNTO(arg string) error {
	if s.renameFrom == "" {
		return ftp.NewError(ftp.KindSequence, "RNFR required first.")
	}
	from := s.renameFrom
	s.renameFrom = ""

	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "RNTO requires a path.")
	}
	if err := s.server.root.Rename(from, ftp.JoinVirtual(s.currentDir, arg)); err != nil {
		return err
	}
	s.reply(ftp.Code250, "Rename successful")
	return nil
}

func (s *Session) handleREST(arg string) error {
	offset, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || offset < 0 {
		return ftp.NewError(ftp.KindBadArgument, "Invalid restart position.")
	}
	s.restartPos = offset
	s.reply(ftp.Code350, fmt.Sprintf("Restart position accepted (%d)", offset))
	return nil
}
