package server

import (
	"io"
	"strings"
	"time"

	"goftpd/ftp"
)

// Transfer commands follow one fixed sequence: validate the path,
// acquire the data stream (failure is 425 and nothing else happens),
// send 150, move the bytes, close the data channel, send the terminal
// reply. No control-channel response is ever interleaved mid-transfer.

// listTarget picks the directory a LIST/NLST applies to. Arguments
// that look like ls flags ("-la" and friends) are ignored: clients
// send them out of habit and RFC 959 leaves the behaviour undefined.
func (s *Session) listTarget(arg string) string {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return s.currentDir
	}
	return ftp.JoinVirtual(s.currentDir, arg)
}

// listEntries stats a virtual directory into formatter entries.
func (s *Session) listEntries(virtual string) ([]ftp.ListEntry, error) {
	infos, err := s.server.root.List(virtual)
	if err != nil {
		return nil, err
	}
	entries := make([]ftp.ListEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, ftp.ListEntry{
			Name:    info.Name(),
			Dir:     info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func (s *Session) handleLIST(arg string) error {
	entries, err := s.listEntries(s.listTarget(arg))
	if err != nil {
		return err
	}

	conn, err := s.openDataConn()
	if err != nil {
		s.clearDataIntent()
		s.reply(ftp.Code425, "Can't open data connection.")
		return nil
	}
	defer s.closeDataChannel(conn)

	s.reply(ftp.Code150, "Here comes the directory listing.")

	if _, err := io.WriteString(conn, ftp.FormatListing(entries, time.Now())); err != nil {
		s.reply(ftp.Code550, "Transfer failed.")
		return nil
	}

	s.reply(ftp.Code226, "Directory send OK.")
	return nil
}

func (s *Session) handleNLST(arg string) error {
	entries, err := s.listEntries(s.listTarget(arg))
	if err != nil {
		return err
	}

	conn, err := s.openDataConn()
	if err != nil {
		s.clearDataIntent()
		s.reply(ftp.Code425, "Can't open data connection.")
		return nil
	}
	defer s.closeDataChannel(conn)

	s.reply(ftp.Code150, "Here comes the file list.")

	if _, err := io.WriteString(conn, ftp.FormatNameList(entries)); err != nil {
		s.reply(ftp.Code550, "Transfer failed.")
		return nil
	}

	s.reply(ftp.Code226, "Transfer complete.")
	return nil
}

func (s *Session) handleRETR(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "RETR requires a file.")
	}

	// The restart position is single-shot: this transfer consumes it
	// whether or not it succeeds.
	offset := s.restartPos
	s.restartPos = 0

	target := ftp.JoinVirtual(s.currentDir, arg)
	file, err := s.server.root.OpenRead(target, offset)
	if err != nil {
		return err
	}
	defer file.Close()

	conn, err := s.openDataConn()
	if err != nil {
		s.clearDataIntent()
		s.reply(ftp.Code425, "Can't open data connection.")
		return nil
	}
	defer s.closeDataChannel(conn)

	s.reply(ftp.Code150, "Opening data connection for "+arg+".")

	start := time.Now()
	bytes, err := io.Copy(conn, file)
	s.logger.LogTransfer(ftp.CmdRETR, target, bytes, time.Since(start), err)
	if err != nil {
		s.reply(ftp.Code550, "Transfer failed.")
		return nil
	}

	s.reply(ftp.Code226, "Transfer complete")
	return nil
}

func (s *Session) handleSTOR(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "STOR requires a file.")
	}

	offset := s.restartPos
	s.restartPos = 0

	target := ftp.JoinVirtual(s.currentDir, arg)
	file, err := s.server.root.OpenWrite(target, offset)
	if err != nil {
		return err
	}

	conn, err := s.openDataConn()
	if err != nil {
		file.Close()
		s.clearDataIntent()
		s.reply(ftp.Code425, "Can't open data connection.")
		return nil
	}
	defer s.closeDataChannel(conn)

	s.reply(ftp.Code150, "Opening data connection for "+arg+".")

	start := time.Now()
	bytes, err := io.Copy(file, conn)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	s.logger.LogTransfer(ftp.CmdSTOR, target, bytes, time.Since(start), err)
	if err != nil {
		s.reply(ftp.Code550, "Transfer failed.")
		return nil
	}

	s.reply(ftp.Code226, "Transfer complete")
	return nil
}

func (s *Session) handleAPPE(arg string) error {
	if arg == "" {
		return ftp.NewError(ftp.KindBadArgument, "APPE requires a file.")
	}

	// APPE ignores the restart position; it stays armed for the next
	// RETR/STOR.
	target := ftp.JoinVirtual(s.currentDir, arg)
	file, err := s.server.root.OpenAppend(target)
	if err != nil {
		return err
	}

	conn, err := s.openDataConn()
	if err != nil {
		file.Close()
		s.clearDataIntent()
		s.reply(ftp.Code425, "Can't open data connection.")
		return nil
	}
	defer s.closeDataChannel(conn)

	s.reply(ftp.Code150, "Opening data connection for "+arg+".")

	start := time.Now()
	bytes, err := io.Copy(file, conn)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	s.logger.LogTransfer(ftp.CmdAPPE, target, bytes, time.Since(start), err)
	if err != nil {
		s.reply(ftp.Code550, "Transfer failed.")
		return nil
	}

	s.reply(ftp.Code226, "Transfer complete")
	return nil
}
