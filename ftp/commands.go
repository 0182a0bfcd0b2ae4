// Package ftp provides FTP protocol primitives for goftpd: command
// parsing, reply codes, the error taxonomy, virtual path handling and
// directory listing formatting.
package ftp

import "strings"

// Command name constants
const (
	CmdUSER = "USER"
	CmdPASS = "PASS"
	CmdQUIT = "QUIT"
	CmdNOOP = "NOOP"
	CmdSYST = "SYST"
	CmdTYPE = "TYPE"
	CmdPWD  = "PWD"
	CmdXPWD = "XPWD"
	CmdCWD  = "CWD"
	CmdCDUP = "CDUP"
	CmdMKD  = "MKD"
	CmdXMKD = "XMKD"
	CmdRMD  = "RMD"
	CmdDELE = "DELE"
	CmdSIZE = "SIZE"
	CmdMDTM = "MDTM"
	CmdRNFR = "RNFR"
	CmdRNTO = "RNTO"
	CmdPORT = "PORT"
	CmdPASV = "PASV"
	CmdREST = "REST"
	CmdLIST = "LIST"
	CmdNLST = "NLST"
	CmdRETR = "RETR"
	CmdSTOR = "STOR"
	CmdAPPE = "APPE"
)

// Command represents a single FTP command line: a verb and an optional
// argument. The argument keeps its original spelling; only the verb is
// normalised to upper case.
type Command struct {
	Verb string
	Arg  string
}

// knownCommands is the set of verbs this server implements.
var knownCommands = map[string]bool{
	CmdUSER: true,
	CmdPASS: true,
	CmdQUIT: true,
	CmdNOOP: true,
	CmdSYST: true,
	CmdTYPE: true,
	CmdPWD:  true,
	CmdXPWD: true,
	CmdCWD:  true,
	CmdCDUP: true,
	CmdMKD:  true,
	CmdXMKD: true,
	CmdRMD:  true,
	CmdDELE: true,
	CmdSIZE: true,
	CmdMDTM: true,
	CmdRNFR: true,
	CmdRNTO: true,
	CmdPORT: true,
	CmdPASV: true,
	CmdREST: true,
	CmdLIST: true,
	CmdNLST: true,
	CmdRETR: true,
	CmdSTOR: true,
	CmdAPPE: true,
}

// preAuthCommands may be issued before a successful login.
var preAuthCommands = map[string]bool{
	CmdUSER: true,
	CmdPASS: true,
	CmdQUIT: true,
	CmdNOOP: true,
}

// ParseCommand splits a trimmed command line into verb and argument.
// The split is on the first space only, so arguments may contain
// embedded spaces (file names frequently do).
func ParseCommand(line string) Command {
	parts := strings.SplitN(line, " ", 2)
	cmd := Command{Verb: strings.ToUpper(parts[0])}
	if len(parts) > 1 {
		cmd.Arg = parts[1]
	}
	return cmd
}

// IsKnown reports whether the verb is implemented by this server.
func (c Command) IsKnown() bool {
	return knownCommands[c.Verb]
}

// RequiresAuth reports whether the verb demands a completed login.
func (c Command) RequiresAuth() bool {
	return !preAuthCommands[c.Verb]
}
