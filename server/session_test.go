package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"goftpd/logging"
)

// Mock connection for testing
type mockConn struct {
	readBuffer  *bytes.Buffer
	writeBuffer *bytes.Buffer
	closed      bool
}

func newMockConn() *mockConn {
	return &mockConn{
		readBuffer:  &bytes.Buffer{},
		writeBuffer: &bytes.Buffer{},
	}
}

func (m *mockConn) Read(b []byte) (int, error) {
	return m.readBuffer.Read(b)
}

func (m *mockConn) Write(b []byte) (int, error) {
	return m.writeBuffer.Write(b)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2121}
}

func (m *mockConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
}

func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockConn) writeInput(data string) {
	m.readBuffer.WriteString(data)
}

func (m *mockConn) getOutput() string {
	return m.writeBuffer.String()
}

func discardLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	return logging.NewWriterLogger(&cfg, io.Discard)
}

// newTestServer builds a server around a temp root with a single user
// u/pw. The control listener is never bound.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &Config{
		Root:   t.TempDir(),
		Users:  map[string]string{"u": "pw"},
		Logger: discardLogger(),
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

// runSession feeds the input through a full session and returns the
// control-channel output.
func runSession(t *testing.T, srv *Server, input string) string {
	t.Helper()
	conn := newMockConn()
	conn.writeInput(input)

	sess := NewSession(conn, srv)
	if err := sess.Handle(); err != nil {
		t.Fatalf("Session handle failed: %v", err)
	}
	return conn.getOutput()
}

func TestSessionGreetingAndQuit(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "QUIT\r\n")

	if !strings.HasPrefix(output, "220 Welcome to goftpd\r\n") {
		t.Errorf("Expected welcome banner first, got %q", output)
	}
	if !strings.Contains(output, "221 Goodbye\r\n") {
		t.Errorf("Expected 221 goodbye, got %q", output)
	}
}

func TestSessionPreAuthGate(t *testing.T) {
	srv := newTestServer(t)

	// Every verb other than USER, PASS, QUIT, NOOP is refused with 530
	// before login
	for _, cmd := range []string{"SYST", "PWD", "CWD dir1", "LIST", "RETR f", "STOR f",
		"PASV", "PORT 127,0,0,1,4,1", "REST 5", "MKD d", "DELE f", "SIZE f"} {
		output := runSession(t, srv, cmd+"\r\n")
		if !strings.Contains(output, "530 Not logged in.\r\n") {
			t.Errorf("Command %q: expected 530, got %q", cmd, output)
		}
	}

	// NOOP works without login
	output := runSession(t, srv, "NOOP\r\n")
	if !strings.Contains(output, "200 OK.\r\n") {
		t.Errorf("Expected 200 for pre-auth NOOP, got %q", output)
	}
}

func TestSessionLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nPWD\r\nQUIT\r\n")

	for _, want := range []string{
		"331 Password required for u.\r\n",
		"230 User u logged in.\r\n",
		"257 \"/\" is current directory\r\n",
		"221 Goodbye\r\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got %q", want, output)
		}
	}
}

func TestSessionLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS wrong\r\nPWD\r\n")

	if !strings.Contains(output, "530 Login incorrect.\r\n") {
		t.Errorf("Expected 530 for bad password, got %q", output)
	}
	if !strings.Contains(output, "530 Not logged in.\r\n") {
		t.Errorf("Expected PWD after failed login to be refused, got %q", output)
	}
}

func TestSessionPassWithoutUser(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "PASS pw\r\n")

	if !strings.Contains(output, "503 Login with USER first.\r\n") {
		t.Errorf("Expected 503, got %q", output)
	}
}

func TestSessionUserResetsAuthentication(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nUSER u\r\nPWD\r\n")

	// The second USER restarts the login exchange, so PWD is refused
	if !strings.Contains(output, "530 Not logged in.\r\n") {
		t.Errorf("Expected 530 after USER reset, got %q", output)
	}
}

func TestSessionUnknownCommand(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "FEAT\r\n")

	if !strings.Contains(output, "502 Command not implemented: FEAT\r\n") {
		t.Errorf("Expected 502, got %q", output)
	}
}

func TestSessionSYSTAndTYPE(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nSYST\r\ntype a\r\nTYPE I\r\nTYPE E\r\n")

	for _, want := range []string{
		"215 UNIX Type: L8\r\n",
		"200 Type set to A.\r\n",
		"200 Type set to I.\r\n",
		"504 Type not supported.\r\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got %q", want, output)
		}
	}
}

func TestSessionCWDAndPWD(t *testing.T) {
	srv := newTestServer(t)
	if err := os.Mkdir(filepath.Join(srv.Root(), "dir1"), 0755); err != nil {
		t.Fatalf("Failed to create dir1: %v", err)
	}

	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nCWD dir1\r\nPWD\r\nCDUP\r\nPWD\r\n")

	for _, want := range []string{
		"250 Directory changed to /dir1.\r\n",
		"257 \"/dir1\" is current directory\r\n",
		"250 Directory changed to /.\r\n",
		"257 \"/\" is current directory\r\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got %q", want, output)
		}
	}
}

func TestSessionCWDSandboxViolation(t *testing.T) {
	srv := newTestServer(t)
	if err := os.Mkdir(filepath.Join(srv.Root(), "dir1"), 0755); err != nil {
		t.Fatalf("Failed to create dir1: %v", err)
	}

	// "../../etc" normalises to "/etc" inside the sandbox, which does
	// not exist; the working directory must not change either way
	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nCWD dir1\r\nCWD ../../etc\r\nPWD\r\n")

	if !strings.Contains(output, "550 ") {
		t.Errorf("Expected 550 for escaping CWD, got %q", output)
	}
	if !strings.Contains(output, "257 \"/dir1\" is current directory\r\n") {
		t.Errorf("Expected working directory unchanged, got %q", output)
	}
}

func TestSessionCWDNormalisesDotDot(t *testing.T) {
	srv := newTestServer(t)
	if err := os.MkdirAll(filepath.Join(srv.Root(), "a", "b"), 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}

	// ".." that stays inside the sandbox is accepted and the stored
	// virtual path is the normalised form
	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nCWD /a/b\r\nCWD ../b\r\nPWD\r\n")

	if !strings.Contains(output, "257 \"/a/b\" is current directory\r\n") {
		t.Errorf("Expected normalised virtual path, got %q", output)
	}
}

func TestSessionMKDAndRMD(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nMKD fresh\r\nMKD fresh\r\nRMD fresh\r\nRMD fresh\r\n")

	if !strings.Contains(output, "257 \"/fresh\" created\r\n") {
		t.Errorf("Expected 257 for MKD, got %q", output)
	}
	if !strings.Contains(output, "550 Already exists.\r\n") {
		t.Errorf("Expected 550 for duplicate MKD, got %q", output)
	}
	if !strings.Contains(output, "250 Directory removed.\r\n") {
		t.Errorf("Expected 250 for RMD, got %q", output)
	}
	if !strings.Contains(output, "550 No such file or directory.\r\n") {
		t.Errorf("Expected 550 for repeated RMD, got %q", output)
	}
}

func TestSessionDELE(t *testing.T) {
	srv := newTestServer(t)
	if err := os.WriteFile(filepath.Join(srv.Root(), "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	output := runSession(t, srv, "USER u\r\nPASS pw\r\nDELE f.txt\r\nDELE f.txt\r\n")

	if !strings.Contains(output, "250 File deleted.\r\n") {
		t.Errorf("Expected 250 for DELE, got %q", output)
	}
	if !strings.Contains(output, "550 No such file or directory.\r\n") {
		t.Errorf("Expected 550 for repeated DELE, got %q", output)
	}
}

func TestSessionSIZE(t *testing.T) {
	srv := newTestServer(t)
	if err := os.WriteFile(filepath.Join(srv.Root(), "hello.txt"), []byte("Hello, FTP!\n"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(srv.Root(), "dir1"), 0755); err != nil {
		t.Fatalf("Failed to create dir1: %v", err)
	}

	output := runSession(t, srv, "USER u\r\nPASS pw\r\nSIZE hello.txt\r\nSIZE dir1\r\nSIZE nope\r\n")

	if !strings.Contains(output, "213 12\r\n") {
		t.Errorf("Expected 213 12, got %q", output)
	}
	// Directories and missing files both fail with 550
	if strings.Count(output, "550 ") != 2 {
		t.Errorf("Expected two 550 replies, got %q", output)
	}
}

func TestSessionMDTM(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(srv.Root(), "hello.txt")
	if err := os.WriteFile(path, []byte("Hello, FTP!\n"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	mtime := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}

	output := runSession(t, srv, "USER u\r\nPASS pw\r\nMDTM hello.txt\r\n")

	if !strings.Contains(output, "213 20240102030405\r\n") {
		t.Errorf("Expected 213 20240102030405, got %q", output)
	}
}

func TestSessionRename(t *testing.T) {
	srv := newTestServer(t)
	if err := os.WriteFile(filepath.Join(srv.Root(), "hello.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	output := runSession(t, srv,
		"USER u\r\nPASS pw\r\nRNFR hello.txt\r\nRNTO hi.txt\r\nSIZE hi.txt\r\n")

	if !strings.Contains(output, "350 Ready for RNTO.\r\n") {
		t.Errorf("Expected 350 for RNFR, got %q", output)
	}
	if !strings.Contains(output, "250 Rename successful\r\n") {
		t.Errorf("Expected 250 for RNTO, got %q", output)
	}
	if !strings.Contains(output, "213 1\r\n") {
		t.Errorf("Expected renamed file to be visible, got %q", output)
	}
}

func TestSessionRNTOWithoutRNFR(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nRNTO hi.txt\r\n")

	if !strings.Contains(output, "503 RNFR required first.\r\n") {
		t.Errorf("Expected 503, got %q", output)
	}
}

func TestSessionRNFRMissingTargetClearsState(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nRNFR ghost\r\nRNTO hi.txt\r\n")

	if !strings.Contains(output, "550 No such file or directory.\r\n") {
		t.Errorf("Expected 550 for missing RNFR target, got %q", output)
	}
	if !strings.Contains(output, "503 RNFR required first.\r\n") {
		t.Errorf("Expected RNTO after failed RNFR to be refused, got %q", output)
	}
}

func TestSessionREST(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nREST 7\r\nREST abc\r\nREST -5\r\n")

	if !strings.Contains(output, "350 Restart position accepted (7)\r\n") {
		t.Errorf("Expected 350 for REST 7, got %q", output)
	}
	if strings.Count(output, "501 Invalid restart position.\r\n") != 2 {
		t.Errorf("Expected two 501 replies, got %q", output)
	}
}

func TestSessionPORTParsing(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		arg  string
		want string
	}{
		{"127,0,0,1,4,210", "200 PORT command successful.\r\n"},
		{"127,0,0,1,4", "501 "},
		{"256,0,0,1,4,210", "501 "},
		{"127,0,0,1,4,999", "501 "},
		{"a,b,c,d,e,f", "501 "},
		{"127,0,0,1,0,0", "501 "},
	}

	for _, tt := range tests {
		output := runSession(t, srv, fmt.Sprintf("USER u\r\nPASS pw\r\nPORT %s\r\n", tt.arg))
		if !strings.Contains(output, tt.want) {
			t.Errorf("PORT %s: expected %q, got %q", tt.arg, tt.want, output)
		}
	}
}

func TestSessionPASVAdvertisesControlAddress(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nPASV\r\nQUIT\r\n")

	// The advertised octets are those of the control socket's local
	// address (127.0.0.1 for the mock connection)
	if !strings.Contains(output, "227 Entering Passive Mode (127,0,0,1,") {
		t.Errorf("Expected 227 with local address, got %q", output)
	}
}

func TestSessionTransferWithoutDataChannel(t *testing.T) {
	srv := newTestServer(t)
	if err := os.WriteFile(filepath.Join(srv.Root(), "f"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	output := runSession(t, srv, "USER u\r\nPASS pw\r\nLIST\r\nRETR f\r\n")

	if strings.Count(output, "425 Can't open data connection.\r\n") != 2 {
		t.Errorf("Expected two 425 replies, got %q", output)
	}
}

func TestSessionRETRMissingFileBeforeDataChannel(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "USER u\r\nPASS pw\r\nRETR ghost\r\n")

	// Path validation happens before the data channel is touched, so
	// the failure is 550, not 425
	if !strings.Contains(output, "550 No such file or directory.\r\n") {
		t.Errorf("Expected 550 for missing RETR target, got %q", output)
	}
}

func TestSessionCommandTooLong(t *testing.T) {
	srv := newTestServer(t)
	long := "NOOP " + strings.Repeat("x", MaxCommandLength)
	output := runSession(t, srv, long+"\r\nNOOP\r\n")

	if !strings.Contains(output, "500 Command line too long.\r\n") {
		t.Errorf("Expected 500 for oversized command, got %q", output)
	}
	// The session keeps going afterwards
	if !strings.Contains(output, "200 OK.\r\n") {
		t.Errorf("Expected session to continue, got %q", output)
	}
}

func TestSessionEmptyLinesIgnored(t *testing.T) {
	srv := newTestServer(t)
	output := runSession(t, srv, "\r\n\r\nNOOP\r\n")

	if !strings.Contains(output, "200 OK.\r\n") {
		t.Errorf("Expected NOOP to work after blank lines, got %q", output)
	}
	if strings.Contains(output, "502 ") {
		t.Errorf("Blank lines must not produce replies, got %q", output)
	}
}
