//go:build !windows

package notify

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// shortTempDir returns a temp dir whose path fits in a unix socket address.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "seer")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// listen opens a datagram listener at path.
func listen(t *testing.T, path string) *net.UnixConn {
	t.Helper()
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listen %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// receive reads one datagram with a deadline.
func receive(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4096)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	return string(buf[:n])
}

func fastOptions(socket, messages string) Options {
	return Options{
		SocketPath:     socket,
		MessagesPath:   messages,
		ConnectTimeout: 200 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
	}
}

func writeBatch(t *testing.T, path string, b Batch) {
	t.Helper()
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// ///////////////////////////////////////////////
// Ready Updates
// ///////////////////////////////////////////////

func TestReadyMessage(t *testing.T) {
	tests := []struct {
		ready bool
		pid   int
		want  string
	}{
		{true, 0, "READY=1"},
		{false, 0, "READY=0"},
		{true, 42, "READY=1\nMAINPID=42"},
		{false, 7, "READY=0\nMAINPID=7"},
	}
	for _, tt := range tests {
		if got := ReadyMessage(tt.ready, tt.pid); got != tt.want {
			t.Errorf("ReadyMessage(%v, %d) = %q, want %q", tt.ready, tt.pid, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	n := New(Options{SocketPath: "/x"})
	if n.opts.Network != DefaultNetwork || n.opts.ConnectTimeout != DefaultConnectTimeout || n.opts.PollInterval != DefaultPollInterval {
		t.Errorf("defaults not applied: %+v", n.opts)
	}
}

func TestSendReadyUpdate(t *testing.T) {
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "sock")
	l := listen(t, socket)

	n := New(fastOptions(socket, ""))
	if !n.SendReadyUpdate(true, 42) {
		t.Fatal("SendReadyUpdate returned false")
	}
	if got := receive(t, l); got != "READY=1\nMAINPID=42" {
		t.Errorf("datagram = %q", got)
	}

	if !n.SendReadyUpdate(false, 0) {
		t.Fatal("second SendReadyUpdate returned false")
	}
	if got := receive(t, l); got != "READY=0" {
		t.Errorf("datagram = %q, want READY=0", got)
	}
}

func TestSendReadyUpdate_NoSocket(t *testing.T) {
	dir := shortTempDir(t)
	n := New(fastOptions(filepath.Join(dir, "missing"), ""))

	start := time.Now()
	if n.SendReadyUpdate(true, 1) {
		t.Fatal("SendReadyUpdate succeeded without a listener")
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("gave up after %v, before the connect timeout", elapsed)
	}
}

func TestSendReadyUpdate_SocketAppearsLater(t *testing.T) {
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "late")

	opts := fastOptions(socket, "")
	opts.ConnectTimeout = 5 * time.Second
	opts.PollInterval = 250 * time.Millisecond
	n := New(opts)

	ready := make(chan *net.UnixConn, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: socket, Net: "unixgram"})
		if err != nil {
			ready <- nil
			return
		}
		ready <- conn
	}()

	ok := n.SendReadyUpdate(true, 0)
	l := <-ready
	if l == nil {
		t.Fatal("late listener failed to bind")
	}
	defer l.Close()

	if !ok {
		t.Fatal("SendReadyUpdate returned false after socket appeared")
	}
	if got := receive(t, l); got != "READY=1" {
		t.Errorf("datagram = %q", got)
	}
}

func TestConnectWrapsErrNoConnection(t *testing.T) {
	dir := shortTempDir(t)
	n := New(fastOptions(filepath.Join(dir, "missing"), ""))
	_, err := n.connect()
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("connect err = %v, want ErrNoConnection", err)
	}
}

// ///////////////////////////////////////////////
// Socket Waiter
// ///////////////////////////////////////////////

func TestSocketWaiter_WakesOnCreate(t *testing.T) {
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "sock")

	w := newSocketWaiter(socket)
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(socket, nil, 0o644)
	}()

	if !w.Wait(5 * time.Second) {
		t.Error("Wait did not wake on socket creation")
	}
}

func TestSocketWaiter_TimesOut(t *testing.T) {
	dir := shortTempDir(t)
	w := newSocketWaiter(filepath.Join(dir, "never"))
	defer w.Close()

	if w.Wait(30 * time.Millisecond) {
		t.Error("Wait reported an early wake with no file created")
	}
}

func TestSocketWaiter_MissingDirPolls(t *testing.T) {
	w := newSocketWaiter("/nonexistent-seer-dir/sock")
	defer w.Close()
	if !w.Polling() {
		t.Error("waiter on a missing directory should poll")
	}
}

// ///////////////////////////////////////////////
// Injected Messages
// ///////////////////////////////////////////////

func TestHasPendingInjections(t *testing.T) {
	dir := shortTempDir(t)
	path := filepath.Join(dir, "injected.json")
	n := New(fastOptions(filepath.Join(dir, "sock"), path))

	if n.HasPendingInjections() {
		t.Error("pending before file exists")
	}
	writeBatch(t, path, Batch{})
	if !n.HasPendingInjections() {
		t.Error("not pending after file written")
	}
	if New(Options{}).HasPendingInjections() {
		t.Error("empty messages path should never be pending")
	}
}

func TestValueUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    Value
		wantErr bool
	}{
		{`"1"`, "1", false},
		{`42`, "42", false},
		{`1.5`, "1.5", false},
		{`true`, "true", false},
		{`false`, "false", false},
		{`null`, "", true},
		{`[1]`, "", true},
		{`{"a":1}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v Value
			err := json.Unmarshal([]byte(tt.in), &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v != tt.want {
				t.Errorf("value = %q, want %q", v, tt.want)
			}
		})
	}
}

func TestMessageEncode(t *testing.T) {
	m := Message{NumberOfLines: 3, Lines: []Line{{"READY", "1"}, {"STATUS", "warming"}, {"MAINPID", "9"}}}
	if got := m.Encode(); got != "READY=1\nSTATUS=warming\nMAINPID=9" {
		t.Errorf("Encode = %q", got)
	}
	if got := (Message{}).Encode(); got != "" {
		t.Errorf("empty Encode = %q", got)
	}
}

func TestLoadBatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", `{"messages":[{"numberoflines":1,"lines":[{"key":"READY","value":"1"}],"sleepinseconds":0}]}`, false},
		{"numeric value", `{"messages":[{"numberoflines":1,"lines":[{"key":"MAINPID","value":42}],"sleepinseconds":0}]}`, false},
		{"empty batch", `{"messages":[]}`, false},
		{"line count mismatch", `{"messages":[{"numberoflines":2,"lines":[{"key":"READY","value":"1"}],"sleepinseconds":0}]}`, true},
		{"negative sleep", `{"messages":[{"numberoflines":0,"lines":[],"sleepinseconds":-1}]}`, true},
		{"not json", `READY=1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "injected.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadBatch(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadBatch err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedMessages) {
				t.Errorf("err = %v, want ErrMalformedMessages", err)
			}
		})
	}
}

func TestSendInjectedMessages(t *testing.T) {
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "sock")
	messages := filepath.Join(dir, "injected.json")
	l := listen(t, socket)

	writeBatch(t, messages, Batch{Messages: []Message{{
		NumberOfLines: 2,
		Lines:         []Line{{KeyReady, "1"}, {KeyMainPID, "42"}},
	}}})

	n := New(fastOptions(socket, messages))
	ready, pid, err := n.SendInjectedMessages()
	if err != nil {
		t.Fatalf("SendInjectedMessages: %v", err)
	}
	if !ready || pid != 42 {
		t.Errorf("got (ready=%v, pid=%d), want (true, 42)", ready, pid)
	}
	if got := receive(t, l); got != "READY=1\nMAINPID=42" {
		t.Errorf("datagram = %q", got)
	}
	if n.HasPendingInjections() {
		t.Error("messages file should be removed after sending")
	}
}

func TestSendInjectedMessages_LastValuesWin(t *testing.T) {
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "sock")
	messages := filepath.Join(dir, "injected.json")
	l := listen(t, socket)

	writeBatch(t, messages, Batch{Messages: []Message{
		{NumberOfLines: 2, Lines: []Line{{KeyReady, "1"}, {KeyMainPID, "10"}}},
		{NumberOfLines: 1, Lines: []Line{{"STATUS", "busy"}}},
		{NumberOfLines: 2, Lines: []Line{{KeyReady, "0"}, {KeyInjectedPID, "77"}}},
	}})

	ready, pid, err := New(fastOptions(socket, messages)).SendInjectedMessages()
	if err != nil {
		t.Fatal(err)
	}
	if ready || pid != 77 {
		t.Errorf("got (ready=%v, pid=%d), want (false, 77)", ready, pid)
	}

	want := []string{"READY=1\nMAINPID=10", "STATUS=busy", "READY=0\nINJECTED_PID=77"}
	for i, w := range want {
		if got := receive(t, l); got != w {
			t.Errorf("datagram %d = %q, want %q", i+1, got, w)
		}
	}
}

func TestSendInjectedMessages_NoSocket(t *testing.T) {
	dir := shortTempDir(t)
	messages := filepath.Join(dir, "injected.json")
	writeBatch(t, messages, Batch{Messages: []Message{{NumberOfLines: 1, Lines: []Line{{KeyMainPID, "5"}}}}})

	n := New(fastOptions(filepath.Join(dir, "missing"), messages))
	ready, pid, err := n.SendInjectedMessages()
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if ready || pid != 0 {
		t.Errorf("got (ready=%v, pid=%d), want (false, 0)", ready, pid)
	}
	if !n.HasPendingInjections() {
		t.Error("messages file should remain when nothing was sent")
	}
}

func TestSendInjectedMessages_Malformed(t *testing.T) {
	dir := shortTempDir(t)
	messages := filepath.Join(dir, "injected.json")
	if err := os.WriteFile(messages, []byte(`{"messages": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := New(fastOptions(filepath.Join(dir, "sock"), messages)).SendInjectedMessages()
	if !errors.Is(err, ErrMalformedMessages) {
		t.Fatalf("err = %v, want ErrMalformedMessages", err)
	}
	if !strings.Contains(err.Error(), "injected.json") {
		t.Errorf("error should name the file: %v", err)
	}
}
