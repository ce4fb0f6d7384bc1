package relay

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimsnab/go-lane"
)

const testTimeout = 5 * time.Second

type (
	testDisplay struct {
		mu    sync.Mutex
		lines []string
	}

	// testPeer speaks the framed protocol the way a relay client does.
	testPeer struct {
		t   *testing.T
		cxn net.Conn
		tw  *tcpWire
	}
)

var nextTestPort atomic.Int32

func init() {
	nextTestPort.Store(27100)
}

// Returns a port no other test in this run has used.
func testPort() int {
	return int(nextTestPort.Add(1))
}

func newTestDisplay() *testDisplay {
	return &testDisplay{}
}

func (td *testDisplay) Display(msg string) {
	td.mu.Lock()
	defer td.mu.Unlock()
	td.lines = append(td.lines, msg)
}

func (td *testDisplay) snapshot() []string {
	td.mu.Lock()
	defer td.mu.Unlock()
	return append([]string{}, td.lines...)
}

func (td *testDisplay) count(text string) int {
	n := 0
	for _, line := range td.snapshot() {
		if line == text {
			n++
		}
	}
	return n
}

func (td *testDisplay) has(text string) bool {
	return td.count(text) > 0
}

func (td *testDisplay) waitForCount(t *testing.T, text string, n int) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if td.count(text) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d of %q; display has:\n%s", n, text, strings.Join(td.snapshot(), "\n"))
}

func (td *testDisplay) waitFor(t *testing.T, text string) {
	t.Helper()
	td.waitForCount(t, text, 1)
}

func testLane() lane.Lane {
	return lane.NewTestingLane(context.Background())
}

// Starts a server on a fresh port and registers its teardown.
func startTestServer(t *testing.T, cfg *ServerConfig) (*Server, *testDisplay) {
	t.Helper()

	if cfg == nil {
		cfg = &ServerConfig{}
	}
	if cfg.Port == 0 {
		cfg.Port = testPort()
	}
	cfg.Endpoint = "127.0.0.1"

	td := newTestDisplay()
	s := NewServer(testLane(), td, cfg)
	if err := s.Listen(); err != nil {
		t.Fatalf("listen on %d: %s", cfg.Port, err)
	}
	t.Cleanup(s.Quit)

	td.waitFor(t, "Server listening for connections on port "+strconv.Itoa(cfg.Port))
	return s, td
}

func dialTestPeer(t *testing.T, port int) *testPeer {
	t.Helper()

	cxn, err := net.DialTimeout("tcp", joinEndpoint("127.0.0.1", port), testTimeout)
	if err != nil {
		t.Fatalf("dial %d: %s", port, err)
	}
	tp := &testPeer{t: t, cxn: cxn, tw: newTcpWire(cxn, testTimeout)}
	t.Cleanup(func() { cxn.Close() })
	return tp
}

// Dials and waits until the server has registered the connection.
func connectTestPeer(t *testing.T, s *Server, td *testDisplay) *testPeer {
	t.Helper()

	before := td.count("A client has connected")
	tp := dialTestPeer(t, s.Port())
	td.waitForCount(t, "A client has connected", before+1)
	return tp
}

func (tp *testPeer) send(msg string) {
	tp.t.Helper()
	if err := tp.tw.writeMessage(msg); err != nil {
		tp.t.Fatalf("send %q: %s", msg, err)
	}
}

func (tp *testPeer) receive() string {
	tp.t.Helper()

	tp.cxn.SetReadDeadline(time.Now().Add(testTimeout))
	msg, err := tp.tw.readMessage()
	if err != nil {
		tp.t.Fatalf("receive: %s", err)
	}
	return msg
}

func (tp *testPeer) expect(want string) {
	tp.t.Helper()
	if got := tp.receive(); got != want {
		tp.t.Errorf("received %q, want %q", got, want)
	}
}

// Fails if anything arrives within a short window.
func (tp *testPeer) expectNothing() {
	tp.t.Helper()

	tp.cxn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	msg, err := tp.tw.readMessage()
	if err == nil {
		tp.t.Errorf("unexpected message %q", msg)
		return
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		tp.t.Errorf("unexpected read error %s", err)
	}
}

// Waits for the server to drop the connection.
func (tp *testPeer) expectClosed() {
	tp.t.Helper()

	tp.cxn.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		_, err := tp.tw.readMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			tp.t.Fatal("connection was not closed")
		}
		return
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
