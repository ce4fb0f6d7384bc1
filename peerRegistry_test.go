package relay

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type hookRecorder struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	messages     []string
}

func (hr *hookRecorder) ServerStarted(port int) {}
func (hr *hookRecorder) ServerStopped()         {}
func (hr *hookRecorder) ServerClosed()          {}

func (hr *hookRecorder) ClientConnected(p Peer) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.connected++
}

func (hr *hookRecorder) ClientDisconnected(p Peer) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.disconnected++
}

func (hr *hookRecorder) MessageFromClient(msg string, p Peer) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.messages = append(hr.messages, msg)
}

func (hr *hookRecorder) disconnects() int {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	return hr.disconnected
}

// Connects a peer over an in-memory pipe. The returned wire is the remote
// end.
func pipePeer(t *testing.T, reg *peerRegistry, hooks ServerHooks) (*clientCxn, *tcpWire) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })

	cc := newClientCxn(testLane(), newTcpWire(local, testTimeout), reg, hooks, nil)
	if cc == nil {
		t.Fatal("peer refused")
	}
	return cc, newTcpWire(remote, testTimeout)
}

func readPipe(t *testing.T, tw *tcpWire) string {
	t.Helper()

	tw.cxn.SetReadDeadline(time.Now().Add(testTimeout))
	msg, err := tw.readMessage()
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	return msg
}

func TestRegistryBroadcastSurvivesClosedPeer(t *testing.T) {
	reg := newPeerRegistry(testLane())
	hr := &hookRecorder{}

	_, w1 := pipePeer(t, reg, hr)
	cc2, w2 := pipePeer(t, reg, hr)
	_, w3 := pipePeer(t, reg, hr)

	if reg.count() != 3 {
		t.Fatalf("count is %d", reg.count())
	}

	w2.close()
	waitUntil(t, "peer 2 to unregister", func() bool { return reg.count() == 2 })
	if !cc2.IsCloseRequested() {
		t.Error("disconnected peer not marked closing")
	}

	sent, err := reg.broadcast("to the rest")
	if err != nil || sent != 2 {
		t.Fatalf("sent %d, err %v", sent, err)
	}
	if readPipe(t, w1) != "to the rest" || readPipe(t, w3) != "to the rest" {
		t.Error("broadcast not delivered")
	}

	if err = cc2.Send("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("send to a closed peer: %v", err)
	}

	reg.closeAll()
	if hr.disconnects() != 3 {
		t.Errorf("%d disconnects", hr.disconnects())
	}
}

func TestRegistryDropsStalledPeer(t *testing.T) {
	reg := newPeerRegistry(testLane())
	hr := &hookRecorder{}

	_, live := pipePeer(t, reg, hr)
	stalled, _ := pipePeer(t, reg, hr)

	// the first message occupies the stalled peer's write pump, the rest fill
	// its outbox
	var err error
	for i := 0; i <= outboxSize+1 && err == nil; i++ {
		err = stalled.Send("x")
	}
	if !errors.Is(err, ErrOutboxFull) {
		t.Fatalf("got %v", err)
	}
	if !stalled.IsCloseRequested() {
		t.Error("stalled peer not closed")
	}

	waitUntil(t, "stalled peer to unregister", func() bool { return reg.count() == 1 })

	if _, err = reg.broadcast("still flowing"); err != nil {
		t.Fatal(err)
	}
	if readPipe(t, live) != "still flowing" {
		t.Error("broadcast not delivered")
	}

	reg.closeAll()
}

func TestRegistryClosedRefusesPeers(t *testing.T) {
	reg := newPeerRegistry(testLane())
	hr := &hookRecorder{}

	reg.closeAll()

	local, remote := net.Pipe()
	defer remote.Close()

	if newClientCxn(testLane(), newTcpWire(local, testTimeout), reg, hr, nil) != nil {
		t.Fatal("closed registry accepted a peer")
	}
	if reg.count() != 0 {
		t.Errorf("count is %d", reg.count())
	}

	// the refused wire was closed
	remote.SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := remote.Read(make([]byte, 1)); err == nil {
		t.Error("refused wire still open")
	}
}

func TestRegistryRelaysInOrder(t *testing.T) {
	reg := newPeerRegistry(testLane())
	hr := &hookRecorder{}

	cc, w := pipePeer(t, reg, hr)
	go func() {
		for _, msg := range []string{"a", "b", "c"} {
			w.writeMessage(msg)
		}
	}()

	waitUntil(t, "three messages", func() bool {
		hr.mu.Lock()
		defer hr.mu.Unlock()
		return len(hr.messages) == 3
	})

	hr.mu.Lock()
	got := hr.messages[0] + hr.messages[1] + hr.messages[2]
	hr.mu.Unlock()
	if got != "abc" {
		t.Errorf("received out of order: %s", got)
	}

	cc.Close()
	reg.closeAll()
}
