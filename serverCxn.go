package relay

import (
	"fmt"
	"net"
	"sync"

	"github.com/jimsnab/go-lane"
)

type (
	// relayClient is the TCP transport behind a Client: one connection to
	// the server and the goroutine that receives from it.
	relayClient struct {
		mu         sync.Mutex
		l          lane.Lane
		cfg        *ClientConfig
		hooks      ClientHooks
		w          *tcpWire
		closing    bool
		readerDone chan struct{}
	}
)

func newRelayClient(l lane.Lane, cfg *ClientConfig, hooks ClientHooks) *relayClient {
	return &relayClient{
		l:     l,
		cfg:   cfg.withDefaults(),
		hooks: hooks,
	}
}

func (rc *relayClient) OpenConnection() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.w != nil {
		return nil
	}

	addr := joinEndpoint(rc.cfg.Host, rc.cfg.Port)
	cxn, err := net.DialTimeout("tcp", addr, rc.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("can't connect to %s: %w", addr, err)
	}

	rc.w = newTcpWire(cxn, rc.cfg.WriteTimeout)
	rc.closing = false
	rc.readerDone = make(chan struct{})
	go rc.receive(rc.w, rc.readerDone)

	rc.l.Infof("connected to %s", cxn.RemoteAddr().String())
	return nil
}

func (rc *relayClient) receive(w *tcpWire, done chan struct{}) {
	defer close(done)

	for {
		msg, err := w.readMessage()
		if err != nil {
			rc.mu.Lock()
			closing := rc.closing
			if !closing && rc.w == w {
				rc.w = nil
			}
			rc.mu.Unlock()

			if closing {
				rc.l.Trace("receive loop ended by close")
				return
			}

			w.close()
			rc.l.Debugf("connection to server lost: %s", err)
			rc.hooks.ConnectionException(err)
			return
		}

		rc.l.Tracef("received %d bytes from server", len(msg))
		rc.hooks.MessageFromServer(msg)
	}
}

// Closes the connection and waits for the receive loop to end. The
// ConnectionClosed hook fires only if a connection was open.
func (rc *relayClient) CloseConnection() (err error) {
	rc.mu.Lock()
	w := rc.w
	done := rc.readerDone
	rc.w = nil
	rc.closing = true
	rc.mu.Unlock()

	if w == nil {
		return
	}

	err = w.close()
	<-done

	rc.hooks.ConnectionClosed()
	return
}

func (rc *relayClient) IsConnected() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.w != nil
}

func (rc *relayClient) SendToServer(msg string) error {
	rc.mu.Lock()
	w := rc.w
	rc.mu.Unlock()

	if w == nil {
		return ErrNotConnected
	}
	return w.writeMessage(msg)
}

func (rc *relayClient) Host() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cfg.Host
}

func (rc *relayClient) SetHost(host string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cfg.Host = host
}

func (rc *relayClient) Port() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cfg.Port
}

func (rc *relayClient) SetPort(port int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cfg.Port = port
}
