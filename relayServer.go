package relay

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jimsnab/go-lane"
)

type (
	// relayServer is the TCP transport behind a Server. It owns the
	// listening socket, the accept loop, the optional WebSocket gateway and
	// the registry of connected peers.
	relayServer struct {
		mu         sync.Mutex
		l          lane.Lane
		cfg        *ServerConfig
		hooks      ServerHooks
		listener   net.Listener
		gateway    *wsGateway
		registry   *peerRegistry
		listening  bool
		stopping   bool
		acceptDone chan struct{}
	}

	deadliner interface {
		SetDeadline(t time.Time) error
	}
)

func newRelayServer(l lane.Lane, cfg *ServerConfig, hooks ServerHooks) *relayServer {
	return &relayServer{
		l:     l,
		cfg:   cfg.withDefaults(),
		hooks: hooks,
	}
}

func (rs *relayServer) Listen() error {
	rs.mu.Lock()
	if rs.listening {
		rs.mu.Unlock()
		return nil
	}

	if rs.listener != nil {
		if err := rs.resumeUnlocked(); err != nil {
			// an accept deadline that cannot be cleared would stop the loop at once
			rs.l.Errorf("cannot resume %s, binding again: %s", rs.listener.Addr().String(), err)
			rs.listener.Close()
			rs.listener = nil
		}
	}
	if rs.listener == nil {
		if err := rs.bindUnlocked(); err != nil {
			rs.mu.Unlock()
			return err
		}
	}

	rs.listening = true
	rs.stopping = false
	rs.acceptDone = make(chan struct{})
	ln := rs.listener
	reg := rs.registry
	done := rs.acceptDone
	port := rs.cfg.Port
	rs.mu.Unlock()

	rs.hooks.ServerStarted(port)

	go rs.acceptConnections(ln, reg, done)
	return nil
}

func (rs *relayServer) bindUnlocked() (err error) {
	addr := joinEndpoint(rs.cfg.Endpoint, rs.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		rs.l.Errorf("error listening: %s", err.Error())
		return
	}

	if rs.cfg.WsPort != 0 && rs.gateway == nil {
		gw, gwErr := newWsGateway(rs.l, joinEndpoint(rs.cfg.Endpoint, rs.cfg.WsPort), rs)
		if gwErr != nil {
			rs.l.Errorf("error listening for websocket clients: %s", gwErr.Error())
			ln.Close()
			return gwErr
		}
		rs.gateway = gw
	}

	if rs.registry == nil {
		rs.registry = newPeerRegistry(rs.l)
	}
	rs.listener = ln
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		// port 0 binds an ephemeral port; report the one in use
		rs.cfg.Port = tcpAddr.Port
	}
	rs.l.Infof("listening on %s", ln.Addr().String())
	return
}

// Clears the accept deadline of a stopped listener.
func (rs *relayServer) resumeUnlocked() error {
	dl, ok := rs.listener.(deadliner)
	if !ok {
		return errors.New("listener does not support deadlines")
	}
	if err := dl.SetDeadline(time.Time{}); err != nil {
		return err
	}
	rs.l.Infof("resumed listening on %s", rs.listener.Addr().String())
	return nil
}

func (rs *relayServer) acceptConnections(ln net.Listener, reg *peerRegistry, done chan struct{}) {
	defer func() {
		rs.mu.Lock()
		requested := rs.stopping
		rs.listening = false
		rs.stopping = false
		if !requested && rs.listener == ln {
			// the socket failed on its own; the next Listen binds again
			rs.listener = nil
			ln.Close()
		}
		rs.mu.Unlock()

		rs.hooks.ServerStopped()
		close(done)
	}()

	// accept connections and relay their messages
	for {
		connection, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !rs.isStopping() {
				rs.l.Errorf("accept error: %s", err)
			}
			return
		}
		rs.l.Infof("client connected: %s", connection.RemoteAddr().String())
		rs.adoptWire(reg, newTcpWire(connection, rs.cfg.WriteTimeout))
	}
}

func (rs *relayServer) adoptWire(reg *peerRegistry, w wire) bool {
	if newClientCxn(rs.l, w, reg, rs.hooks, rs.cfg.RateLimit.newLimiter()) == nil {
		rs.l.Debugf("server is closing, dropped %s", w.remoteAddr())
		return false
	}
	return true
}

// Hands a connection accepted outside the TCP listener to the registry.
// Refused while the server is not listening.
func (rs *relayServer) acceptWire(w wire) bool {
	rs.mu.Lock()
	reg := rs.registry
	accepting := rs.listening && !rs.stopping && reg != nil
	rs.mu.Unlock()

	if !accepting {
		w.close()
		return false
	}
	return rs.adoptWire(reg, w)
}

func (rs *relayServer) isStopping() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stopping
}

func (rs *relayServer) StopListening() {
	rs.mu.Lock()
	if !rs.listening {
		rs.mu.Unlock()
		return
	}
	rs.stopping = true
	ln := rs.listener
	done := rs.acceptDone
	rs.mu.Unlock()

	rs.l.Tracef("halting accept loop")
	dl, ok := ln.(deadliner)
	if ok {
		// unblock Accept but keep the port bound
		if err := dl.SetDeadline(time.Now()); err != nil {
			rs.l.Debugf("cannot set accept deadline, closing listener: %s", err)
			ok = false
		}
	}
	if !ok {
		// the next Listen binds again
		ln.Close()
	}
	<-done
}

func (rs *relayServer) Close() (err error) {
	rs.StopListening()

	rs.mu.Lock()
	ln := rs.listener
	gw := rs.gateway
	reg := rs.registry
	rs.listener = nil
	rs.gateway = nil
	rs.registry = nil
	rs.mu.Unlock()

	if ln == nil && reg == nil {
		return
	}

	if ln != nil {
		rs.l.Tracef("closing server")
		err = ln.Close()
	}
	if gw != nil {
		gw.close()
	}
	if reg != nil {
		rs.l.Infof("waiting for %d open connections to close", reg.count())
		reg.closeAll()
	}
	rs.l.Infof("termination of port %d completed", rs.Port())

	rs.hooks.ServerClosed()
	return
}

func (rs *relayServer) IsListening() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.listening
}

func (rs *relayServer) Port() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.cfg.Port
}

func (rs *relayServer) SetPort(port int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.cfg.Port = port
}

func (rs *relayServer) SendToAll(msg string) (err error) {
	rs.mu.Lock()
	reg := rs.registry
	rs.mu.Unlock()

	if reg == nil {
		return
	}

	_, err = reg.broadcast(msg)
	return
}

func (rs *relayServer) ClientCount() int {
	rs.mu.Lock()
	reg := rs.registry
	rs.mu.Unlock()

	if reg == nil {
		return 0
	}
	return reg.count()
}
