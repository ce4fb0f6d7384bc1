package relay

import (
	"fmt"
	"sync"

	"github.com/jimsnab/go-lane"
)

const (
	ServerListening ServerState = iota
	ServerStopped
	ServerClosed
)

// Prefix of every payload typed at the server console.
const ServerMessageTag = "SERVER MSG> "

type (
	ServerState int

	// Server is the server-side lifecycle controller. It interprets console
	// lines, owns the listening state and relays every client message to
	// all clients, the sender included.
	Server struct {
		l         lane.Lane
		opMu      sync.Mutex // serializes directives
		mu        sync.Mutex // guards state; taken by the transport hooks
		state     ServerState
		transport ServerTransport
		display   Display
		canExit   chan struct{}
		exitOnce  sync.Once
	}
)

func (ss ServerState) String() string {
	switch ss {
	case ServerListening:
		return "listening"
	case ServerStopped:
		return "stopped"
	case ServerClosed:
		return "closed"
	default:
		return fmt.Sprintf("ServerState(%d)", int(ss))
	}
}

// Creates a server controller over a TCP transport. The server is Closed
// until Listen succeeds.
func NewServer(l lane.Lane, display Display, cfg *ServerConfig) *Server {
	return newServer(l, display, func(hooks ServerHooks) ServerTransport {
		return newRelayServer(l, cfg, hooks)
	})
}

func newServer(l lane.Lane, display Display, makeTransport func(hooks ServerHooks) ServerTransport) *Server {
	s := &Server{
		l:       l,
		state:   ServerClosed,
		display: display,
		canExit: make(chan struct{}),
	}
	s.transport = makeTransport(s)
	return s
}

// Starts listening on the configured port.
func (s *Server) Listen() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	return s.transport.Listen()
}

func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(state ServerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Server) Port() int {
	return s.transport.Port()
}

func (s *Server) ClientCount() int {
	return s.transport.ClientCount()
}

// Interprets one operator line: a directive is applied to the server, any
// other text is tagged and broadcast.
func (s *Server) HandleMessageFromConsole(line string) {
	if s.isTerminated() {
		s.l.Debugf("server has quit, ignoring: %s", line)
		return
	}

	d, isDirective := parseDirective(line)
	if !isDirective {
		s.sendServerMessage(line)
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	serverDirectives.dispatch(s.l, s.display, s, d)
}

func (s *Server) sendServerMessage(msg string) {
	tagged := ServerMessageTag + msg
	s.display.Display(tagged)

	if err := s.transport.SendToAll(tagged); err != nil {
		s.l.Debugf("server message: %s", err)
	}
}

// Closes everything and releases WaitForTermination.
func (s *Server) Quit() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.quit()
}

func (s *Server) quit() {
	if err := s.transport.Close(); err != nil {
		s.l.Debugf("close during quit: %s", err)
	}
	s.terminate()
}

func (s *Server) terminate() {
	s.exitOnce.Do(func() {
		close(s.canExit)
	})
}

func (s *Server) isTerminated() bool {
	select {
	case <-s.canExit:
		return true
	default:
		return false
	}
}

// Closed after the quit directive has torn the server down.
func (s *Server) Terminated() <-chan struct{} {
	return s.canExit
}

func (s *Server) WaitForTermination() {
	<-s.canExit
	s.l.Info("finished serving requests")
}

func (s *Server) ServerStarted(port int) {
	s.setState(ServerListening)
	s.l.Infof("server listening on port %d", port)
	s.display.Display(fmt.Sprintf("Server listening for connections on port %d", port))
}

func (s *Server) ServerStopped() {
	s.mu.Lock()
	if s.state != ServerClosed {
		s.state = ServerStopped
	}
	s.mu.Unlock()

	s.display.Display("Server has stopped listening for connections.")
}

func (s *Server) ServerClosed() {
	s.setState(ServerClosed)
	s.display.Display("Server has closed")
}

func (s *Server) ClientConnected(p Peer) {
	s.l.Debugf("client %s connected from %s", p.ID(), p.RemoteAddr())
	s.display.Display("A client has connected")
}

func (s *Server) ClientDisconnected(p Peer) {
	s.l.Debugf("client %s at %s disconnected", p.ID(), p.RemoteAddr())
	s.display.Display("A client has disconnected")
}

// Echoes msg to every client, including the one that sent it.
func (s *Server) MessageFromClient(msg string, p Peer) {
	s.display.Display(fmt.Sprintf("Message received: %s from %s", msg, p))

	if err := s.transport.SendToAll(msg); err != nil {
		s.l.Debugf("relay from %s: %s", p.ID(), err)
	}
}
