package relay

import (
	"fmt"
	"sync"

	"github.com/jimsnab/go-lane"
)

const (
	ClientConnected ClientState = iota
	ClientDisconnected
)

type (
	ClientState int

	// Client is the client-side lifecycle controller. Operator lines are
	// either directives applied here or payload sent to the server; text
	// from the server is only ever displayed.
	Client struct {
		l         lane.Lane
		opMu      sync.Mutex // serializes directives and sends
		mu        sync.Mutex // guards state; taken by the transport hooks
		state     ClientState
		transport ClientTransport
		display   Display
		canExit   chan struct{}
		exitOnce  sync.Once
	}
)

func (cs ClientState) String() string {
	switch cs {
	case ClientConnected:
		return "connected"
	case ClientDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ClientState(%d)", int(cs))
	}
}

// Creates a client and connects it. If the connection cannot be opened, no
// client is returned.
func NewClient(l lane.Lane, display Display, cfg *ClientConfig) (*Client, error) {
	return newClient(l, display, func(hooks ClientHooks) ClientTransport {
		return newRelayClient(l, cfg, hooks)
	})
}

func newClient(l lane.Lane, display Display, makeTransport func(hooks ClientHooks) ClientTransport) (*Client, error) {
	c := &Client{
		l:       l,
		state:   ClientDisconnected,
		display: display,
		canExit: make(chan struct{}),
	}
	c.transport = makeTransport(c)

	if err := c.transport.OpenConnection(); err != nil {
		return nil, err
	}
	c.setState(ClientConnected)
	return c, nil
}

func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Client) Host() string {
	return c.transport.Host()
}

func (c *Client) Port() int {
	return c.transport.Port()
}

func (c *Client) endpoint() string {
	return joinEndpoint(c.transport.Host(), c.transport.Port())
}

// Interprets one operator line. Payload that cannot be sent ends the
// session.
func (c *Client) HandleMessageFromConsole(line string) {
	if c.isTerminated() {
		c.l.Debugf("client has quit, ignoring: %s", line)
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	d, isDirective := parseDirective(line)
	if isDirective {
		clientDirectives.dispatch(c.l, c.display, c, d)
		return
	}

	if err := c.transport.SendToServer(line); err != nil {
		c.l.Debugf("send to server failed: %s", err)
		c.display.Display("Could not send message to server.  Terminating client.")
		c.quit()
	}
}

// Disconnects and releases WaitForTermination. The connection is closed
// before waiting on opMu so a send blocked on a stalled server fails at once.
func (c *Client) Quit() {
	if err := c.transport.CloseConnection(); err != nil {
		c.l.Debugf("close during quit: %s", err)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.quit()
}

func (c *Client) quit() {
	if c.State() == ClientConnected {
		if err := c.transport.CloseConnection(); err != nil {
			c.l.Debugf("close during quit: %s", err)
		}
		c.setState(ClientDisconnected)
	}
	c.terminate()
}

func (c *Client) terminate() {
	c.exitOnce.Do(func() {
		close(c.canExit)
	})
}

func (c *Client) isTerminated() bool {
	select {
	case <-c.canExit:
		return true
	default:
		return false
	}
}

// Closed once the client has quit or lost the server.
func (c *Client) Terminated() <-chan struct{} {
	return c.canExit
}

func (c *Client) WaitForTermination() {
	<-c.canExit
	c.l.Info("client terminated")
}

// Server text is displayed verbatim and never interpreted.
func (c *Client) MessageFromServer(msg string) {
	c.display.Display(msg)
}

func (c *Client) ConnectionException(err error) {
	c.setState(ClientDisconnected)
	c.l.Infof("server connection failed: %s", err)
	c.display.Display("The server has shut down.")
	c.terminate()
}

func (c *Client) ConnectionClosed() {
	c.setState(ClientDisconnected)
	c.display.Display("Connection closed.")
}
