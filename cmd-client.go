package relay

import (
	"fmt"
	"strconv"
	"strings"
)

var clientDirectives = vocabulary[*Client]{
	"sethost": fnClientSetHost,
	"setport": fnClientSetPort,
	"login":   fnClientLogin,
	"logoff":  fnClientLogoff,
	"gethost": fnClientGetHost,
	"getport": fnClientGetPort,
	"quit":    fnClientQuit,
}

func fnClientSetHost(c *Client, d Directive) {
	if c.State() == ClientConnected {
		c.display.Display("Cannot set host while logged on.")
		return
	}

	host := strings.TrimSpace(d.Arg)
	if host == "" {
		c.display.Display("Invalid host: host name required")
		return
	}

	c.transport.SetHost(host)
	c.display.Display(fmt.Sprintf("Host set to %s", host))
}

func fnClientSetPort(c *Client, d Directive) {
	if c.State() == ClientConnected {
		c.display.Display("Cannot set port while logged on.")
		return
	}

	port, valid := directivePort(c.display, d)
	if !valid {
		return
	}

	c.transport.SetPort(port)
	c.display.Display(fmt.Sprintf("Port set to %d", port))
}

func fnClientLogin(c *Client, d Directive) {
	if c.State() == ClientConnected {
		c.display.Display("Already connected")
		return
	}

	if err := c.transport.OpenConnection(); err != nil {
		c.l.Debugf("login: %s", err)
		c.display.Display(fmt.Sprintf("Could not connect to %s", c.endpoint()))
		return
	}

	c.setState(ClientConnected)
	c.display.Display(fmt.Sprintf("Connected to %s", c.endpoint()))
}

func fnClientLogoff(c *Client, d Directive) {
	if c.State() != ClientConnected {
		c.display.Display("Not connected")
		return
	}

	if err := c.transport.CloseConnection(); err != nil {
		c.l.Debugf("logoff: %s", err)
	}
	c.setState(ClientDisconnected)
}

func fnClientGetHost(c *Client, d Directive) {
	c.display.Display(c.transport.Host())
}

func fnClientGetPort(c *Client, d Directive) {
	c.display.Display(strconv.Itoa(c.transport.Port()))
}

func fnClientQuit(c *Client, d Directive) {
	c.l.Info("quit requested at the console")
	c.quit()
}
