package relay

import (
	"fmt"
	"strconv"
)

var serverDirectives = vocabulary[*Server]{
	"setport": fnServerSetPort,
	"start":   fnServerStart,
	"stop":    fnServerStop,
	"close":   fnServerClose,
	"getport": fnServerGetPort,
	"quit":    fnServerQuit,
}

// The port is bound until the server closes, so it can only change then.
func fnServerSetPort(s *Server, d Directive) {
	if s.State() != ServerClosed {
		s.display.Display("Server must be closed to set port")
		return
	}

	port, valid := directivePort(s.display, d)
	if !valid {
		return
	}

	s.transport.SetPort(port)
	s.display.Display(fmt.Sprintf("Port set to %d", port))
}

func fnServerStart(s *Server, d Directive) {
	if s.State() == ServerListening {
		s.display.Display("Already listening")
		return
	}

	if err := s.transport.Listen(); err != nil {
		s.display.Display(fmt.Sprintf("Could not listen for clients: %s", err))
	}
}

func fnServerStop(s *Server, d Directive) {
	if s.State() != ServerListening {
		s.display.Display("Server is not listening")
		return
	}

	s.transport.StopListening()
}

func fnServerClose(s *Server, d Directive) {
	if s.State() == ServerClosed {
		s.display.Display("Server is already closed")
		return
	}

	if err := s.transport.Close(); err != nil {
		s.l.Debugf("close: %s", err)
	}
}

func fnServerGetPort(s *Server, d Directive) {
	s.display.Display(strconv.Itoa(s.transport.Port()))
}

func fnServerQuit(s *Server, d Directive) {
	s.l.Info("quit requested at the console")
	s.quit()
}
