package relay

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/jimsnab/go-lane"
)

type (
	// ConsoleHandler is the controller that receives each operator line.
	ConsoleHandler interface {
		HandleMessageFromConsole(line string)
	}

	// Console is the operator's terminal: lines are read from in, and
	// displayed messages are written to out with a "> " prefix.
	Console struct {
		mu  sync.Mutex
		in  io.Reader
		out io.Writer
	}
)

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (con *Console) Display(msg string) {
	con.mu.Lock()
	defer con.mu.Unlock()
	fmt.Fprintf(con.out, "> %s\n", msg)
}

// Accept feeds each line from the console to the handler, in order, until
// the input ends. A read error other than end of input is returned.
func (con *Console) Accept(l lane.Lane, handler ConsoleHandler) error {
	scanner := bufio.NewScanner(con.in)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		l.Tracef("console: %s", line)
		handler.HandleMessageFromConsole(line)
	}

	if err := scanner.Err(); err != nil {
		l.Errorf("unexpected error while reading from console: %s", err)
		return err
	}

	l.Trace("console input ended")
	return nil
}
