package relay

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jimsnab/go-lane"
)

type lineRecorder struct {
	lines []string
}

func (lr *lineRecorder) HandleMessageFromConsole(line string) {
	lr.lines = append(lr.lines, line)
}

func TestConsoleAcceptInOrder(t *testing.T) {
	l := lane.NewTestingLane(context.Background())

	in := strings.NewReader("#getport\nhello\n\nnotareal#thing\n#quit")
	con := NewConsole(in, &bytes.Buffer{})

	lr := &lineRecorder{}
	if err := con.Accept(l, lr); err != nil {
		t.Fatal(err)
	}

	want := []string{"#getport", "hello", "", "notareal#thing", "#quit"}
	if strings.Join(lr.lines, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", lr.lines, want)
	}
}

func TestConsoleDisplayFormat(t *testing.T) {
	out := &bytes.Buffer{}
	con := NewConsole(strings.NewReader(""), out)

	con.Display("Server has closed")
	con.Display("5555")

	if out.String() != "> Server has closed\n> 5555\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
