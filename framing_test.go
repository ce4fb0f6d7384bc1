package relay

import (
	"encoding/binary"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, msg := range []string{"hello", "", "#notareal", "notareal#thing", "multi\nline"} {
		frame := encodeFrame(msg)
		got, length := parseFrame(frame)
		if length != len(frame) {
			t.Fatalf("%q: length %d, want %d", msg, length, len(frame))
		}
		if got != msg {
			t.Errorf("got %q, want %q", got, msg)
		}
	}
}

func TestFramePartial(t *testing.T) {
	frame := encodeFrame("hello world")

	for cut := 0; cut < len(frame); cut++ {
		if _, length := parseFrame(frame[:cut]); length != 0 {
			t.Fatalf("cut at %d: length %d, want 0", cut, length)
		}
	}
}

func TestFrameBackToBack(t *testing.T) {
	inbound := append(encodeFrame("first"), encodeFrame("second")...)

	msg, length := parseFrame(inbound)
	if msg != "first" {
		t.Fatalf("got %q", msg)
	}
	inbound = inbound[length:]

	msg, length = parseFrame(inbound)
	if msg != "second" || length != len(inbound) {
		t.Fatalf("got %q length %d", msg, length)
	}
}

func TestFrameOversize(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header, maxFrameSize+1)

	if _, length := parseFrame(header); length != -1 {
		t.Errorf("length %d, want -1", length)
	}
}
