package relay

import (
	"encoding/binary"
	"net"
	"sync"
	"time"
)

const (
	frameHeaderSize = 4
	maxFrameSize    = 1024 * 1024
)

// Encodes a message for the wire.
//
// The stream format is:
//
// packetSize uint32 big endian
// packet [packetSize]byte
//
// The packet is the UTF-8 message text, unmodified.
func encodeFrame(msg string) []byte {
	out := make([]byte, frameHeaderSize+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[frameHeaderSize:], msg)
	return out
}

// Extracts the first message from inbound. length is 0 when more input is
// needed, or -1 when the frame can never be valid.
func parseFrame(inbound []byte) (msg string, length int) {
	if len(inbound) < frameHeaderSize {
		return
	}

	packetSize := binary.BigEndian.Uint32(inbound)
	if packetSize > maxFrameSize {
		length = -1
		return
	}
	if len(inbound)-frameHeaderSize < int(packetSize) {
		return
	}

	msg = string(inbound[frameHeaderSize : frameHeaderSize+packetSize])
	length = frameHeaderSize + int(packetSize)
	return
}

// tcpWire carries framed messages over a stream connection.
type tcpWire struct {
	cxn          net.Conn
	writeTimeout time.Duration
	wmu          sync.Mutex
	inbound      []byte
}

func newTcpWire(cxn net.Conn, writeTimeout time.Duration) *tcpWire {
	return &tcpWire{cxn: cxn, writeTimeout: writeTimeout}
}

// Blocks until one whole frame has arrived. Only one goroutine may read.
func (tw *tcpWire) readMessage() (string, error) {
	for {
		msg, length := parseFrame(tw.inbound)
		if length > 0 {
			tw.inbound = tw.inbound[length:]
			return msg, nil
		}
		if length < 0 {
			return "", ErrMalformedFrame
		}

		// buffer must be allocated for each read, because tw.inbound slice is referencing it
		buffer := make([]byte, 1024*8)
		n, err := tw.cxn.Read(buffer)
		if err != nil {
			return "", err
		}

		if tw.inbound == nil {
			tw.inbound = buffer[0:n]
		} else {
			tw.inbound = append(tw.inbound, buffer[0:n]...)
		}
	}
}

func (tw *tcpWire) writeMessage(msg string) error {
	tw.wmu.Lock()
	defer tw.wmu.Unlock()

	if tw.writeTimeout > 0 {
		tw.cxn.SetWriteDeadline(time.Now().Add(tw.writeTimeout))
	}
	_, err := tw.cxn.Write(encodeFrame(msg))
	return err
}

func (tw *tcpWire) close() error {
	return tw.cxn.Close()
}

func (tw *tcpWire) remoteAddr() string {
	return tw.cxn.RemoteAddr().String()
}
