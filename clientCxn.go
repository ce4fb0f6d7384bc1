package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jimsnab/go-lane"
	"golang.org/x/time/rate"
)

// The following state machine progresses through the lifecycle of a peer
// connection. A peer relays one inbound message at a time, so messages from
// one peer are broadcast in the order they were received.
const (
	csNone            cxnState = iota
	csInitialize               // can progress to csWaitForMessage or csTerminate
	csWaitForMessage           // can progress to csDispatchMessage or csTerminate
	csDispatchMessage          // progresses to csWaitForMessage after the hooks have the message
	csTerminate                // closes the peer
)

type (
	cxnState int

	// wire moves whole messages over one connection.
	wire interface {
		readMessage() (string, error)
		writeMessage(msg string) error
		close() error
		remoteAddr() string
	}

	// clientCxn is one peer held by the server. Reads run on the state
	// machine goroutine; writes drain the outbox on a second goroutine so a
	// slow peer never stalls a broadcast.
	clientCxn struct {
		id          string
		l           lane.Lane
		w           wire
		reg         *peerRegistry
		hooks       ServerHooks
		limiter     *rate.Limiter
		started     time.Time
		mu          sync.Mutex // synchronizes access to the closing flag and outbox
		closing     bool
		socketState cxnState
		csceCh      chan *cxnStateEvent
		outbox      chan string
		ctx         context.Context
		cancel      context.CancelFunc
		writerDone  chan struct{}
	}
)

// Registers a new peer and starts its goroutines. Returns nil (with the wire
// closed) if the registry is already torn down.
func newClientCxn(l lane.Lane, w wire, reg *peerRegistry, hooks ServerHooks, limiter *rate.Limiter) *clientCxn {
	ctx, cancel := context.WithCancel(context.Background())

	cc := &clientCxn{
		id:          uuid.NewString(),
		l:           l,
		w:           w,
		reg:         reg,
		hooks:       hooks,
		limiter:     limiter,
		started:     time.Now(),
		socketState: csNone,
		csceCh:      make(chan *cxnStateEvent, 3),
		outbox:      make(chan string, outboxSize),
		ctx:         ctx,
		cancel:      cancel,
		writerDone:  make(chan struct{}),
	}

	if !reg.register(cc) {
		cancel()
		w.close()
		return nil
	}

	cc.queueStateChange(csInitialize, nil)

	go cc.run()

	return cc
}

func (cc *clientCxn) ID() string {
	return cc.id
}

func (cc *clientCxn) RemoteAddr() string {
	return cc.w.remoteAddr()
}

func (cc *clientCxn) String() string {
	return cc.w.remoteAddr()
}

// Queues msg for delivery. A peer whose outbox is full is dropped rather
// than allowed to hold up everyone else.
func (cc *clientCxn) Send(msg string) error {
	cc.mu.Lock()
	if cc.closing {
		cc.mu.Unlock()
		return ErrConnectionClosed
	}

	select {
	case cc.outbox <- msg:
		cc.mu.Unlock()
		return nil
	default:
	}
	cc.mu.Unlock()

	cc.l.Infof("outbound queue full for %s - dropping client", cc.RemoteAddr())
	cc.RequestClose()
	return ErrOutboxFull
}

func (cc *clientCxn) Close() error {
	cc.RequestClose()
	return nil
}

func (cc *clientCxn) queueStateChange(newState cxnState, eventData any) {
	cc.csceCh <- &cxnStateEvent{
		newState:  newState,
		eventData: eventData,
	}
}

// request connection close
func (cc *clientCxn) RequestClose() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if !cc.closing {
		cc.closing = true
		// unblocks a pending read
		cc.w.close()
	}
}

func (cc *clientCxn) IsCloseRequested() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.closing
}

func (cc *clientCxn) run() {
	for {
		event := <-cc.csceCh

		cc.socketState = event.newState
		switch cc.socketState {
		case csInitialize:
			cc.onInitialize()
		case csTerminate:
			cc.onTerminate()
			cc.l.Tracef("client %s at %s terminated after %s", cc.id, cc.RemoteAddr(), time.Since(cc.started))
			return
		case csWaitForMessage:
			if cc.IsCloseRequested() {
				cc.queueStateChange(csTerminate, nil)
			} else {
				cc.onWaitForMessage()
			}
		case csDispatchMessage:
			cc.onDispatchMessage(event.eventData.(string))
		}
	}
}

func (cc *clientCxn) onInitialize() {
	go cc.writePump()
	cc.hooks.ClientConnected(cc)
	cc.queueStateChange(csWaitForMessage, nil)
}

func (cc *clientCxn) onTerminate() {
	cc.mu.Lock()
	cc.closing = true
	cc.mu.Unlock()

	cc.cancel()
	cc.w.close()
	<-cc.writerDone

	cc.reg.unregister(cc)
	cc.hooks.ClientDisconnected(cc)
	cc.reg.released()
}

func (cc *clientCxn) onWaitForMessage() {
	msg, err := cc.w.readMessage()
	if err != nil {
		if cc.IsCloseRequested() {
			cc.l.Tracef("read from %s ended by close request", cc.RemoteAddr())
		} else if isDisconnect(err) {
			cc.l.Infof("client disconnected: %s", cc.RemoteAddr())
		} else {
			cc.l.Debugf("read error from %s: %s", cc.RemoteAddr(), err)
		}
		cc.queueStateChange(csTerminate, nil)
		return
	}

	if cc.limiter != nil && !cc.limiter.Allow() {
		cc.l.Infof("rate limit exceeded by %s - terminating", cc.RemoteAddr())
		cc.queueStateChange(csTerminate, nil)
		return
	}

	cc.l.Tracef("received %d bytes from %s", len(msg), cc.RemoteAddr())
	cc.queueStateChange(csDispatchMessage, msg)
}

func (cc *clientCxn) onDispatchMessage(msg string) {
	cc.hooks.MessageFromClient(msg, cc)
	cc.queueStateChange(csWaitForMessage, nil)
}

func (cc *clientCxn) writePump() {
	defer close(cc.writerDone)

	for {
		select {
		case msg := <-cc.outbox:
			if err := cc.w.writeMessage(msg); err != nil {
				cc.l.Debugf("write error to %s: %s", cc.RemoteAddr(), err)
				cc.RequestClose()
				return
			}
			cc.l.Tracef("wrote %d bytes to %s", len(msg), cc.RemoteAddr())

		case <-cc.ctx.Done():
			return
		}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
