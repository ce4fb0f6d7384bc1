package relay

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jimsnab/go-lane"
)

type (
	// wsGateway accepts WebSocket clients on /ws and feeds them into the same
	// registry as the TCP clients, one text message per payload. Upgrades are
	// refused while the server is not listening.
	wsGateway struct {
		l        lane.Lane
		rs       *relayServer
		server   *http.Server
		upgrader websocket.Upgrader
		addr     string
	}

	wsWire struct {
		conn         *websocket.Conn
		remote       string
		writeTimeout time.Duration
		wmu          sync.Mutex
	}
)

func newWsGateway(l lane.Lane, addr string, rs *relayServer) (gw *wsGateway, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return
	}

	gw = &wsGateway{
		l:    l,
		rs:   rs,
		addr: ln.Addr().String(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.handleWebSocket)
	gw.server = &http.Server{Handler: mux}

	go func() {
		if serveErr := gw.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			l.Errorf("websocket gateway on %s failed: %s", gw.addr, serveErr)
		}
	}()

	l.Infof("accepting websocket clients on %s", gw.addr)
	return
}

func (gw *wsGateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !gw.rs.IsListening() {
		http.Error(w, "server is not accepting connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		gw.l.Debugf("websocket upgrade from %s failed: %s", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	gw.l.Infof("websocket client connected: %s", r.RemoteAddr)
	gw.rs.acceptWire(&wsWire{
		conn:         conn,
		remote:       r.RemoteAddr,
		writeTimeout: gw.rs.cfg.WriteTimeout,
	})
}

func (gw *wsGateway) close() {
	if err := gw.server.Close(); err != nil {
		gw.l.Debugf("closing websocket gateway: %s", err)
	}
}

func (ww *wsWire) readMessage() (string, error) {
	for {
		mt, data, err := ww.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (ww *wsWire) writeMessage(msg string) error {
	ww.wmu.Lock()
	defer ww.wmu.Unlock()

	if ww.writeTimeout > 0 {
		ww.conn.SetWriteDeadline(time.Now().Add(ww.writeTimeout))
	}
	return ww.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (ww *wsWire) close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	ww.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	return ww.conn.Close()
}

func (ww *wsWire) remoteAddr() string {
	return ww.remote
}
