package relay

import (
	"fmt"
	"sync"

	"github.com/jimsnab/go-lane"
)

type (
	// peerRegistry holds the connections accepted during one listen
	// session. It is created when the server binds and torn down when the
	// server closes.
	peerRegistry struct {
		l       lane.Lane
		mu      sync.RWMutex
		peers   map[string]*clientCxn
		closed  bool
		active  sync.WaitGroup
		bcastMu sync.Mutex // keeps every peer's view of broadcast order the same
	}
)

func newPeerRegistry(l lane.Lane) *peerRegistry {
	return &peerRegistry{
		l:     l,
		peers: map[string]*clientCxn{},
	}
}

func (pr *peerRegistry) register(cc *clientCxn) bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.closed {
		return false
	}

	pr.peers[cc.id] = cc
	pr.active.Add(1)
	return true
}

func (pr *peerRegistry) unregister(cc *clientCxn) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	delete(pr.peers, cc.id)
}

// Called once a peer's disconnect processing is finished.
func (pr *peerRegistry) released() {
	pr.active.Done()
}

func (pr *peerRegistry) count() int {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	return len(pr.peers)
}

// Runs op on a snapshot of the open peers, so op may cause peers to
// unregister.
func (pr *peerRegistry) processAllPeers(op func(cc *clientCxn)) {
	pr.mu.RLock()
	snapshot := make([]*clientCxn, 0, len(pr.peers))
	for _, cc := range pr.peers {
		if !cc.IsCloseRequested() {
			snapshot = append(snapshot, cc)
		}
	}
	pr.mu.RUnlock()

	for _, cc := range snapshot {
		op(cc)
	}
}

// Queues msg on every peer. A failed peer does not stop delivery to the
// rest; the failures are summarized in err.
func (pr *peerRegistry) broadcast(msg string) (sent int, err error) {
	pr.bcastMu.Lock()
	defer pr.bcastMu.Unlock()

	failed := 0
	pr.processAllPeers(func(cc *clientCxn) {
		if sendErr := cc.Send(msg); sendErr != nil {
			pr.l.Debugf("broadcast to %s failed: %s", cc.RemoteAddr(), sendErr)
			failed++
		} else {
			sent++
		}
	})

	if failed > 0 {
		err = fmt.Errorf("broadcast failed for %d of %d connections", failed, failed+sent)
	}
	return
}

// Refuses new peers, closes every open peer and waits for each one to finish
// its disconnect processing.
func (pr *peerRegistry) closeAll() {
	pr.mu.Lock()
	pr.closed = true
	pr.mu.Unlock()

	pr.processAllPeers(func(cc *clientCxn) {
		pr.l.Tracef("closing connection %s", cc.RemoteAddr())
		cc.RequestClose()
	})

	pr.active.Wait()
}
