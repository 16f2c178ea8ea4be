package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errPeerBroken = errors.New("peer broken")

type fakePeer struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	fail     bool
	block    bool
	closeCnt int
}

func (p *fakePeer) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	fail, block := p.fail, p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errPeerBroken
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, append([]byte(nil), data...))
	return nil
}

func (p *fakePeer) Close(string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCnt++
	return nil
}

func (p *fakePeer) received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.frames...)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func mustAccept(t *testing.T, r *Relay, name string) (*Connection, *fakePeer) {
	t.Helper()

	peer := &fakePeer{}
	conn, err := r.Accept(peer, name)
	if err != nil {
		t.Fatalf("accept %s: %v", name, err)
	}
	return conn, peer
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
