package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/emojichat/internal/proto"
)

func TestRelayBroadcastSkipsSender(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{WriteTimeout: time.Second}, nil)

	alice, alicePeer := mustAccept(t, relay, "alice")
	_, bobPeer := mustAccept(t, relay, "bob")
	_, carolPeer := mustAccept(t, relay, "carol")

	n := relay.HandleMessage(ctx, alice, []byte(`{"type":"message","data":{"author":"A","text":"😀"}}`))
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	for name, peer := range map[string]*fakePeer{"bob": bobPeer, "carol": carolPeer} {
		frames := peer.received()
		if len(frames) != 1 {
			t.Fatalf("%s: expected 1 frame, got %d", name, len(frames))
		}
		ev, err := proto.Decode(frames[0])
		if err != nil {
			t.Fatalf("%s: decode broadcast: %v", name, err)
		}
		if ev.Author != "A" || ev.Text != "😀" {
			t.Fatalf("%s: unexpected event %+v", name, ev)
		}
	}

	if got := alicePeer.received(); len(got) != 0 {
		t.Fatalf("sender received its own message: %q", got)
	}
}

func TestRelayDropsInvalidMessages(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{}, nil)

	sender, senderPeer := mustAccept(t, relay, "sender")
	_, otherPeer := mustAccept(t, relay, "other")

	payloads := []string{
		`not json`,
		`{"data":{"author":"a","text":"b"}}`,
		`{"type":"ping","data":{"author":"a","text":"b"}}`,
		`{"type":"message"}`,
		`{"type":"message","data":{"author":5,"text":"b"}}`,
		`{"type":"message","data":{"author":"a","text":false}}`,
	}
	for _, p := range payloads {
		if n := relay.HandleMessage(ctx, sender, []byte(p)); n != 0 {
			t.Fatalf("payload %q broadcast to %d peers", p, n)
		}
	}

	if got := otherPeer.received(); len(got) != 0 {
		t.Fatalf("unexpected broadcasts: %q", got)
	}
	if sender.State() != StateOpen || senderPeer.isClosed() {
		t.Fatalf("sender should stay open, state=%s", sender.State())
	}
	if relay.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", relay.Count())
	}
}

func TestRelayDisconnectIsIdempotent(t *testing.T) {
	relay := NewRelay(Options{}, nil)

	conn, peer := mustAccept(t, relay, "alice")
	mustAccept(t, relay, "bob")

	if !relay.Disconnect(conn) {
		t.Fatal("first disconnect should report removal")
	}
	if relay.Disconnect(conn) {
		t.Fatal("second disconnect should be a no-op")
	}
	if relay.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", relay.Count())
	}
	if conn.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", conn.State())
	}
	if peer.closeCnt != 1 {
		t.Fatalf("peer closed %d times", peer.closeCnt)
	}
}

func TestRelayRemovesFailingPeer(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{WriteTimeout: time.Second}, nil)

	sender, _ := mustAccept(t, relay, "sender")
	broken, brokenPeer := mustAccept(t, relay, "broken")
	_, okPeer1 := mustAccept(t, relay, "ok1")
	_, okPeer2 := mustAccept(t, relay, "ok2")
	brokenPeer.fail = true

	ev := proto.Event{Author: "sender", Text: "🎉"}
	if n := relay.Broadcast(ctx, ev, sender); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	if len(okPeer1.received()) != 1 || len(okPeer2.received()) != 1 {
		t.Fatal("healthy peers should receive the event")
	}
	if broken.State() != StateClosed || !brokenPeer.isClosed() {
		t.Fatalf("failing peer should be closed, state=%s", broken.State())
	}
	if relay.Count() != 3 {
		t.Fatalf("expected 3 connections, got %d", relay.Count())
	}
}

func TestRelaySlowPeerDoesNotBlockOthers(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{WriteTimeout: 50 * time.Millisecond}, nil)

	slow, slowPeer := mustAccept(t, relay, "slow")
	_, fastPeer := mustAccept(t, relay, "fast")
	slowPeer.block = true

	start := time.Now()
	n := relay.Broadcast(ctx, proto.Event{Author: "x", Text: "🐢"}, nil)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("broadcast took %v", elapsed)
	}
	if n != 1 || len(fastPeer.received()) != 1 {
		t.Fatalf("fast peer should receive event, delivered=%d", n)
	}
	if slow.State() != StateClosed {
		t.Fatalf("slow peer should be dropped, state=%s", slow.State())
	}
}

func TestRelayAcceptRespectsCap(t *testing.T) {
	relay := NewRelay(Options{MaxConnections: 1}, nil)

	mustAccept(t, relay, "first")
	if !relay.Full() {
		t.Fatal("relay should report full")
	}
	if _, err := relay.Accept(&fakePeer{}, "second"); !errors.Is(err, ErrRelayFull) {
		t.Fatalf("expected ErrRelayFull, got %v", err)
	}
	if relay.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", relay.Count())
	}
}

func TestRelayAssignsDisplayName(t *testing.T) {
	relay := NewRelay(Options{}, nil)

	conn, _ := mustAccept(t, relay, "")
	if conn.Name == "" || conn.ID == "" {
		t.Fatalf("expected generated identity, got %+v", conn)
	}

	infos := relay.Connections()
	if len(infos) != 1 || infos[0].Name != conn.Name || infos[0].State != "open" {
		t.Fatalf("unexpected snapshot: %+v", infos)
	}
}

func TestRelayClosedSenderIsIgnored(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{}, nil)

	sender, _ := mustAccept(t, relay, "sender")
	_, otherPeer := mustAccept(t, relay, "other")
	relay.Disconnect(sender)

	if n := relay.HandleMessage(ctx, sender, []byte(`{"type":"message","data":{"author":"a","text":"b"}}`)); n != 0 {
		t.Fatalf("closed sender broadcast to %d peers", n)
	}
	if len(otherPeer.received()) != 0 {
		t.Fatal("closed sender should not reach other peers")
	}
}

func TestRelayConcurrentTraffic(t *testing.T) {
	ctx := testContext(t)
	relay := NewRelay(Options{WriteTimeout: time.Second}, nil)

	const senders = 8
	conns := make([]*Connection, 0, senders)
	for i := 0; i < senders; i++ {
		c, _ := mustAccept(t, relay, "")
		conns = append(conns, c)
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				relay.HandleMessage(ctx, c, []byte(`{"type":"message","data":{"author":"x","text":"🔥"}}`))
			}
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			c, err := relay.Accept(&fakePeer{}, "")
			if err != nil {
				return
			}
			relay.Disconnect(c)
		}
	}()
	wg.Wait()

	if relay.Count() != senders {
		t.Fatalf("expected %d connections, got %d", senders, relay.Count())
	}
}

func TestRelayShutdownClosesAll(t *testing.T) {
	relay := NewRelay(Options{}, nil)

	_, p1 := mustAccept(t, relay, "a")
	_, p2 := mustAccept(t, relay, "b")

	relay.Shutdown("server shutting down")

	if relay.Count() != 0 {
		t.Fatalf("expected empty relay, got %d", relay.Count())
	}
	if !p1.isClosed() || !p2.isClosed() {
		t.Fatal("all peers should be closed")
	}
}
