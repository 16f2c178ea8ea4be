package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/emojichat/internal/proto"
)

func main() {
	addr := flag.String("addr", "ws://localhost:1337/", "WebSocket address")
	author := flag.String("author", "smoke", "author to put on the message")
	text := flag.String("text", "😀", "emoji to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dial := func(name string) *websocket.Conn {
		conn, _, err := websocket.Dial(ctx, *addr+"?name="+name, &websocket.DialOptions{
			Subprotocols: []string{proto.Subprotocol},
		})
		if err != nil {
			log.Fatalf("dial %s: %v", name, err)
		}
		return conn
	}

	sender := dial("smoke-sender")
	defer sender.Close(websocket.StatusNormalClosure, "bye")
	receiver := dial("smoke-receiver")
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	// give the relay a moment to register both peers
	time.Sleep(100 * time.Millisecond)

	if err := wsjson.Write(ctx, sender, proto.Envelope{
		Type: proto.TypeMessage,
		Data: proto.MessageData{Author: *author, Text: *text},
	}); err != nil {
		log.Fatalf("send: %v", err)
	}

	var envelope proto.Envelope
	if err := wsjson.Read(ctx, receiver, &envelope); err != nil {
		log.Fatalf("read: %v", err)
	}

	fmt.Printf("Received: type=%s author=%s text=%q\n", envelope.Type, envelope.Data.Author, envelope.Data.Text)
	if envelope.Data.Author != *author || envelope.Data.Text != *text {
		log.Fatalf("payload mismatch")
	}
}
