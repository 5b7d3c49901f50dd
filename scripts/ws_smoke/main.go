package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/personly/channels-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer credential")
	channel := flag.String("channel", "", "channel id to join")
	text := flag.String("text", "hello from smoke test", "message content to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	if *channel != "" {
		if err := send(proto.InboundChannelJoin, proto.ChannelData{ChannelID: *channel}); err != nil {
			return err
		}
		if err := send(proto.InboundMessageNew, proto.NewMessageData{ChannelID: *channel, Content: *text}); err != nil {
			return err
		}
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("received event=%s", outbound.Event)
		if outbound.Error != nil {
			fmt.Printf(" error=%s (%s)", outbound.Error.Code, outbound.Error.Msg)
		}
		if outbound.Data != nil {
			if data, err := json.Marshal(outbound.Data); err == nil {
				fmt.Printf(" data=%s", data)
			}
		}
		fmt.Println()
	}
}
