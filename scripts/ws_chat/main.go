package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/VRMX2/USTHB-APP/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "", "portal username")
	pass := flag.String("pass", "", "portal password")
	token := flag.String("token", "", "JWT to use instead of username/password login")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	jwt := *token
	if jwt == "" {
		if *user == "" || *pass == "" {
			return errors.New("either -token or -user and -pass are required")
		}
		var err error
		jwt, err = login(ctx, *addr, *user, *pass)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws?token=" + jwt
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var welcome proto.Outbound
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	var hello proto.WelcomeData
	if err := decodeData(welcome.Data, &hello); err != nil {
		return fmt.Errorf("decode welcome: %w", err)
	}

	fmt.Printf("Connected as %s (user %d), conn %s\n", hello.User, hello.UserID, hello.ConnID)
	fmt.Printf("Subscribed channels: %s\n", strings.Join(hello.Channels, ", "))
	if hello.Partial {
		fmt.Println("Warning: course channels unavailable, server will retry")
	}
	fmt.Println("Plain text sends a message to the current target channel.")
	fmt.Println("Commands: /target <ch>  /join <ch>  /leave <ch>  /read <msg-id>  /status <s>")

	// Default to talking to yourself until a target is picked.
	target := fmt.Sprintf("user:%d", hello.UserID)

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, &target)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, addr, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// decodeData remarshals a decoded-any payload into a typed event struct.
func decodeData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeJoined:
			var evt proto.JoinedData
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("* joined %s (%s)\n", evt.Channel, evt.Label)
			}
			continue
		case proto.OutboundTypeLeft:
			var evt proto.LeftData
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("* left %s\n", evt.Channel)
			}
			continue
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				fmt.Printf("! %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			}
			continue
		case proto.OutboundTypeWelcome:
			var evt proto.WelcomeData
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("* channels refreshed: %s\n", strings.Join(evt.Channels, ", "))
			}
			continue
		}

		switch outbound.Event {
		case "message":
			var evt proto.EventMessage
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("[%s] %s: %s\n", evt.Channel, evt.User, evt.Text)
			}
		case "typing_start":
			var evt proto.EventTyping
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("[%s] %s is typing...\n", evt.Channel, evt.User)
			}
		case "typing_stop":
			var evt proto.EventTyping
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("[%s] %s stopped typing\n", evt.Channel, evt.User)
			}
		case "message_read":
			var evt proto.EventRead
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("* %s read message %d\n", evt.User, evt.MessageID)
			}
		case "status_update":
			var evt proto.EventStatus
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("* %s is now %s\n", evt.User, evt.Status)
			}
		case "announcement":
			var evt proto.EventAnnouncement
			if err := decodeData(outbound.Data, &evt); err == nil {
				scope := evt.Department
				if scope == "" {
					scope = "portal"
				}
				fmt.Printf("== [%s] %s: %s\n   %s\n", scope, evt.User, evt.Title, evt.Body)
			}
		case "grade":
			var evt proto.EventGrade
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("== grade posted: course %d, %s = %.2f\n", evt.Course, evt.Label, evt.Value)
			}
		case "file_shared":
			var evt proto.EventFile
			if err := decodeData(outbound.Data, &evt); err == nil {
				fmt.Printf("[%s] %s shared %s (%d bytes)\n", evt.Channel, evt.User, evt.Name, evt.Size)
			}
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, target *string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	send := func(msgType string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("marshal %s: %v", msgType, err)
			return
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
			log.Printf("send error: %v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if strings.HasPrefix(text, "/") {
				handleCommand(text, target, send)
				continue
			}

			send(proto.InboundTypeMsg, proto.MsgData{Channel: *target, Text: text})
		}
	}
}

func handleCommand(text string, target *string, send func(string, any)) {
	fields := strings.Fields(text)
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/target":
		if arg == "" {
			fmt.Printf("current target: %s\n", *target)
			return
		}
		*target = arg
		fmt.Printf("target set to %s\n", arg)
	case "/join":
		if arg == "" {
			fmt.Println("usage: /join <channel>")
			return
		}
		send(proto.InboundTypeJoin, proto.JoinData{Channel: arg})
		*target = arg
	case "/leave":
		if arg == "" {
			fmt.Println("usage: /leave <channel>")
			return
		}
		send(proto.InboundTypeLeave, proto.LeaveData{Channel: arg})
	case "/read":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Println("usage: /read <message-id>")
			return
		}
		send(proto.InboundTypeMessageRead, proto.ReadData{Channel: *target, MessageID: id})
	case "/status":
		send(proto.InboundTypeStatus, proto.StatusData{Status: arg})
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
}
