package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/VRMX2/USTHB-APP/internal/proto"
)

// Smoke check for a running server: authenticate, connect, send a message
// to the caller's own personal channel, and wait for the echo.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	user := flag.String("user", "smoke-probe", "username (registered on first run)")
	pass := flag.String("pass", "smoke-probe-pass", "password")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := loginOrRegister(ctx, *addr, *user, *pass)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var welcomeFrame proto.Outbound
	if err := wsjson.Read(ctx, conn, &welcomeFrame); err != nil {
		log.Fatalf("read welcome: %v", err)
	}
	if welcomeFrame.Type != proto.OutboundTypeWelcome {
		log.Fatalf("expected welcome, got %s", welcomeFrame.Type)
	}
	var welcome proto.WelcomeData
	if err := rebind(welcomeFrame.Data, &welcome); err != nil {
		log.Fatalf("decode welcome: %v", err)
	}
	fmt.Printf("connected as %s (user %d), channels: %s\n",
		welcome.User, welcome.UserID, strings.Join(welcome.Channels, ", "))

	channel := fmt.Sprintf("user:%d", welcome.UserID)
	payload, _ := json.Marshal(proto.MsgData{Channel: channel, Text: *text})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
		log.Fatalf("send: %v", err)
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			log.Fatalf("read: %v", err)
		}
		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			log.Fatalf("server error: %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}
		if outbound.Event != "message" {
			continue
		}
		var evt proto.EventMessage
		if err := rebind(outbound.Data, &evt); err != nil {
			log.Fatalf("decode message: %v", err)
		}
		if evt.Text != *text {
			log.Fatalf("echo mismatch: sent %q, got %q", *text, evt.Text)
		}
		fmt.Printf("ok: message %d echoed on %s\n", evt.ID, evt.Channel)
		return
	}
}

func loginOrRegister(ctx context.Context, addr, username, password string) (string, error) {
	token, status, err := authRequest(ctx, addr+"/api/login", map[string]string{
		"username": username, "password": password,
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusOK {
		return token, nil
	}

	token, status, err = authRequest(ctx, addr+"/api/register", map[string]string{
		"username": username, "password": password, "role": "student", "department": "smoke",
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("register returned %d", status)
	}
	return token, nil
}

func authRequest(ctx context.Context, url string, body map[string]string) (string, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.Token, resp.StatusCode, nil
}

func rebind(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
