// Command chatclient is a terminal client for the broadcaster. It logs in
// over HTTP, joins a room over WebSocket and sends each stdin line as a
// chat message. "/like", "/unlike", "/leave" and "/quit" are commands.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"livecast/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	conn       *websocket.Conn
	room       string
}

func newClient(baseURL string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
}

func (c *client) login(username, password string) (*loginResponse, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Post(c.baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: %s: %s", resp.Status, data)
	}

	var out loginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	c.token = out.AccessToken
	return &out, nil
}

func (c *client) dial(path string) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	c.conn = conn
	return nil
}

func (c *client) send(eventType string, payload map[string]interface{}) error {
	frame, err := json.Marshal(map[string]interface{}{"type": eventType, "payload": payload})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *client) join(room string) error {
	c.room = room
	return c.send("join", map[string]interface{}{"room": room})
}

// readLoop prints server events until the connection closes.
func (c *client) readLoop(out io.Writer, done chan<- struct{}) {
	defer close(done)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				fmt.Fprintf(out, "* connection closed: %d %s\n", ce.Code, ce.Text)
			}
			return
		}
		fmt.Fprintln(out, render(frame))
	}
}

type serverFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func render(frame []byte) string {
	var f serverFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return string(frame)
	}
	var p map[string]interface{}
	_ = json.Unmarshal(f.Payload, &p)

	switch f.Type {
	case "chat_message":
		return fmt.Sprintf("[%v] %v: %v", p["room"], p["username"], p["message"])
	case "online_count":
		return fmt.Sprintf("* %v online in %v", p["count"], p["room"])
	case "like":
		return fmt.Sprintf("* %v likes in %v", p["count"], p["room"])
	case "joined":
		return fmt.Sprintf("* joined %v as %v (%v online)", p["room"], p["sessionId"], p["count"])
	case "error":
		return fmt.Sprintf("! %v: %v", p["code"], p["message"])
	}
	return fmt.Sprintf("* %s %s", f.Type, f.Payload)
}

func (c *client) handleLine(line string) (quit bool, err error) {
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/like":
		return false, c.send("like", map[string]interface{}{"room": c.room, "liked": true})
	case "/unlike":
		return false, c.send("like", map[string]interface{}{"room": c.room, "liked": false})
	case "/leave":
		return false, c.send("leave", map[string]interface{}{"room": c.room})
	}
	if strings.HasPrefix(line, "/join ") {
		return false, c.join(strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
	}
	return false, c.send("chat_message", map[string]interface{}{"room": c.room, "content": line})
}

func main() {
	server := flag.String("server", "http://localhost:8080", "broadcaster base URL")
	wsPath := flag.String("path", "/ws", "WebSocket path")
	username := flag.String("user", "", "login username")
	password := flag.String("password", "secret123", "login password")
	room := flag.String("room", "lobby", "room to join")
	flag.Parse()

	log := logger.New("info", "console").Sugar()
	defer log.Sync()

	c := newClient(*server)
	if *username != "" {
		identity, err := c.login(*username, *password)
		if err != nil {
			log.Fatalw("login failed", "error", err)
		}
		log.Infow("logged in", "user_id", identity.UserID, "username", identity.Username)
	}

	if err := c.dial(*wsPath); err != nil {
		log.Fatalw("connect failed", "error", err)
	}
	defer c.conn.Close()

	done := make(chan struct{})
	go c.readLoop(os.Stdout, done)

	if err := c.join(*room); err != nil {
		log.Fatalw("join failed", "error", err)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := c.handleLine(line)
			if err != nil {
				log.Errorw("send failed", "error", err)
				return
			}
			if quit {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
		}
	}
}
