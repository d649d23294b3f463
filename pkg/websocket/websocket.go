package websocketPkg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type IWebsocket interface {
	ProcessFrame(ctx context.Context, frame []byte) (*InferenceResult, error)
	CloseConnections()
}

type RemoteDetection struct {
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"conf"`
	Class      int       `json:"class"`
	Label      string    `json:"label,omitempty"`
}

type InferenceResult struct {
	Detections []RemoteDetection `json:"detections"`
	Error      string            `json:"error,omitempty"`
}

type webSocketClient struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewInferenceClient dials the remote detection server in the background;
// ProcessFrame reconnects on demand if that first attempt fails.
func NewInferenceClient() IWebsocket {
	client := newWebSocketClient(getWebSocketURL())

	go client.connectInBackground()

	return client
}

func newWebSocketClient(url string) *webSocketClient {
	return &webSocketClient{
		url:          url,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}
}

func (c *webSocketClient) connectInBackground() {
	if err := c.Reconnect(); err != nil {
		logrus.Warn(fmt.Sprintf("Initial connection to inference server failed: %v. Will retry on demand.", err))
		return
	}
	logrus.Info(fmt.Sprintf("Successfully connected to inference server at %s", c.url))
}

func (c *webSocketClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reconnectLocked()
}

func (c *webSocketClient) reconnectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.url == "" {
		return fmt.Errorf("inference server URL not configured")
	}

	logrus.Info(fmt.Sprintf("Connecting to inference server at %s", c.url))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			logrus.Error(fmt.Sprintf("Error sending pong: %v", err))
		}
		return nil
	})

	c.conn = conn

	go c.keepAlive(conn)

	return nil
}

func (c *webSocketClient) CloseConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			logrus.Warn(fmt.Sprintf("Ping to inference server failed, marking connection as dead: %v", err))
			c.discardLocked(conn)
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

// discardLocked closes a failed connection and forgets it, unless a
// reconnect has already replaced it.
func (c *webSocketClient) discardLocked(conn *websocket.Conn) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// ProcessFrame sends one JPEG frame and waits for its detections. Frames are
// serialised on the single connection so replies cannot interleave.
func (c *webSocketClient) ProcessFrame(ctx context.Context, frame []byte) (*InferenceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.reconnectLocked(); err != nil {
			return nil, fmt.Errorf("cannot connect to inference server: %w", err)
		}
	}
	conn := c.conn

	writeDeadline := time.Now().Add(c.writeTimeout)
	readDeadline := time.Now().Add(c.readTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if deadline.Before(writeDeadline) {
			writeDeadline = deadline
		}
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
	}

	conn.SetWriteDeadline(writeDeadline)

	logrus.Debug(fmt.Sprintf("Sending frame of size: %d bytes", len(frame)))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.discardLocked(conn)
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)

	_, message, err := conn.ReadMessage()
	if err != nil {
		c.discardLocked(conn)
		return nil, fmt.Errorf("error reading inference message: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var result InferenceResult
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling inference response: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("inference server error: %s", result.Error)
	}

	logrus.Debug(fmt.Sprintf("Inference server returned %d detections", len(result.Detections)))

	return &result, nil
}

func getWebSocketURL() string {
	url := os.Getenv("DETECTOR_REMOTE_URL")
	if url == "" {
		url = "ws://localhost:8000/api/v1/detect/ws"
	}
	return url
}
