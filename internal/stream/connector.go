package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veltran/marketsync/internal/bus"
	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/config"
	"github.com/veltran/marketsync/pkg/events"
)

// Compile-time check to ensure Connector implements the Service interface.
var _ Service = (*Connector)(nil)

// Service is the stream connector surface the daemon drives.
type Service interface {
	// Connect starts the connection manager; transport errors never escape it.
	Connect(ctx context.Context) error

	// Subscribe adds the topic to the desired set and joins it when connected.
	Subscribe(topic string)

	// Unsubscribe removes the topic and leaves it when connected.
	Unsubscribe(topic string)

	// Status reports the connector's current state.
	Status() Status

	// Close stops the manager and drops the connection.
	Close()
}

// NoOpConnector is used when no feed endpoint is configured.
type NoOpConnector struct{}

func (NoOpConnector) Connect(context.Context) error { return nil }
func (NoOpConnector) Subscribe(string)              {}
func (NoOpConnector) Unsubscribe(string)            {}
func (NoOpConnector) Status() Status                { return Status{State: StateDisconnected} }
func (NoOpConnector) Close()                        {}

// State is the connector's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
)

// Status is a point-in-time snapshot of the connector.
type Status struct {
	Connected         bool     `json:"connected"`
	State             State    `json:"state"`
	Subscriptions     []string `json:"subscriptions"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	LastError         string   `json:"last_error,omitempty"`
}

// Feed protocol event names. Everything else on the wire is a domain push.
const (
	eventJoin      = "join"
	eventLeave     = "leave"
	eventReply     = "reply"
	eventHeartbeat = "heartbeat"

	heartbeatTopic = "phoenix"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// frame is the wire format in both directions. Control frames carry no
// payload; domain pushes carry the event body.
type frame struct {
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	Ref     uint64         `json:"ref,omitempty"`
}

// Connector maintains a WebSocket subscription to the partner feed. It joins
// topics with the feed's topic-join handshake, heartbeats while connected,
// republishes domain pushes on the event bus and reconnects forever on an
// exponential backoff that flattens to a long fixed interval.
type Connector struct {
	cfg    config.StreamConfig
	bus    *bus.Bus
	log    *logger.Logger
	dialer *websocket.Dialer

	nextRef atomic.Uint64

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	topics   map[string]struct{}
	attempts int
	lastErr  error
	cancel   context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a Connector for the configured feed endpoint.
func New(cfg config.StreamConfig, eventBus *bus.Bus, log *logger.Logger) (*Connector, error) {
	if !cfg.IsConfigured() {
		return nil, errors.New("stream URL is required")
	}
	if eventBus == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	topics := make(map[string]struct{}, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		topics[topic] = struct{}{}
	}

	return &Connector{
		cfg:    cfg,
		bus:    eventBus,
		log:    log.WithComponent(mcommon.ComponentStream),
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		state:  StateDisconnected,
		topics: topics,
	}, nil
}

// Connect starts the connection manager. Dial and setup failures move the
// connector to backoff instead of being returned.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("stream connector already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Go(func() { c.run(runCtx) })

	c.log.Infow("stream connector started", "url", c.cfg.URL, "topics", c.cfg.Topics)

	return nil
}

// Close stops the manager and waits for it to wind down.
func (c *Connector) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	c.wg.Wait()
	c.log.Info("stream connector closed")
}

// Subscribe adds the topic to the desired set. The join frame goes out only
// while connected; otherwise the topic is replayed on the next connect.
func (c *Connector) Subscribe(topic string) {
	c.mu.Lock()
	if _, ok := c.topics[topic]; ok {
		c.mu.Unlock()
		return
	}
	c.topics[topic] = struct{}{}
	conn := c.activeConnLocked()
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, frame{Topic: topic, Event: eventJoin, Ref: c.ref()}); err != nil {
			c.log.Warnw("failed to send join", "topic", topic, "error", err)
		}
	}
}

// Unsubscribe removes the topic from the desired set, leaving it when
// connected.
func (c *Connector) Unsubscribe(topic string) {
	c.mu.Lock()
	if _, ok := c.topics[topic]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.topics, topic)
	conn := c.activeConnLocked()
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, frame{Topic: topic, Event: eventLeave, Ref: c.ref()}); err != nil {
			c.log.Warnw("failed to send leave", "topic", topic, "error", err)
		}
	}
}

// Status returns the connector's current snapshot.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		subs = append(subs, topic)
	}
	sort.Strings(subs)

	status := Status{
		Connected:         c.state == StateConnected,
		State:             c.state,
		Subscriptions:     subs,
		ReconnectAttempts: c.attempts,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// run is the connection manager loop: connect, serve until the connection
// drops, back off, repeat until the context ends.
func (c *Connector) run(ctx context.Context) {
	for {
		err := c.connectAndServe(ctx)

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.mu.Lock()
		c.state = StateBackoff
		if err != nil {
			c.lastErr = err
		}
		delay := c.reconnectDelay(c.attempts)
		c.attempts++
		attempts := c.attempts
		c.mu.Unlock()

		StateLog(StateBackoff)
		ReconnectsInc()

		c.log.Warnw("stream disconnected, reconnecting",
			"delay", delay,
			"attempts", attempts,
			"error", err,
		)

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// connectAndServe dials, joins the subscribed topics and pumps inbound
// frames until the connection fails or the context ends.
func (c *Connector) connectAndServe(ctx context.Context) error {
	c.setState(StateConnecting)

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	heartbeatStop := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go c.heartbeatLoop(conn, heartbeatStop, heartbeatDone)

	stopHeartbeat := func() {
		close(heartbeatStop)
		<-heartbeatDone
	}

	if err := c.joinTopics(conn); err != nil {
		stopHeartbeat()
		c.clearConn()
		return err
	}

	// Attempts reset only once the socket is up and every topic is joined.
	c.mu.Lock()
	c.state = StateConnected
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()
	StateLog(StateConnected)

	c.log.Infow("stream connected", "url", c.cfg.URL)

	readErr := c.readLoop(ctx, conn)

	stopHeartbeat()
	c.clearConn()

	return readErr
}

// joinTopics replays the desired subscription set as fresh joins.
func (c *Connector) joinTopics(conn *websocket.Conn) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	sort.Strings(topics)

	for _, topic := range topics {
		if err := c.writeFrame(conn, frame{Topic: topic, Event: eventJoin, Ref: c.ref()}); err != nil {
			return fmt.Errorf("failed to join topic %s: %w", topic, err)
		}
		c.log.Debugf("joined topic %s", topic)
	}
	return nil
}

func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	watcherDone := make(chan struct{})
	defer close(watcherDone)

	// Closing the connection is the only way to unblock a pending read.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watcherDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		c.handleFrame(data)
	}
}

// handleFrame classifies one inbound frame: control frames are logged,
// domain pushes become stream events on the bus, garbage is discarded.
func (c *Connector) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		FramesInc("invalid")
		c.log.Warnf("discarding unparseable frame: %v", err)
		return
	}

	switch f.Event {
	case eventReply:
		FramesInc("reply")
		c.log.Debugw("reply", "topic", f.Topic, "status", f.Payload["status"])
	case eventHeartbeat, eventJoin, eventLeave:
		FramesInc("control")
	case "":
		FramesInc("invalid")
		c.log.Warnw("discarding frame without event", "topic", f.Topic)
	default:
		FramesInc("event")
		c.bus.Publish(events.StreamEvent{
			Topic:      f.Topic,
			Kind:       events.Kind(f.Event),
			Payload:    f.Payload,
			ReceivedAt: time.Now().UTC(),
		})
	}
}

func (c *Connector) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeFrame(conn, frame{Topic: heartbeatTopic, Event: eventHeartbeat, Ref: c.ref()}); err != nil {
				c.log.Warnf("heartbeat failed: %v", err)
				return
			}
			HeartbeatsInc()
		}
	}
}

// reconnectDelay computes the wait before the next connection attempt.
// Within the exponential window the delay is base doubled per attempt,
// capped and jittered +/-20%; past maxAttempts it is the fixed long retry
// interval.
func (c *Connector) reconnectDelay(attempts int) time.Duration {
	rc := c.cfg.Reconnect

	if attempts >= rc.MaxAttempts {
		return rc.LongRetryInterval.Duration
	}

	delay := float64(rc.BaseDelay.Duration) * float64(uint64(1)<<uint(attempts))
	if delay > float64(rc.MaxDelay.Duration) {
		delay = float64(rc.MaxDelay.Duration)
	}

	// Add jitter (+/-20%)
	jitterRange := delay * 0.2
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	delay += jitter

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func (c *Connector) writeFrame(conn *websocket.Conn, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

func (c *Connector) ref() uint64 {
	return c.nextRef.Add(1)
}

// activeConnLocked returns the live connection, nil unless connected.
// Callers must hold mu.
func (c *Connector) activeConnLocked() *websocket.Conn {
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *Connector) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	StateLog(state)
}

func (c *Connector) clearConn() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}
