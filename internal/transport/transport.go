package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/observability"
)

// State describes the upstream connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var ErrNotConnected = errors.New("transport not connected")

// Backend event names, assigned by the realtime service.
const (
	eventRegisterUser       = "registerUser"
	eventJoinPrivate        = "joinPrivate"
	eventSendPrivateMessage = "sendPrivateMessage"
	eventLoadMessages       = "loadMessages"
	eventReceiveMessage     = "receiveMessage"
)

// Adapter is the realtime channel the session controller talks through.
type Adapter interface {
	Connect(ctx context.Context, selfID string) error
	JoinRoom(selfID, peerID string) error
	Send(msg models.Message) error
	OnMessage(handler func(models.Message)) (unsubscribe func())
	OnHistory(handler func([]models.Message)) (unsubscribe func())
	State() State
	Disconnect()
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// WSAdapter maintains one long-lived websocket connection to the realtime
// backend. There is exactly one adapter per gateway process.
type WSAdapter struct {
	url         string
	dialTimeout time.Duration

	mu              sync.Mutex
	state           State
	conn            *websocket.Conn
	selfID          string
	joinedRooms     map[string]bool
	closed          bool
	generation      int
	nextHandlerID   int
	messageHandlers map[int]func(models.Message)
	historyHandlers map[int]func([]models.Message)

	writeMu sync.Mutex
}

// NewWSAdapter builds a disconnected adapter for the given realtime URL.
func NewWSAdapter(url string, dialTimeout time.Duration) *WSAdapter {
	return &WSAdapter{
		url:             url,
		dialTimeout:     dialTimeout,
		state:           StateDisconnected,
		joinedRooms:     make(map[string]bool),
		messageHandlers: make(map[int]func(models.Message)),
		historyHandlers: make(map[int]func([]models.Message)),
	}
}

// Connect dials the backend and registers the local identity so messages can
// be routed to this session. Calling it while already connected (or while a
// connect is in flight) is a no-op.
func (a *WSAdapter) Connect(ctx context.Context, selfID string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("transport closed")
	}
	if a.state == StateConnected || a.state == StateConnecting {
		a.mu.Unlock()
		return nil
	}
	a.state = StateConnecting
	a.selfID = selfID
	a.mu.Unlock()

	conn, err := a.dial(ctx)
	if err != nil {
		a.setState(StateDisconnected)
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.state = StateConnected
	a.generation++
	generation := a.generation
	rooms := roomKeys(a.joinedRooms)
	a.mu.Unlock()

	observability.SetTransportConnected(true)
	observability.IncWSEvent("upstream", "ws_connect")

	if err := a.emit(eventRegisterUser, selfID); err != nil {
		log.Printf("register identity failed: %v", err)
	}
	// Re-join rooms that were open before a reconnect.
	for _, room := range rooms {
		if err := a.emitJoin(room); err != nil {
			log.Printf("rejoin room %s failed: %v", room, err)
		}
	}

	go a.readPump(conn, generation)
	return nil
}

func (a *WSAdapter) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, span := otel.Tracer("portal-gateway/transport").Start(ctx, "ws.handshake")
	defer span.End()

	dialer := websocket.Dialer{HandshakeTimeout: a.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime backend: %w", err)
	}
	return conn, nil
}

// JoinRoom requests membership in the (self, peer) channel. The backend join
// is idempotent, so this is called both when peers are first discovered and
// again whenever a conversation is opened. Failure is non-fatal.
func (a *WSAdapter) JoinRoom(selfID, peerID string) error {
	a.mu.Lock()
	if a.state != StateConnected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	a.joinedRooms[peerID] = true
	a.mu.Unlock()

	if err := a.emitJoin(peerID); err != nil {
		return fmt.Errorf("join room %s: %w", peerID, err)
	}
	observability.IncWSEvent("upstream", "join_room")
	return nil
}

func (a *WSAdapter) emitJoin(peerID string) error {
	a.mu.Lock()
	selfID := a.selfID
	a.mu.Unlock()
	return a.emit(eventJoinPrivate, joinPayload{SenderID: selfID, ReceiverID: peerID})
}

// Send publishes a message, fire and forget. Callers must not invoke it
// while disconnected.
func (a *WSAdapter) Send(msg models.Message) error {
	a.mu.Lock()
	connected := a.state == StateConnected
	a.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	if err := a.emit(eventSendPrivateMessage, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	observability.IncWSEvent("upstream", "message_sent")
	return nil
}

// OnMessage subscribes to single inbound messages. The returned function
// removes the subscription; callers must invoke it on teardown to avoid
// duplicate delivery across connect cycles.
func (a *WSAdapter) OnMessage(handler func(models.Message)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandlerID
	a.nextHandlerID++
	a.messageHandlers[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.messageHandlers, id)
	}
}

// OnHistory subscribes to full history replays delivered on room join.
func (a *WSAdapter) OnHistory(handler func([]models.Message)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandlerID
	a.nextHandlerID++
	a.historyHandlers[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.historyHandlers, id)
	}
}

// State reports the current connection state.
func (a *WSAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Disconnect tears the connection down for good; no reconnect is attempted.
func (a *WSAdapter) Disconnect() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.state = StateDisconnected
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	observability.SetTransportConnected(false)
	observability.IncWSEvent("upstream", "ws_disconnect")
}

func (a *WSAdapter) emit(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, body)
}

func (a *WSAdapter) readPump(conn *websocket.Conn, generation int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("upstream", "ws_error")
			}
			a.handleDrop(conn, generation, err)
			return
		}
		a.dispatch(data)
	}
}

func (a *WSAdapter) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("discarding malformed frame: %v", err)
		return
	}

	switch f.Event {
	case eventReceiveMessage:
		msg, err := models.DecodeMessage(f.Data)
		if err != nil {
			log.Printf("discarding malformed message: %v", err)
			return
		}
		observability.IncWSEvent("upstream", "message_received")
		for _, handler := range a.snapshotMessageHandlers() {
			handler(msg)
		}
	case eventLoadMessages:
		msgs, dropped, err := models.DecodeHistory(f.Data)
		if err != nil {
			log.Printf("discarding malformed history: %v", err)
			return
		}
		if dropped > 0 {
			log.Printf("history replay dropped %d malformed entries", dropped)
		}
		observability.IncWSEvent("upstream", "history_loaded")
		for _, handler := range a.snapshotHistoryHandlers() {
			handler(msgs)
		}
	default:
		log.Printf("ignoring unknown event %q", f.Event)
	}
}

func (a *WSAdapter) snapshotMessageHandlers() []func(models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	handlers := make([]func(models.Message), 0, len(a.messageHandlers))
	for _, handler := range a.messageHandlers {
		handlers = append(handlers, handler)
	}
	return handlers
}

func (a *WSAdapter) snapshotHistoryHandlers() []func([]models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	handlers := make([]func([]models.Message), 0, len(a.historyHandlers))
	for _, handler := range a.historyHandlers {
		handlers = append(handlers, handler)
	}
	return handlers
}

// handleDrop reacts to a dropped connection by entering RECONNECTING and
// retrying with capped exponential backoff until Connect succeeds or the
// adapter is closed.
func (a *WSAdapter) handleDrop(conn *websocket.Conn, generation int, cause error) {
	_ = conn.Close()

	a.mu.Lock()
	// A newer connection already replaced this one.
	if a.closed || a.generation != generation {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.state = StateReconnecting
	selfID := a.selfID
	a.mu.Unlock()

	observability.SetTransportConnected(false)
	log.Printf("realtime connection dropped, reconnecting: %v", cause)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	for {
		wait := policy.NextBackOff()
		time.Sleep(wait)

		a.mu.Lock()
		if a.closed || a.generation != generation {
			a.mu.Unlock()
			return
		}
		// Reset so Connect goes through.
		a.state = StateDisconnected
		a.mu.Unlock()

		if err := a.Connect(context.Background(), selfID); err != nil {
			log.Printf("reconnect attempt failed: %v", err)
			a.mu.Lock()
			if !a.closed && a.generation == generation {
				a.state = StateReconnecting
			}
			a.mu.Unlock()
			continue
		}
		return
	}
}

func (a *WSAdapter) setState(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func roomKeys(rooms map[string]bool) []string {
	keys := make([]string, 0, len(rooms))
	for room := range rooms {
		keys = append(keys, room)
	}
	return keys
}
