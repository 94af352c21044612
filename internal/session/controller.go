package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Carl4WebDev/vet-user/internal/identity"
	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/transport"
)

// Phase is the controller lifecycle state.
type Phase string

const (
	PhaseUninitialized    Phase = "uninitialized"
	PhaseInitializing     Phase = "initializing"
	PhaseReady            Phase = "ready"
	PhaseActive           Phase = "active"
	PhaseNotAuthenticated Phase = "not_authenticated"
)

var (
	ErrNotReady     = errors.New("session not ready")
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrNoActivePeer = errors.New("no active conversation")
)

// Directory lists the chattable counterparties.
type Directory interface {
	List(ctx context.Context) []models.ConversationPeer
}

// UnreadStore tracks per-peer unread counts.
type UnreadStore interface {
	Increment(peerID string) int
	Reset(peerID string)
	Get(peerID string) int
	Total() int
	Snapshot() map[string]int
}

// Resolver yields the local user id from the persisted credential.
type Resolver interface {
	Resolve() (string, error)
}

// Notifier pushes session events to attached UI clients.
type Notifier interface {
	Broadcast(event models.PortalEvent)
}

// Controller owns the chat session: active-conversation selection, the
// active conversation's message history, and the coordination of directory,
// transport and unread store. All transitions happen under one mutex so an
// inbound event can never observe a half-switched active peer.
type Controller struct {
	transport transport.Adapter
	directory Directory
	unread    UnreadStore
	resolver  Resolver
	notifier  Notifier

	mu           sync.Mutex
	phase        Phase
	selfID       string
	peers        []models.ConversationPeer
	activePeer   string
	history      []models.Message
	seen         map[string]bool
	unsubscribes []func()
	torn         bool
}

// NewController wires the session components together. Nothing happens until
// Init is called.
func NewController(adapter transport.Adapter, dir Directory, unread UnreadStore, resolver Resolver, notifier Notifier) *Controller {
	return &Controller{
		transport: adapter,
		directory: dir,
		unread:    unread,
		resolver:  resolver,
		notifier:  notifier,
		phase:     PhaseUninitialized,
		seen:      make(map[string]bool),
	}
}

// Init resolves the identity, fetches the directory, connects the transport
// and performs a best-effort join for every discovered peer. Everything
// except a missing identity degrades gracefully.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseUninitialized {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseInitializing
	c.mu.Unlock()

	selfID, err := c.resolver.Resolve()
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseNotAuthenticated
		c.mu.Unlock()
		return identity.ErrNotAuthenticated
	}

	peers := c.directory.List(ctx)

	if err := c.transport.Connect(ctx, selfID); err != nil {
		log.Printf("transport connect failed, session continues without live delivery: %v", err)
	}

	unsubMsg := c.transport.OnMessage(c.handleInbound)
	unsubHist := c.transport.OnHistory(c.handleHistory)

	// Bulk pre-join every discovered peer so messages arrive even before a
	// conversation is opened.
	for _, peer := range peers {
		if err := c.transport.JoinRoom(selfID, peer.ID); err != nil {
			log.Printf("bulk join failed for peer %s: %v", peer.ID, err)
		}
	}

	c.mu.Lock()
	c.selfID = selfID
	c.peers = peers
	c.unsubscribes = []func(){unsubMsg, unsubHist}
	c.phase = PhaseReady
	c.torn = false
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.Broadcast(models.PortalEvent{
			Type:      "connection",
			Connected: c.transport.State() == transport.StateConnected,
		})
	}
	return nil
}

// Select makes a peer the active conversation: join the room again as an
// idempotent safety net, clear the history, then zero the peer's unread
// count. The history must be cleared before the replay for the new room
// arrives, so the whole switch happens in one synchronous block.
func (c *Controller) Select(peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReady && c.phase != PhaseActive {
		return ErrNotReady
	}
	if !c.knownPeerLocked(peerID) {
		return ErrUnknownPeer
	}

	if err := c.transport.JoinRoom(c.selfID, peerID); err != nil {
		log.Printf("join on select failed for peer %s: %v", peerID, err)
	}

	c.activePeer = peerID
	c.history = nil
	c.seen = make(map[string]bool)
	c.unread.Reset(peerID)
	c.phase = PhaseActive

	c.broadcastLocked(models.PortalEvent{
		Type:        "unread",
		PeerID:      peerID,
		Unread:      0,
		TotalUnread: c.unread.Total(),
	})
	return nil
}

// Send publishes a message to the active peer. Whitespace-only input is a
// silent no-op. The message is echoed into the local history immediately
// with a client-generated id; a backend echo carrying the same id is
// deduplicated on receipt.
func (c *Controller) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseActive {
		return ErrNoActivePeer
	}
	if c.transport.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   c.selfID,
		ReceiverID: c.activePeer,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	}
	if err := c.transport.Send(msg); err != nil {
		return err
	}

	c.seen[msg.ID] = true
	c.history = append(c.history, msg)
	c.broadcastLocked(models.PortalEvent{Type: "message", Message: &msg, PeerID: c.activePeer})
	return nil
}

// Teardown unsubscribes all handlers and disconnects the transport. The
// unread store outlives the session and is left untouched.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.torn || c.phase == PhaseUninitialized {
		c.mu.Unlock()
		return
	}
	c.torn = true
	unsubs := c.unsubscribes
	c.unsubscribes = nil
	c.phase = PhaseUninitialized
	c.activePeer = ""
	c.history = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.transport.Disconnect()
}

// handleInbound routes a delivered message. Messages from the active peer
// (and backend echoes of our own sends) land in the visible history; every
// other sender gets a preview update and an unread increment.
func (c *Controller) handleInbound(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.torn {
		return
	}

	ownEcho := msg.SenderID == c.selfID
	if ownEcho {
		if c.phase == PhaseActive && msg.ReceiverID == c.activePeer {
			if msg.ID != "" && c.seen[msg.ID] {
				return
			}
			if msg.ID != "" {
				c.seen[msg.ID] = true
			}
			c.history = append(c.history, msg)
			c.broadcastLocked(models.PortalEvent{Type: "message", Message: &msg, PeerID: c.activePeer})
		}
		return
	}

	c.updatePreviewLocked(msg.SenderID, msg.Text)

	if c.phase == PhaseActive && msg.SenderID == c.activePeer {
		if msg.ID != "" {
			if c.seen[msg.ID] {
				return
			}
			c.seen[msg.ID] = true
		}
		c.history = append(c.history, msg)
		c.broadcastLocked(models.PortalEvent{Type: "message", Message: &msg, PeerID: c.activePeer})
		return
	}

	count := c.unread.Increment(msg.SenderID)
	c.broadcastLocked(models.PortalEvent{
		Type:        "unread",
		PeerID:      msg.SenderID,
		Preview:     msg.Text,
		Unread:      count,
		TotalUnread: c.unread.Total(),
	})
}

// handleHistory applies a room-join replay. Only messages belonging to the
// active conversation are kept; the replay replaces whatever is on screen.
func (c *Controller) handleHistory(msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.torn || c.phase != PhaseActive {
		return
	}

	history := make([]models.Message, 0, len(msgs))
	seen := make(map[string]bool)
	for _, msg := range msgs {
		if !c.belongsToActiveLocked(msg) {
			continue
		}
		if msg.ID != "" {
			seen[msg.ID] = true
		}
		history = append(history, msg)
	}
	c.history = history
	c.seen = seen

	if len(history) > 0 {
		c.updatePreviewLocked(c.activePeer, history[len(history)-1].Text)
	}
}

func (c *Controller) belongsToActiveLocked(msg models.Message) bool {
	if msg.SenderID == c.activePeer && msg.ReceiverID == c.selfID {
		return true
	}
	return msg.SenderID == c.selfID && msg.ReceiverID == c.activePeer
}

func (c *Controller) knownPeerLocked(peerID string) bool {
	for _, peer := range c.peers {
		if peer.ID == peerID {
			return true
		}
	}
	return false
}

func (c *Controller) updatePreviewLocked(peerID, preview string) {
	for i := range c.peers {
		if c.peers[i].ID == peerID {
			c.peers[i].LastMessagePreview = preview
			c.broadcastLocked(models.PortalEvent{Type: "preview", PeerID: peerID, Preview: preview})
			return
		}
	}
}

func (c *Controller) broadcastLocked(event models.PortalEvent) {
	if c.notifier != nil {
		c.notifier.Broadcast(event)
	}
}

// Phase reports the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SelfID returns the resolved local user id.
func (c *Controller) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// ActivePeer returns the id of the active conversation, or empty.
func (c *Controller) ActivePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePeer
}

// Peers returns a copy of the directory with live previews.
func (c *Controller) Peers() []models.ConversationPeer {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := make([]models.ConversationPeer, len(c.peers))
	copy(peers, c.peers)
	return peers
}

// History returns a copy of the active conversation's messages.
func (c *Controller) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]models.Message, len(c.history))
	copy(history, c.history)
	return history
}

// Connected reports whether the upstream transport is established.
func (c *Controller) Connected() bool {
	return c.transport.State() == transport.StateConnected
}
