package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Carl4WebDev/vet-user/internal/identity"
	"github.com/Carl4WebDev/vet-user/internal/mocks"
	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/transport"
	"github.com/Carl4WebDev/vet-user/internal/unread"
)

// fakeAdapter records transport calls and lets tests drive inbound events.
type fakeAdapter struct {
	mu           sync.Mutex
	state        transport.State
	connectErr   error
	connects     []string
	joins        [][2]string
	sent         []models.Message
	msgHandlers  []func(models.Message)
	histHandlers []func([]models.Message)
	unsubCount   int
	disconnected bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{state: transport.StateDisconnected}
}

func (f *fakeAdapter) Connect(ctx context.Context, selfID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, selfID)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state = transport.StateConnected
	return nil
}

func (f *fakeAdapter) JoinRoom(selfID, peerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, [2]string{selfID, peerID})
	return nil
}

func (f *fakeAdapter) Send(msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeAdapter) OnMessage(handler func(models.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgHandlers = append(f.msgHandlers, handler)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubCount++
	}
}

func (f *fakeAdapter) OnHistory(handler func([]models.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histHandlers = append(f.histHandlers, handler)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubCount++
	}
}

func (f *fakeAdapter) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAdapter) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.state = transport.StateDisconnected
}

func (f *fakeAdapter) deliver(msg models.Message) {
	f.mu.Lock()
	handlers := append([]func(models.Message){}, f.msgHandlers...)
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(msg)
	}
}

func (f *fakeAdapter) replay(msgs []models.Message) {
	f.mu.Lock()
	handlers := append([]func([]models.Message){}, f.histHandlers...)
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(msgs)
	}
}

func newTestStore(t *testing.T) *unread.Store {
	t.Helper()
	persister := new(mocks.PersisterMock)
	persister.On("Load").Return(nil, nil)
	persister.On("Save", mock.Anything).Return(nil)
	return unread.NewStore(persister)
}

func twoClinics() []models.ConversationPeer {
	return []models.ConversationPeer{
		{ID: "A", DisplayName: "Happy Paws", LastMessagePreview: models.DefaultPreview},
		{ID: "B", DisplayName: "City Vet", LastMessagePreview: models.DefaultPreview},
	}
}

func newReadyController(t *testing.T) (*Controller, *fakeAdapter, *unread.Store) {
	t.Helper()

	adapter := newFakeAdapter()
	store := newTestStore(t)

	dir := new(mocks.DirectoryMock)
	dir.On("List", mock.Anything).Return(twoClinics())

	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve").Return("user-1", nil)

	controller := NewController(adapter, dir, store, resolver, nil)
	require.NoError(t, controller.Init(context.Background()))
	require.Equal(t, PhaseReady, controller.Phase())

	return controller, adapter, store
}

func TestInitNotAuthenticated(t *testing.T) {
	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve").Return("", identity.ErrNotAuthenticated)

	controller := NewController(newFakeAdapter(), new(mocks.DirectoryMock), newTestStore(t), resolver, nil)

	err := controller.Init(context.Background())
	assert.ErrorIs(t, err, identity.ErrNotAuthenticated)
	assert.Equal(t, PhaseNotAuthenticated, controller.Phase())
}

func TestInitConnectsRegistersAndBulkJoins(t *testing.T) {
	controller, adapter, _ := newReadyController(t)

	assert.Equal(t, []string{"user-1"}, adapter.connects)
	assert.Contains(t, adapter.joins, [2]string{"user-1", "A"})
	assert.Contains(t, adapter.joins, [2]string{"user-1", "B"})
	assert.Equal(t, "user-1", controller.SelfID())
}

func TestInitSurvivesConnectFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.connectErr = transport.ErrNotConnected

	dir := new(mocks.DirectoryMock)
	dir.On("List", mock.Anything).Return(twoClinics())
	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve").Return("user-1", nil)

	controller := NewController(adapter, dir, newTestStore(t), resolver, nil)

	require.NoError(t, controller.Init(context.Background()))
	assert.Equal(t, PhaseReady, controller.Phase())
	assert.False(t, controller.Connected())
}

func TestSelectResetsUnreadAndJoinsAgain(t *testing.T) {
	controller, adapter, store := newReadyController(t)

	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "hello"})
	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "anyone?"})
	require.Equal(t, 2, store.Get("A"))

	require.NoError(t, controller.Select("A"))

	assert.Equal(t, PhaseActive, controller.Phase())
	assert.Equal(t, "A", controller.ActivePeer())
	assert.Equal(t, 0, store.Get("A"))
	// one bulk join at init plus the idempotent safety-net join on select
	assert.Equal(t, [2]string{"user-1", "A"}, adapter.joins[len(adapter.joins)-1])
	assert.Empty(t, controller.History())
}

func TestSelectUnknownPeer(t *testing.T) {
	controller, _, _ := newReadyController(t)
	assert.ErrorIs(t, controller.Select("nope"), ErrUnknownPeer)
}

func TestSelectBeforeInit(t *testing.T) {
	controller := NewController(newFakeAdapter(), new(mocks.DirectoryMock), newTestStore(t), new(mocks.ResolverMock), nil)
	assert.ErrorIs(t, controller.Select("A"), ErrNotReady)
}

func TestNoCrossContamination(t *testing.T) {
	controller, adapter, store := newReadyController(t)

	// From the worked example: message from A while nothing is active.
	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "hi"})
	assert.Equal(t, 1, store.Get("A"))
	assert.Equal(t, 0, store.Get("B"))
	assert.Equal(t, 1, store.Total())

	require.NoError(t, controller.Select("A"))
	assert.Equal(t, 0, store.Total())

	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "welcome"})
	require.Len(t, controller.History(), 1)

	// B writes while A is active: A's history untouched, B's count bumped.
	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "reminder"})

	history := controller.History()
	require.Len(t, history, 1)
	assert.Equal(t, "A", history[0].SenderID)
	assert.Equal(t, 0, store.Get("A"))
	assert.Equal(t, 1, store.Get("B"))
	assert.Equal(t, 1, store.Total())
}

func TestInboundUpdatesPreview(t *testing.T) {
	controller, adapter, _ := newReadyController(t)

	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "vaccine due"})

	for _, peer := range controller.Peers() {
		if peer.ID == "B" {
			assert.Equal(t, "vaccine due", peer.LastMessagePreview)
		} else {
			assert.Equal(t, models.DefaultPreview, peer.LastMessagePreview)
		}
	}
}

func TestSwitchingAwayKeepsAccumulatedCount(t *testing.T) {
	controller, adapter, store := newReadyController(t)

	require.NoError(t, controller.Select("A"))
	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "one"})
	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "two"})
	require.Equal(t, 2, store.Get("B"))

	require.NoError(t, controller.Select("B"))
	assert.Equal(t, 0, store.Get("B"))

	// A had no unread when we left it; switching away never zeroes counts.
	require.NoError(t, controller.Select("A"))
	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "three"})
	require.NoError(t, controller.Select("B"))
	assert.Equal(t, 0, store.Get("B"))
	assert.Equal(t, 0, store.Get("A"))
}

func TestSendRequiresActivePeer(t *testing.T) {
	controller, _, _ := newReadyController(t)
	assert.ErrorIs(t, controller.Send("hello"), ErrNoActivePeer)
}

func TestSendWhitespaceIsNoop(t *testing.T) {
	controller, adapter, _ := newReadyController(t)
	require.NoError(t, controller.Select("A"))

	require.NoError(t, controller.Send("   "))
	assert.Empty(t, adapter.sent)
	assert.Empty(t, controller.History())
}

func TestSendWhileDisconnected(t *testing.T) {
	controller, adapter, _ := newReadyController(t)
	require.NoError(t, controller.Select("A"))

	adapter.mu.Lock()
	adapter.state = transport.StateReconnecting
	adapter.mu.Unlock()

	assert.ErrorIs(t, controller.Send("hello"), transport.ErrNotConnected)
	assert.Empty(t, adapter.sent)
}

func TestSendOptimisticEchoAndDedup(t *testing.T) {
	controller, adapter, _ := newReadyController(t)
	require.NoError(t, controller.Select("A"))

	require.NoError(t, controller.Send("hello there"))

	require.Len(t, adapter.sent, 1)
	sent := adapter.sent[0]
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "user-1", sent.SenderID)
	assert.Equal(t, "A", sent.ReceiverID)
	require.Len(t, controller.History(), 1)

	// Backend echoes the same message back; it must not appear twice.
	adapter.deliver(sent)
	assert.Len(t, controller.History(), 1)

	// An echo without our id is a genuine new message from this session's
	// perspective only if it targets the active peer.
	adapter.deliver(models.Message{SenderID: "user-1", ReceiverID: "A", Text: "second"})
	assert.Len(t, controller.History(), 2)
}

func TestOwnEchoForInactivePeerIgnored(t *testing.T) {
	controller, adapter, store := newReadyController(t)
	require.NoError(t, controller.Select("A"))

	adapter.deliver(models.Message{SenderID: "user-1", ReceiverID: "B", Text: "sent elsewhere"})

	assert.Empty(t, controller.History())
	assert.Equal(t, 0, store.Total())
}

func TestHistoryReplayReplacesAndFilters(t *testing.T) {
	controller, adapter, _ := newReadyController(t)
	require.NoError(t, controller.Select("A"))

	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "stale"})
	require.Len(t, controller.History(), 1)

	adapter.replay([]models.Message{
		{ID: "m1", SenderID: "A", ReceiverID: "user-1", Text: "first"},
		{ID: "m2", SenderID: "user-1", ReceiverID: "A", Text: "second"},
		{ID: "m3", SenderID: "B", ReceiverID: "user-1", Text: "other room"},
	})

	history := controller.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
}

func TestHistoryReplayIgnoredWithoutActivePeer(t *testing.T) {
	controller, adapter, _ := newReadyController(t)

	adapter.replay([]models.Message{{SenderID: "A", ReceiverID: "user-1", Text: "x"}})
	assert.Empty(t, controller.History())
}

func TestTeardown(t *testing.T) {
	controller, adapter, store := newReadyController(t)
	require.NoError(t, controller.Select("A"))
	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "pending"})
	require.Equal(t, 1, store.Get("B"))

	controller.Teardown()

	assert.True(t, adapter.disconnected)
	assert.Equal(t, 2, adapter.unsubCount)
	assert.Equal(t, PhaseUninitialized, controller.Phase())

	// Late events must not mutate state for a torn-down session.
	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "late"})
	assert.Empty(t, controller.History())

	// The unread store outlives the session.
	assert.Equal(t, 1, store.Get("B"))
}

func TestUnreadResetAndIncrementRouting(t *testing.T) {
	store := new(mocks.UnreadStoreMock)
	store.On("Reset", "A").Return()
	store.On("Increment", "B").Return(1)
	store.On("Total").Return(0)

	adapter := newFakeAdapter()
	dir := new(mocks.DirectoryMock)
	dir.On("List", mock.Anything).Return(twoClinics())
	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve").Return("user-1", nil)

	controller := NewController(adapter, dir, store, resolver, nil)
	require.NoError(t, controller.Init(context.Background()))

	require.NoError(t, controller.Select("A"))
	store.AssertCalled(t, "Reset", "A")

	adapter.deliver(models.Message{SenderID: "B", ReceiverID: "user-1", Text: "ping"})
	store.AssertCalled(t, "Increment", "B")
	store.AssertNotCalled(t, "Increment", "A")
	store.AssertNotCalled(t, "Reset", "B")
}

func TestNotifierReceivesUnreadEvents(t *testing.T) {
	adapter := newFakeAdapter()
	store := newTestStore(t)

	dir := new(mocks.DirectoryMock)
	dir.On("List", mock.Anything).Return(twoClinics())
	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve").Return("user-1", nil)

	notifier := new(mocks.NotifierMock)
	notifier.On("Broadcast", mock.Anything).Return()

	controller := NewController(adapter, dir, store, resolver, notifier)
	require.NoError(t, controller.Init(context.Background()))

	adapter.deliver(models.Message{SenderID: "A", ReceiverID: "user-1", Text: "ping"})

	found := false
	for _, call := range notifier.Calls {
		event := call.Arguments.Get(0).(models.PortalEvent)
		if event.Type == "unread" && event.PeerID == "A" && event.Unread == 1 && event.TotalUnread == 1 {
			found = true
		}
	}
	assert.True(t, found, "expected an unread event for peer A")
}
