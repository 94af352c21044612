package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/transport"
)

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) List(ctx context.Context) []models.ConversationPeer {
	args := m.Called(ctx)
	var peers []models.ConversationPeer
	if val := args.Get(0); val != nil {
		peers = val.([]models.ConversationPeer)
	}
	return peers
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type UnreadStoreMock struct {
	mock.Mock
}

func (m *UnreadStoreMock) Increment(peerID string) int {
	args := m.Called(peerID)
	return args.Int(0)
}

func (m *UnreadStoreMock) Reset(peerID string) {
	m.Called(peerID)
}

func (m *UnreadStoreMock) Get(peerID string) int {
	args := m.Called(peerID)
	return args.Int(0)
}

func (m *UnreadStoreMock) Total() int {
	args := m.Called()
	return args.Int(0)
}

func (m *UnreadStoreMock) Snapshot() map[string]int {
	args := m.Called()
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts
}

type PersisterMock struct {
	mock.Mock
}

func (m *PersisterMock) Save(counts map[string]int) error {
	args := m.Called(counts)
	return args.Error(0)
}

func (m *PersisterMock) Load() (map[string]int, error) {
	args := m.Called()
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Broadcast(event models.PortalEvent) {
	m.Called(event)
}

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Connect(ctx context.Context, selfID string) error {
	args := m.Called(ctx, selfID)
	return args.Error(0)
}

func (m *TransportMock) JoinRoom(selfID, peerID string) error {
	args := m.Called(selfID, peerID)
	return args.Error(0)
}

func (m *TransportMock) Send(msg models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *TransportMock) OnMessage(handler func(models.Message)) func() {
	args := m.Called(handler)
	if val := args.Get(0); val != nil {
		return val.(func())
	}
	return func() {}
}

func (m *TransportMock) OnHistory(handler func([]models.Message)) func() {
	args := m.Called(handler)
	if val := args.Get(0); val != nil {
		return val.(func())
	}
	return func() {}
}

func (m *TransportMock) State() transport.State {
	args := m.Called()
	return args.Get(0).(transport.State)
}

func (m *TransportMock) Disconnect() {
	m.Called()
}
