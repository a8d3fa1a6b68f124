package chathub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"campusconnect/backend/internal/chathub"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/presence"
	"campusconnect/backend/internal/session"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify mock of chathub.Store.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error {
	args := m.Called(userID, online, at)
	return args.Error(0)
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID, reason string, at time.Time) error {
	args := m.Called(roomID, reason, at)
	return args.Error(0)
}

func (m *MockStorage) CloseOrphanedRooms(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

// newMockStorage accepts every call; tests assert on the recorded calls.
func newMockStorage() *MockStorage {
	s := new(MockStorage)
	s.On("CloseOrphanedRooms").Return(int64(0), nil).Maybe()
	s.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	s.On("SaveRoom", mock.Anything).Return(nil).Maybe()
	s.On("CloseRoom", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return s
}

// MockClient is a test double for chathub.Client that records what the
// hub sends to it.
type MockClient struct {
	handle   session.Handle
	identity models.Identity

	mu       sync.Mutex
	messages []models.Envelope
	closed   bool
	full     bool
}

func newMockClient(handle, userID string) *MockClient {
	return &MockClient{
		handle:   session.Handle(handle),
		identity: models.Identity{UserID: userID, DisplayName: "name-" + userID},
	}
}

func (c *MockClient) Handle() session.Handle    { return c.handle }
func (c *MockClient) Identity() models.Identity { return c.identity }

func (c *MockClient) Send(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.messages = append(c.messages, env)
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainMessages returns and forgets everything received so far.
func (c *MockClient) DrainMessages() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.messages
	c.messages = nil
	return out
}

// Types lists the event types received so far, in order.
func (c *MockClient) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Type)
	}
	return out
}

// Last decodes the payload of the most recent event of the given type.
func (c *MockClient) Last(t *testing.T, eventType string, into any) bool {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Type == eventType {
			if into != nil {
				require.NoError(t, json.Unmarshal(c.messages[i].Payload, into))
			}
			return true
		}
	}
	return false
}

// createTestHub starts a hub whose Run loop stops when the test ends.
func createTestHub(t *testing.T, store chathub.Store) *chathub.ManagerService {
	t.Helper()
	hub := chathub.NewManagerService(store, presence.NewRegistry(), chathub.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

// settle returns once the hub finished every event sent before it.
// The hub channels are unbuffered, so a no-op event can only be received
// after the previous one was handled.
func settle(hub *chathub.ManagerService) {
	hub.IncomingCh <- chathub.Inbound{}
}

func register(hub *chathub.ManagerService, clients ...*MockClient) {
	for _, c := range clients {
		hub.RegisterCh <- c
	}
	settle(hub)
}

func emit(t *testing.T, hub *chathub.ManagerService, c *MockClient, eventType string, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	hub.IncomingCh <- chathub.Inbound{Handle: c.Handle(), Envelope: env}
	settle(hub)
}
