package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"campusconnect/backend/internal/auth"
	"campusconnect/backend/internal/config"
	"campusconnect/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAdminStore struct {
	mock.Mock
}

func (m *MockAdminStore) ListOnlineUserIDs(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAdminStore) ResetPresence(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAdminStore) BanUser(ctx context.Context, userID string, d time.Duration) error {
	return m.Called(userID, d).Error(0)
}

func (m *MockAdminStore) UnbanUser(ctx context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func TestListOnline(t *testing.T) {
	s := new(MockAdminStore)
	s.On("ListOnlineUserIDs").Return([]string{"user_A", "user_B"}, nil)
	var out bytes.Buffer

	require.NoError(t, listOnline(context.Background(), s, &out))

	assert.Equal(t, "user_A\nuser_B\n2 user(s) online\n", out.String())
}

func TestListOnline_Error(t *testing.T) {
	s := new(MockAdminStore)
	s.On("ListOnlineUserIDs").Return(nil, errors.New("redis down"))

	err := listOnline(context.Background(), s, &bytes.Buffer{})

	assert.ErrorContains(t, err, "redis down")
}

func TestResetPresence(t *testing.T) {
	s := new(MockAdminStore)
	s.On("ResetPresence").Return(int64(7), nil)
	var out bytes.Buffer

	require.NoError(t, resetPresence(context.Background(), s, &out))

	assert.Contains(t, out.String(), "Marked 7 user(s) offline.")
}

func TestBanAndUnban(t *testing.T) {
	s := new(MockAdminStore)
	s.On("BanUser", "user_A", 6*time.Hour).Return(nil).Once()
	s.On("BanUser", "user_B", time.Duration(0)).Return(nil).Once()
	s.On("UnbanUser", "user_A").Return(nil).Once()
	var out bytes.Buffer

	require.NoError(t, banUser(context.Background(), s, "user_A", 6, &out))
	require.NoError(t, banUser(context.Background(), s, "user_B", 0, &out))
	require.NoError(t, unbanUser(context.Background(), s, "user_A", &out))
	assert.Error(t, banUser(context.Background(), s, "user_C", -1, &out))

	s.AssertExpectations(t)
	assert.Contains(t, out.String(), "User user_A has been banned for 6 hour(s).")
	assert.Contains(t, out.String(), "User user_B has been banned.")
	assert.Contains(t, out.String(), "User user_A has been unbanned.")
}

func TestPrintPresence(t *testing.T) {
	events := make(chan models.PresenceEvent, 2)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events <- models.PresenceEvent{UserID: "user_A", Online: true, At: at}
	events <- models.PresenceEvent{UserID: "user_A", Online: false, At: at}
	close(events)
	var out bytes.Buffer

	printPresence(events, &out)

	assert.Equal(t, "2026-03-01T12:00:00Z user_A online\n2026-03-01T12:00:00Z user_A offline\n", out.String())
}

func TestTokenCommand(t *testing.T) {
	cfg = &config.Config{JWTSecret: "cli-secret"}
	var out bytes.Buffer
	tokenCmd.SetOut(&out)

	require.NoError(t, tokenCmd.RunE(tokenCmd, []string{"user_A"}))

	users := &stubUsers{user: &models.User{ID: "user_A", Name: "Alice"}}
	id, err := auth.NewJWTAuthenticator("cli-secret", users).
		Authenticate(context.Background(), string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, "user_A", id.UserID)
}

type stubUsers struct {
	user *models.User
}

func (s *stubUsers) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.user, nil
}

func (s *stubUsers) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	return false, nil
}
