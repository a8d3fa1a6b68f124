package signaling_test

import (
	"encoding/json"
	"testing"

	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"
	"campusconnect/backend/internal/signaling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(h session.Handle, env models.Envelope) bool {
	args := m.Called(h, env)
	return args.Bool(0)
}

func createTestRelay(t *testing.T) (*signaling.Relay, *session.Directory, *MockSender) {
	t.Helper()
	dir := session.NewDirectory()
	_, err := dir.Bind("caller", models.Identity{UserID: "user_A"})
	require.NoError(t, err)
	_, err = dir.Bind("callee", models.Identity{UserID: "user_B"})
	require.NoError(t, err)
	sender := new(MockSender)
	return signaling.NewRelay(dir, sender, nil), dir, sender
}

func TestRelay_ForwardsPayloadWithSender(t *testing.T) {
	cases := []struct {
		kind  signaling.Kind
		field string
	}{
		{signaling.Offer, "offer"},
		{signaling.Answer, "answer"},
		{signaling.IceCandidate, "candidate"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			// Arrange
			relay, _, sender := createTestRelay(t)
			var sent models.Envelope
			sender.On("Send", session.Handle("callee"), mock.Anything).Return(true).Once().
				Run(func(args mock.Arguments) { sent = args.Get(1).(models.Envelope) })

			// Act
			ok := relay.Relay(tc.kind, "caller", "callee", json.RawMessage(`{"sdp":"v=0"}`))

			// Assert
			require.True(t, ok)
			sender.AssertExpectations(t)
			assert.Equal(t, string(tc.kind), sent.Type)

			var body map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(sent.Payload, &body))
			assert.JSONEq(t, `{"sdp":"v=0"}`, string(body[tc.field]))
			assert.JSONEq(t, `"caller"`, string(body["from"]))
		})
	}
}

func TestRelay_DropsWhenTargetGone(t *testing.T) {
	relay, dir, sender := createTestRelay(t)
	dir.Unbind("callee")

	ok := relay.Relay(signaling.Offer, "caller", "callee", json.RawMessage(`{}`))

	assert.False(t, ok)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRelay_DropsUnknownTargetAndKind(t *testing.T) {
	relay, _, sender := createTestRelay(t)

	assert.False(t, relay.Relay(signaling.Answer, "caller", "", json.RawMessage(`{}`)))
	assert.False(t, relay.Relay(signaling.Kind("bogus"), "caller", "callee", json.RawMessage(`{}`)))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRelay_InvalidPayloadIsDropped(t *testing.T) {
	relay, _, sender := createTestRelay(t)

	ok := relay.Relay(signaling.IceCandidate, "caller", "callee", json.RawMessage(`{broken`))

	assert.False(t, ok)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestParseKind(t *testing.T) {
	k, ok := signaling.ParseKind("ice-candidate")
	assert.True(t, ok)
	assert.Equal(t, signaling.IceCandidate, k)

	_, ok = signaling.ParseKind("typing")
	assert.False(t, ok)
}
