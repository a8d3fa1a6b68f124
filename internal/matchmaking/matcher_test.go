package matchmaking_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"campusconnect/backend/internal/matchmaking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Notifier that keeps a flat log of every event.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) MatchFound(to, peer string, profile string) {
	r.add("matchFound:%s<-%s(%s)", to, peer, profile)
}
func (r *recorder) WaitingOnPeer(to string) { r.add("waiting:%s", to) }
func (r *recorder) ChatStart(to, peer string, profile string) {
	r.add("chatStart:%s<-%s(%s)", to, peer, profile)
}
func (r *recorder) ChatSkip(to string)          { r.add("chatSkip:%s", to) }
func (r *recorder) ChatSkippedBy(to, by string) { r.add("skippedBy:%s<-%s", to, by) }
func (r *recorder) ChatEnded(to, by string)     { r.add("chatEnded:%s<-%s", to, by) }
func (r *recorder) PeerLeft(to, peer string, reason string) {
	r.add("peerLeft:%s<-%s(%s)", to, peer, reason)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// profiles is a ProfileFunc backed by a set of live handles.
type profiles struct {
	mu   sync.Mutex
	gone map[string]bool
}

func (p *profiles) lookup(h string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[h] {
		return "", false
	}
	return "P-" + h, true
}

func (p *profiles) kill(h string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone[h] = true
}

func createTestMatcher(opts matchmaking.Options) (*matchmaking.Matcher[string, string], *recorder, *profiles) {
	rec := &recorder{}
	prof := &profiles{gone: make(map[string]bool)}
	return matchmaking.New[string, string](rec, prof.lookup, opts), rec, prof
}

func TestMatcher_NoSelfMatch(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})

	m.StartSearch("a")
	m.StartSearch("a")

	assert.Equal(t, []string{"a"}, m.Queue())
	assert.Empty(t, rec.Events())
	assert.Equal(t, matchmaking.Queued, m.State("a"))
}

func TestMatcher_PairsInArrivalOrder(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})

	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")

	assert.Equal(t, []string{
		"matchFound:a<-b(P-b)",
		"matchFound:b<-a(P-a)",
	}, rec.Events())
	assert.Equal(t, []string{"c"}, m.Queue())
	assert.Equal(t, matchmaking.Pending, m.State("a"))
	assert.Equal(t, matchmaking.Pending, m.State("b"))
	assert.Equal(t, 1, m.PendingCount())

	match, ok := m.MatchOf("b")
	require.True(t, ok)
	assert.Equal(t, "a", match.A)
	assert.Equal(t, "b", match.B)
	assert.Equal(t, matchmaking.StatePending, match.State)
}

func TestMatcher_SearchWhileMatchedIsIgnored(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	rec.Reset()

	m.StartSearch("a")
	m.StartSearch("c")

	assert.Empty(t, rec.Events())
	assert.Equal(t, []string{"c"}, m.Queue())
}

func TestMatcher_AcceptAcceptStartsChat(t *testing.T) {
	// Arrange
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	var started []matchmaking.Match[string]
	m.OnChatStart = func(match matchmaking.Match[string]) { started = append(started, match) }
	m.StartSearch("a")
	m.StartSearch("b")
	rec.Reset()

	// Act
	okA := m.Respond("a", matchmaking.Accept)
	okB := m.Respond("b", matchmaking.Accept)

	// Assert
	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, []string{
		"waiting:a",
		"chatStart:b<-a(P-a)",
		"chatStart:a<-b(P-b)",
	}, rec.Events())
	assert.Equal(t, matchmaking.Active, m.State("a"))
	assert.Equal(t, matchmaking.Active, m.State("b"))
	assert.Zero(t, m.PendingCount())
	assert.Equal(t, 1, m.ActiveCount())
	require.Len(t, started, 1)
	assert.Equal(t, matchmaking.StateActive, started[0].State)
}

func TestMatcher_SkipRequeuesResponderThenPeer(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")
	rec.Reset()

	m.Respond("a", matchmaking.Skip)
	m.Respond("b", matchmaking.Accept)

	// Queue was [c, b, a]: c pairs with b, a keeps waiting.
	assert.Equal(t, []string{
		"waiting:a",
		"chatSkip:b",
		"chatSkip:a",
		"matchFound:c<-b(P-b)",
		"matchFound:b<-c(P-c)",
	}, rec.Events())
	assert.Equal(t, []string{"a"}, m.Queue())
	assert.Equal(t, matchmaking.Pending, m.State("b"))
}

func TestMatcher_RespondIgnoredWithoutPendingMatch(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")

	assert.False(t, m.Respond("a", matchmaking.Accept))
	assert.False(t, m.Respond("nobody", matchmaking.Skip))
	assert.Empty(t, rec.Events())
}

func TestMatcher_DoubleResponseIgnored(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	rec.Reset()

	first := m.Respond("a", matchmaking.Accept)
	second := m.Respond("a", matchmaking.Skip)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, []string{"waiting:a"}, rec.Events())
	match, _ := m.MatchOf("a")
	assert.Equal(t, matchmaking.Accept, match.Response("a"))
}

func TestMatcher_DisconnectDuringPendingRequeuesPeer(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")
	rec.Reset()

	m.Disconnect("a")

	assert.Equal(t, []string{
		"peerLeft:b<-a(disconnect)",
		"matchFound:c<-b(P-b)",
		"matchFound:b<-c(P-c)",
	}, rec.Events())
	assert.Equal(t, matchmaking.Idle, m.State("a"))

	rec.Reset()
	m.Disconnect("a")
	assert.Empty(t, rec.Events(), "second disconnect is a no-op")
}

func TestMatcher_DisconnectActiveChat(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	var endReasons []matchmaking.EndReason
	m.OnChatEnd = func(_ matchmaking.Match[string], r matchmaking.EndReason) { endReasons = append(endReasons, r) }
	m.StartSearch("a")
	m.StartSearch("b")
	m.Respond("a", matchmaking.Accept)
	m.Respond("b", matchmaking.Accept)
	rec.Reset()

	m.Disconnect("b")

	assert.Equal(t, []string{"peerLeft:a<-b(disconnect)"}, rec.Events())
	assert.Equal(t, []string{"a"}, m.Queue())
	assert.Zero(t, m.ActiveCount())
	assert.Equal(t, []matchmaking.EndReason{matchmaking.ReasonDisconnect}, endReasons)
}

func TestMatcher_DisconnectTwiceLeavesSameState(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	for _, h := range []string{"a", "b", "c", "d", "e"} {
		m.StartSearch(h)
	}
	m.Respond("c", matchmaking.Accept)
	m.Respond("d", matchmaking.Accept)

	snapshot := func() (queue []string, states []matchmaking.HandleState, stats matchmaking.Stats) {
		for _, h := range []string{"a", "b", "c", "d", "e"} {
			states = append(states, m.State(h))
		}
		return m.Queue(), states, m.Stats()
	}

	for _, h := range []string{"a", "c", "e"} {
		m.Disconnect(h)
		queue1, states1, stats1 := snapshot()
		rec.Reset()

		m.Disconnect(h)

		queue2, states2, stats2 := snapshot()
		assert.Equal(t, queue1, queue2, "queue after second disconnect of %s", h)
		assert.Equal(t, states1, states2, "states after second disconnect of %s", h)
		assert.Equal(t, stats1, stats2, "stats after second disconnect of %s", h)
		assert.Empty(t, rec.Events())
	}
}

func TestMatcher_DisconnectWhileQueued(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")

	m.Disconnect("a")
	m.StartSearch("b")

	assert.Equal(t, []string{"b"}, m.Queue())
	assert.Empty(t, rec.Events())
}

func TestMatcher_EndChatRequeuesNobody(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	var endReasons []matchmaking.EndReason
	m.OnChatEnd = func(_ matchmaking.Match[string], r matchmaking.EndReason) { endReasons = append(endReasons, r) }
	m.StartSearch("a")
	m.StartSearch("b")
	m.Respond("a", matchmaking.Accept)
	m.Respond("b", matchmaking.Accept)
	rec.Reset()

	ended := m.EndChat("a")

	assert.True(t, ended)
	assert.Equal(t, []string{"chatEnded:b<-a"}, rec.Events())
	assert.Empty(t, m.Queue())
	assert.Equal(t, matchmaking.Idle, m.State("a"))
	assert.Equal(t, matchmaking.Idle, m.State("b"))
	assert.Equal(t, []matchmaking.EndReason{matchmaking.ReasonEnded}, endReasons)

	assert.False(t, m.EndChat("a"))
}

func TestMatcher_SkipChatActiveRequeuesPeerOnly(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	var endReasons []matchmaking.EndReason
	m.OnChatEnd = func(_ matchmaking.Match[string], r matchmaking.EndReason) { endReasons = append(endReasons, r) }
	m.StartSearch("a")
	m.StartSearch("b")
	m.Respond("a", matchmaking.Accept)
	m.Respond("b", matchmaking.Accept)
	rec.Reset()

	skipped := m.SkipChat("a")

	assert.True(t, skipped)
	assert.Equal(t, []string{"skippedBy:b<-a"}, rec.Events())
	assert.Equal(t, []string{"b"}, m.Queue())
	assert.Equal(t, matchmaking.Idle, m.State("a"))
	assert.Equal(t, []matchmaking.EndReason{matchmaking.ReasonSkipped}, endReasons)
}

func TestMatcher_SkipChatDuringPending(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")
	rec.Reset()

	skipped := m.SkipChat("a")

	assert.True(t, skipped)
	assert.Equal(t, []string{
		"chatSkip:a",
		"chatSkip:b",
		"matchFound:c<-a(P-a)",
		"matchFound:a<-c(P-c)",
	}, rec.Events())
	assert.Equal(t, []string{"b"}, m.Queue())
	assert.False(t, m.SkipChat("nobody"))
}

func TestMatcher_DropsDepartedHandles(t *testing.T) {
	m, rec, prof := createTestMatcher(matchmaking.Options{})
	prof.kill("a")

	m.StartSearch("a")
	m.StartSearch("b")

	assert.Empty(t, rec.Events())
	assert.Equal(t, []string{"b"}, m.Queue())

	m.StartSearch("c")
	assert.Equal(t, []string{
		"matchFound:b<-c(P-c)",
		"matchFound:c<-b(P-b)",
	}, rec.Events())
}

func TestMatcher_PendingTimeoutResolvesAsSkip(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{PendingTimeout: 20 * time.Millisecond})
	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")
	m.Respond("a", matchmaking.Accept)

	assert.Eventually(t, func() bool { return len(rec.Events()) >= 7 }, time.Second, 5*time.Millisecond)

	// The silent side counts as a skip; the queue becomes [c, a, b].
	assert.Equal(t, []string{
		"matchFound:a<-b(P-b)",
		"matchFound:b<-a(P-a)",
		"waiting:a",
		"chatSkip:a",
		"chatSkip:b",
		"matchFound:c<-a(P-a)",
		"matchFound:a<-c(P-c)",
	}, rec.Events()[:7])

	m.Disconnect("a")
	m.Disconnect("b")
	m.Disconnect("c")
}

func TestMatcher_NoTimeoutWhenDisabled(t *testing.T) {
	m, rec, _ := createTestMatcher(matchmaking.Options{})
	m.StartSearch("a")
	m.StartSearch("b")
	rec.Reset()

	time.Sleep(30 * time.Millisecond)

	assert.Empty(t, rec.Events())
	assert.Equal(t, matchmaking.Pending, m.State("a"))
}

func TestMatcher_Stats(t *testing.T) {
	m, _, _ := createTestMatcher(matchmaking.Options{Name: "video"})
	m.StartSearch("a")
	m.StartSearch("b")
	m.StartSearch("c")
	m.StartSearch("d")
	m.StartSearch("e")
	m.Respond("a", matchmaking.Accept)
	m.Respond("b", matchmaking.Accept)

	assert.Equal(t, matchmaking.Stats{Pool: "video", Queued: 1, Pending: 1, Active: 1}, m.Stats())
	assert.Equal(t, 1, m.QueueLen())
}

func TestMatcher_ConcurrentSearches(t *testing.T) {
	m, _, _ := createTestMatcher(matchmaking.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.StartSearch(fmt.Sprintf("h%02d", i))
		}(i)
	}
	wg.Wait()

	assert.Zero(t, m.QueueLen())
	assert.Equal(t, 25, m.PendingCount())
}

func TestParseDecision(t *testing.T) {
	cases := map[string]matchmaking.Decision{
		"connect": matchmaking.Accept,
		"accept":  matchmaking.Accept,
		"skip":    matchmaking.Skip,
		"reject":  matchmaking.Skip,
	}
	for in, want := range cases {
		got, ok := matchmaking.ParseDecision(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := matchmaking.ParseDecision("maybe")
	assert.False(t, ok)
}
