package chathub

import (
	"context"
	"sync"
	"time"

	"campusconnect/backend/internal/matchmaking"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/presence"
	"campusconnect/backend/internal/session"
	"campusconnect/backend/internal/signaling"

	"go.uber.org/zap"
)

const persistTimeout = 10 * time.Second

// Store is the persistence the hub writes to. Every call is made off the
// event loop; failures are logged and never undo in-memory state.
type Store interface {
	SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID, reason string, at time.Time) error
	CloseOrphanedRooms(ctx context.Context) (int64, error)
}

// Pool is a matcher over connection handles.
type Pool = matchmaking.Matcher[session.Handle, models.PeerProfile]

type Config struct {
	// MatchResponseTimeout bounds how long a match proposal waits for answers.
	MatchResponseTimeout time.Duration
	Logger               *zap.Logger
}

// ManagerService is the hub: it owns the live clients and processes
// register, unregister and inbound events one at a time on its Run loop.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound
	staleCh      chan presence.Presence

	mu      sync.RWMutex
	clients map[session.Handle]Client

	Registry    *presence.Registry
	Directory   *session.Directory
	Voice       *Pool
	Video       *Pool
	Relay       *signaling.Relay
	Broadcaster *Broadcaster

	store  Store
	rooms  *roomTracker
	logger *zap.Logger

	persistWG sync.WaitGroup
	// writesMu guards lastWrite, the tail of each user's presence writes.
	writesMu  sync.Mutex
	lastWrite map[string]chan struct{}
	done      chan struct{}
	now       func() time.Time
}

// NewManagerService wires the hub. store may be nil, in which case nothing
// is persisted.
func NewManagerService(store Store, registry *presence.Registry, cfg Config) *ManagerService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = presence.NewRegistry()
	}

	m := &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound),
		staleCh:      make(chan presence.Presence, 64),
		clients:      make(map[session.Handle]Client),
		Registry:     registry,
		Directory:    session.NewDirectory(),
		store:        store,
		logger:       logger,
		lastWrite:    make(map[string]chan struct{}),
		done:         make(chan struct{}),
		now:          time.Now,
	}
	m.rooms = newRoomTracker(m)
	m.Broadcaster = NewBroadcaster(m, m.Directory, logger)
	m.Relay = signaling.NewRelay(m.Directory, m, logger.Named("signaling"))

	m.Voice = m.newPool(models.ChatKindVoice, "", cfg.MatchResponseTimeout)
	m.Video = m.newPool(models.ChatKindVideo, VideoPrefix, cfg.MatchResponseTimeout)
	return m
}

func (m *ManagerService) newPool(kind, prefix string, timeout time.Duration) *Pool {
	notifier := &matchNotifier{
		t:      m,
		dir:    m.Directory,
		prefix: prefix,
		logger: m.logger.Named(kind),
	}
	pool := matchmaking.New[session.Handle, models.PeerProfile](notifier, m.profile, matchmaking.Options{
		Name:           kind,
		PendingTimeout: timeout,
		Logger:         m.logger.Named("matchmaking"),
	})
	pool.OnChatStart = func(match matchmaking.Match[session.Handle]) { m.rooms.started(kind, match) }
	pool.OnChatEnd = func(match matchmaking.Match[session.Handle], reason matchmaking.EndReason) {
		m.rooms.ended(kind, match, reason)
	}
	return pool
}

// profile resolves the summary shown to a matched peer. Handles without a
// session are gone and must not be paired.
func (m *ManagerService) profile(h session.Handle) (models.PeerProfile, bool) {
	s, ok := m.Directory.Lookup(h)
	if !ok {
		return models.PeerProfile{}, false
	}
	return s.Identity.Profile(), true
}

// Run processes hub events until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	m.closeOrphanedRooms(ctx)
	m.logger.Info("hub started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return

		case client := <-m.RegisterCh:
			m.register(client)

		case client := <-m.UnregisterCh:
			m.unregister(client)

		case in := <-m.IncomingCh:
			m.handleIncoming(in)

		case p := <-m.staleCh:
			m.handleStale(p)
		}
	}
}

// Register hands a new client to the hub. It returns false once the hub
// has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Deliver passes an inbound event to the hub. It returns false once the
// hub has stopped.
func (m *ManagerService) Deliver(in Inbound) bool {
	select {
	case m.IncomingCh <- in:
		return true
	case <-m.done:
		return false
	}
}

// NotifyStale is the sweeper callback. It never blocks the sweeper.
func (m *ManagerService) NotifyStale(p presence.Presence) {
	select {
	case m.staleCh <- p:
	case <-m.done:
	default:
		m.logger.Warn("stale presence dropped, hub busy", zap.String("user_id", p.UserID))
	}
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// WaitPersisted blocks until in-flight storage writes finish or ctx is done.
func (m *ManagerService) WaitPersisted(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		m.persistWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ManagerService) register(c Client) {
	h := c.Handle()
	identity := c.Identity()
	log := m.logger.With(zap.String("handle", h.String()), zap.String("user_id", identity.UserID))

	if _, err := m.Directory.Bind(h, identity); err != nil {
		m.mu.RLock()
		existing := m.clients[h]
		m.mu.RUnlock()
		if existing != c {
			c.Close()
		}
		log.Warn("rejecting client", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.clients[h] = c
	m.mu.Unlock()

	m.Directory.JoinRoom(h, UserRoom(identity.UserID))
	at := m.Registry.Touch(identity.UserID)
	m.persistPresence(identity.UserID, true, at)

	m.Broadcaster.BroadcastOnline(identity.UserID, h)
	m.Broadcaster.BroadcastOnlineCount(m.Registry.Count())

	log.Info("client registered", zap.Int("clients", m.ClientCount()))
}

func (m *ManagerService) unregister(c Client) {
	h := c.Handle()

	m.mu.Lock()
	if current, ok := m.clients[h]; !ok || current != c {
		m.mu.Unlock()
		return
	}
	delete(m.clients, h)
	m.mu.Unlock()
	c.Close()

	m.Voice.Disconnect(h)
	m.Video.Disconnect(h)

	s, ok := m.Directory.Unbind(h)
	if !ok {
		return
	}
	userID := s.UserID()
	log := m.logger.With(zap.String("handle", h.String()), zap.String("user_id", userID))

	if s.InRoom(VoiceLobby) {
		m.Broadcaster.BroadcastLobby(VoiceLobby, models.EventVoiceChatUsers)
	}
	if s.InRoom(VideoLobby) {
		m.Broadcaster.BroadcastLobby(VideoLobby, models.EventVideoChatUsers)
	}

	if len(m.Directory.HandlesForUser(userID)) > 0 {
		log.Info("client unregistered, user still connected elsewhere")
		return
	}

	m.Registry.Remove(userID)
	at := m.now()
	m.persistPresence(userID, false, at)
	m.Broadcaster.BroadcastOffline(userID)
	m.Broadcaster.BroadcastOnlineCount(m.Registry.Count())

	log.Info("client unregistered", zap.Int("clients", m.ClientCount()))
}

// handleStale announces a user the sweeper expired. The sweeper already
// removed the registry entry and persisted the offline status.
func (m *ManagerService) handleStale(p presence.Presence) {
	if m.Registry.IsOnline(p.UserID) {
		// Came back between the sweep and now.
		return
	}
	if len(m.Directory.HandlesForUser(p.UserID)) > 0 {
		// An open socket keeps the user online; undo the sweeper's write.
		at := m.Registry.Touch(p.UserID)
		m.persistPresence(p.UserID, true, at)
		m.logger.Debug("swept user still connected, kept online", zap.String("user_id", p.UserID))
		return
	}
	m.Broadcaster.BroadcastOffline(p.UserID)
	m.Broadcaster.BroadcastOnlineCount(m.Registry.Count())
}

func (m *ManagerService) shutdown() {
	m.mu.Lock()
	clients := make([]Client, 0, len(m.clients))
	for h, c := range m.clients {
		clients = append(clients, c)
		delete(m.clients, h)
	}
	m.mu.Unlock()

	for _, c := range clients {
		m.Voice.Disconnect(c.Handle())
		m.Video.Disconnect(c.Handle())
		m.Directory.Unbind(c.Handle())
		c.Close()
	}
	m.logger.Info("hub stopped", zap.Int("closed_clients", len(clients)))
}

// persist runs fn in the background with its own deadline.
func (m *ManagerService) persist(what string, fn func(ctx context.Context) error) {
	if m.store == nil {
		return
	}
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.logger.Error("storage write failed", zap.String("op", what), zap.Error(err))
		}
	}()
}

// touch records activity on one of the user's sockets. A user whose entry
// had lapsed is announced again.
func (m *ManagerService) touch(s session.Session) {
	at, revived := m.Registry.Refresh(s.UserID())
	if !revived {
		return
	}
	m.persistPresence(s.UserID(), true, at)
	m.Broadcaster.BroadcastOnline(s.UserID(), s.Handle)
	m.Broadcaster.BroadcastOnlineCount(m.Registry.Count())
}

// persistPresence writes a user's online status. Writes for the same user
// run in the order they were issued.
func (m *ManagerService) persistPresence(userID string, online bool, at time.Time) {
	if m.store == nil {
		return
	}
	done := make(chan struct{})
	m.writesMu.Lock()
	prev := m.lastWrite[userID]
	m.lastWrite[userID] = done
	m.writesMu.Unlock()

	what := "mark offline"
	if online {
		what = "set online"
	}
	m.persist(what, func(ctx context.Context) error {
		defer func() {
			m.writesMu.Lock()
			if m.lastWrite[userID] == done {
				delete(m.lastWrite, userID)
			}
			m.writesMu.Unlock()
			close(done)
		}()
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return m.store.SetOnlineStatus(ctx, userID, online, at)
	})
}

func (m *ManagerService) closeOrphanedRooms(ctx context.Context) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	n, err := m.store.CloseOrphanedRooms(ctx)
	if err != nil {
		m.logger.Error("failed to close orphaned chat rooms", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("closed chat rooms left open by previous run", zap.Int64("rooms", n))
	}
}

// --- Transport ---

func (m *ManagerService) Send(h session.Handle, env models.Envelope) bool {
	m.mu.RLock()
	c, ok := m.clients[h]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.Send(env) {
		m.logger.Warn("client send buffer full, dropping event",
			zap.String("handle", h.String()), zap.String("type", env.Type))
		return false
	}
	return true
}

func (m *ManagerService) Broadcast(env models.Envelope, except session.Handle) int {
	m.mu.RLock()
	targets := make([]Client, 0, len(m.clients))
	for h, c := range m.clients {
		if h != except {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	return m.sendAll(targets, env)
}

func (m *ManagerService) BroadcastToRoom(roomID string, env models.Envelope, except session.Handle) int {
	handles := m.Directory.HandlesInRoom(roomID)
	m.mu.RLock()
	targets := make([]Client, 0, len(handles))
	for _, h := range handles {
		if c, ok := m.clients[h]; ok && h != except {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	return m.sendAll(targets, env)
}

func (m *ManagerService) JoinRoom(h session.Handle, roomID string) bool {
	return m.Directory.JoinRoom(h, roomID)
}

func (m *ManagerService) sendAll(targets []Client, env models.Envelope) int {
	sent := 0
	for _, c := range targets {
		if c.Send(env) {
			sent++
		} else {
			m.logger.Warn("client send buffer full, dropping event",
				zap.String("handle", c.Handle().String()), zap.String("type", env.Type))
		}
	}
	return sent
}

// --- Introspection ---

func (m *ManagerService) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Stats summarizes both matchmaking pools.
type Stats struct {
	OnlineUsers int                 `json:"onlineUsers"`
	Connections int                 `json:"connections"`
	OpenChats   int                 `json:"openChats"`
	Pools       []matchmaking.Stats `json:"pools"`
}

func (m *ManagerService) Stats() Stats {
	return Stats{
		OnlineUsers: m.Registry.Count(),
		Connections: m.ClientCount(),
		OpenChats:   m.rooms.open(),
		Pools:       []matchmaking.Stats{m.Voice.Stats(), m.Video.Stats()},
	}
}
