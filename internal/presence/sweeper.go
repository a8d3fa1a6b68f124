package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval matches the staleness threshold.
const DefaultSweepInterval = 5 * time.Minute

// persistTimeout bounds a single offline-status write.
const persistTimeout = 10 * time.Second

// OfflineWriter persists that a user went offline.
type OfflineWriter interface {
	MarkOffline(ctx context.Context, userID string, lastSeenAt time.Time) error
}

// Sweeper periodically evicts stale registry entries.
type Sweeper struct {
	Registry *Registry
	Writer   OfflineWriter
	TTL      time.Duration
	Interval time.Duration

	// OnStale is called synchronously for every evicted user after the
	// registry has been updated. Optional.
	OnStale func(p Presence)

	Logger *zap.Logger
	// Now is the time source used to compute staleness.
	Now func() time.Time
}

func NewSweeper(registry *Registry, writer OfflineWriter, ttl, interval time.Duration, logger *zap.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		Registry: registry,
		Writer:   writer,
		TTL:      ttl,
		Interval: interval,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("presence sweeper started",
		zap.Duration("ttl", s.TTL), zap.Duration("interval", s.Interval))

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("presence sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns the evicted entries.
// Persistence happens in the background; a failing write for one user is
// logged and does not affect the others.
func (s *Sweeper) Sweep(ctx context.Context) []Presence {
	stale := s.Registry.SweepStale(s.TTL, s.Now())

	for _, p := range stale {
		s.Logger.Info("removing inactive connection",
			zap.String("user_id", p.UserID), zap.Time("last_seen", p.LastActivityAt))

		if s.Writer != nil {
			go s.persist(context.WithoutCancel(ctx), p)
		}
		if s.OnStale != nil {
			s.OnStale(p)
		}
	}

	if len(stale) > 0 {
		s.Logger.Info("cleaned up inactive connections", zap.Int("count", len(stale)))
	}
	return stale
}

func (s *Sweeper) persist(ctx context.Context, p Presence) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := s.Writer.MarkOffline(ctx, p.UserID, p.LastActivityAt); err != nil {
		s.Logger.Error("failed to persist offline status during sweep",
			zap.String("user_id", p.UserID), zap.Error(err))
	}
}
