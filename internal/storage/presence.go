package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusconnect/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetOnlineStatus writes the presence columns of the user row and mirrors
// them into Redis. A write older than the stored last_seen is ignored, so
// late writes cannot undo newer ones. The Redis mirror is best effort.
func (s *Service) SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error {
	res := presenceUpdate(s.DB.WithContext(ctx), userID, online, at)
	if res.Error != nil {
		return fmt.Errorf("set online=%t for %s: %w", online, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.Logger.Debug("presence write superseded or user unknown",
			zap.String("user_id", userID), zap.Bool("online", online), zap.Time("at", at))
		return nil
	}

	if rerr := s.mirrorPresence(ctx, userID, online, at); rerr != nil {
		s.Logger.Warn("redis presence mirror failed", zap.String("user_id", userID), zap.Error(rerr))
	}
	return nil
}

func presenceUpdate(db *gorm.DB, userID string, online bool, at time.Time) *gorm.DB {
	return db.Model(&models.User{}).
		Where("id = ? AND (last_seen IS NULL OR last_seen <= ?)", userID, at).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": at,
		})
}

// MarkOffline is SetOnlineStatus(false) for the sweeper and last-handle
// disconnects.
func (s *Service) MarkOffline(ctx context.Context, userID string, lastSeenAt time.Time) error {
	return s.SetOnlineStatus(ctx, userID, false, lastSeenAt)
}

func (s *Service) mirrorPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	if s.Redis == nil {
		return nil
	}
	pipe := s.Redis.Pipeline()
	if online {
		pipe.SAdd(ctx, onlineSetKey, userID)
	} else {
		pipe.SRem(ctx, onlineSetKey, userID)
	}
	pipe.HSet(ctx, lastSeenHashKey, userID, at.UTC().Format(time.RFC3339Nano))

	payload, err := json.Marshal(models.PresenceEvent{UserID: userID, Online: online, At: at.UTC()})
	if err != nil {
		return err
	}
	pipe.Publish(ctx, PresenceChannel, payload)

	_, err = pipe.Exec(ctx)
	return err
}

// ListOnlineUserIDs reads the Redis online set, falling back to the
// is_online column when Redis is not configured.
func (s *Service) ListOnlineUserIDs(ctx context.Context) ([]string, error) {
	if s.Redis != nil {
		return s.Redis.SMembers(ctx, onlineSetKey).Result()
	}
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ResetPresence marks every user offline. Used after a crash, when the
// in-memory registry is gone but rows still say online.
func (s *Service) ResetPresence(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Updates(map[string]interface{}{
			"is_online": false,
			"last_seen": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset presence: %w", res.Error)
	}
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, onlineSetKey).Err(); err != nil {
			return res.RowsAffected, fmt.Errorf("clear online set: %w", err)
		}
	}
	return res.RowsAffected, nil
}

// SubscribePresence streams presence events published by any backend
// instance. The channel closes when ctx is done or the returned close
// function is called.
func (s *Service) SubscribePresence(ctx context.Context) (<-chan models.PresenceEvent, func() error, error) {
	if s.Redis == nil {
		return nil, nil, errors.New("storage: presence subscription requires redis")
	}
	pubsub := s.Redis.Subscribe(ctx, PresenceChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", PresenceChannel, err)
	}

	out := make(chan models.PresenceEvent)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.Logger.Warn("bad presence event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
	}()
	return out, pubsub.Close, nil
}
