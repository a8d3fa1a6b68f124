package storage

import (
	"context"
	"time"

	"campusconnect/backend/internal/models"

	"gorm.io/gorm"
)

// ReasonRestart is the end reason stamped on rooms closed at startup.
const ReasonRestart = "restart"

// SaveRoom stores a chat room record.
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom sets IsActive = false and stamps the end time and reason.
func (s *Service) CloseRoom(ctx context.Context, roomID, reason string, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": reason,
		}).Error
}

// GetActiveRoomIDs returns every room still marked active.
func (s *Service) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	var roomIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Pluck("room_id", &roomIDs).Error; err != nil {
		return nil, err
	}
	return roomIDs, nil
}

// CloseOrphanedRooms closes rooms left active by a previous process.
// Matches live in memory only, so none of them can still be running.
func (s *Service) CloseOrphanedRooms(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   gorm.Expr("NOW()"),
			"end_reason": ReasonRestart,
		})
	return res.RowsAffected, res.Error
}
