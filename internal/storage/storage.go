package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusconnect/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrUserNotFound is returned when no user row matches the id.
var ErrUserNotFound = errors.New("storage: user not found")

// Redis keys.
const (
	onlineSetKey    = "presence:online"
	lastSeenHashKey = "presence:last_seen"
	banKeyPrefix    = "ban:"

	// PresenceChannel carries models.PresenceEvent JSON messages.
	PresenceChannel = "presence:events"
)

type Storage interface {
	FindUserByID(ctx context.Context, userID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error
	MarkOffline(ctx context.Context, userID string, lastSeenAt time.Time) error
	ListOnlineUserIDs(ctx context.Context) ([]string, error)
	ResetPresence(ctx context.Context) (int64, error)
	SubscribePresence(ctx context.Context) (<-chan models.PresenceEvent, func() error, error)

	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID, reason string, at time.Time) error
	GetActiveRoomIDs(ctx context.Context) ([]string, error)
	CloseOrphanedRooms(ctx context.Context) (int64, error)

	IsUserBanned(ctx context.Context, userID string) (bool, error)
	BanUser(ctx context.Context, userID string, d time.Duration) error
	UnbanUser(ctx context.Context, userID string) error
}

// Service implements Storage on PostgreSQL (source of truth) and Redis
// (fast presence mirror, bans, pub/sub). Redis may be nil, in which case
// the Redis side of every method is skipped.
type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		Logger: logger,
	}
}

// OpenPostgres connects to PostgreSQL and migrates the tables this service owns.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.ChatRoom{}); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Service) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

// IsUserBanned checks the ban key in Redis.
func (s *Service) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	if s.Redis == nil {
		return false, nil
	}
	status, err := s.Redis.Get(ctx, banKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// BanUser blocks userID from connecting. d <= 0 bans without expiry.
func (s *Service) BanUser(ctx context.Context, userID string, d time.Duration) error {
	if s.Redis == nil {
		return errors.New("storage: bans require redis")
	}
	if d < 0 {
		d = 0
	}
	return s.Redis.Set(ctx, banKeyPrefix+userID, "banned", d).Err()
}

func (s *Service) UnbanUser(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return errors.New("storage: bans require redis")
	}
	return s.Redis.Del(ctx, banKeyPrefix+userID).Err()
}
