package models_test

import (
	"reflect"
	"testing"

	"campusconnect/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{
		Email:     "a@campus.edu",
		Name:      "Alice",
		Favorites: pq.StringArray{"music", "travel"},
	}
	assert.Empty(t, user.ID)

	err := user.BeforeCreate(nil) // nil *gorm.DB is fine for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Email: "b@campus.edu"}

	assert.NoError(t, user.BeforeCreate(nil))
	assert.Equal(t, existingID, user.ID)
}

func TestUserBeforeCreate_MultipleUsers(t *testing.T) {
	users := []*models.User{
		{Email: "1@campus.edu"},
		{Email: "2@campus.edu"},
		{Email: "3@campus.edu"},
	}

	ids := make(map[string]bool)
	for _, user := range users {
		assert.NoError(t, user.BeforeCreate(nil))
		assert.NotContains(t, ids, user.ID, "Each user should have a unique ID")
		ids[user.ID] = true
	}
	assert.Len(t, ids, len(users))
}

// TestUserStructTags catches accidental tag removal during refactoring.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")
	assert.Equal(t, "id", idField.Tag.Get("json"))

	emailField, found := userType.FieldByName("Email")
	assert.True(t, found)
	assert.Contains(t, emailField.Tag.Get("gorm"), "uniqueIndex")

	favField, found := userType.FieldByName("Favorites")
	assert.True(t, found)
	assert.Contains(t, favField.Tag.Get("gorm"), "type:text[]")

	onlineField, found := userType.FieldByName("IsOnline")
	assert.True(t, found)
	assert.Contains(t, onlineField.Tag.Get("gorm"), "index")
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"nickname wins", models.User{Nickname: "ally", Name: "Alice", Email: "a@campus.edu"}, "ally"},
		{"falls back to name", models.User{Name: "Alice", Email: "a@campus.edu"}, "Alice"},
		{"falls back to email", models.User{Email: "a@campus.edu"}, "a@campus.edu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestUserIdentityAndProfile(t *testing.T) {
	user := &models.User{
		ID:           "user_A",
		Name:         "Alice",
		Campus:       "North",
		Batch:        "2025",
		Department:   "CS",
		ProfilePhoto: "avatars/a.png",
	}

	id := user.Identity()
	assert.Equal(t, models.Identity{
		UserID:      "user_A",
		DisplayName: "Alice",
		AvatarRef:   "avatars/a.png",
		Campus:      "North",
		Batch:       "2025",
		Department:  "CS",
	}, id)

	profile := id.Profile()
	assert.Equal(t, "user_A", profile.UserID)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "avatars/a.png", profile.Avatar)
}

func BenchmarkUserBeforeCreate(b *testing.B) {
	user := &models.User{Email: "bench@campus.edu"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user.ID = ""
		_ = user.BeforeCreate(nil)
	}
}
