package services

import (
	"testing"

	"labelens-backend/internal/database"
	"labelens-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuthTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(&models.User{}, &models.UsageEvent{}, &models.Purchase{})
	db.AutoMigrate(&models.User{}, &models.UsageEvent{}, &models.Purchase{})

	database.DB = db
}

func TestRegisterUser(t *testing.T) {
	setupAuthTestDB()

	// The first registered user becomes the admin.
	first, err := RegisterUser("founder", "password123")
	assert.NoError(t, err)
	assert.Equal(t, "admin", first.Role)
	assert.NotEqual(t, "password123", first.Password)

	second, err := RegisterUser("member", "password123")
	assert.NoError(t, err)
	assert.Equal(t, "user", second.Role)

	_, err = RegisterUser("founder", "password456")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLoginUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_secret")
	setupAuthTestDB()

	_, err := RegisterUser("login-user", "password123")
	assert.NoError(t, err)

	token, user, err := LoginUser("login-user", "password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "login-user", user.Username)

	_, _, err = LoginUser("login-user", "wrong-password")
	assert.Error(t, err)

	_, _, err = LoginUser("nobody", "password123")
	assert.Error(t, err)
}
