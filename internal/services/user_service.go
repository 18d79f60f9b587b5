package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"labelens-backend/internal/database"
	"labelens-backend/internal/models"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// FindUserByID resolves a user, preferring the redis cache. Every quota
// mutation invalidates the cached row, and billing paths bypass this function
// entirely (see QuotaSnapshot / CheckedDebit), so the cache only ever serves
// identity lookups.
func FindUserByID(userID uint) (models.User, error) {
	cacheKey := fmt.Sprintf("user:%d", userID)
	if database.RedisClient != nil {
		val, err := database.RedisClient.Get(database.Ctx, cacheKey).Result()
		if err == nil {
			var user models.User
			if err := json.Unmarshal([]byte(val), &user); err == nil {
				return user, nil
			}
		}
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		return user, err
	}

	if database.RedisClient != nil {
		if data, err := json.Marshal(user); err == nil {
			database.RedisClient.Set(database.Ctx, cacheKey, data, time.Hour)
		}
	}

	return user, nil
}

// InvalidateUserCache drops the cached row after any counter mutation.
func InvalidateUserCache(userID uint) {
	if database.RedisClient != nil {
		cacheKey := fmt.Sprintf("user:%d", userID)
		database.RedisClient.Del(database.Ctx, cacheKey)
	}
}

// FindUsers retrieves a paginated list of users.
func FindUsers(page, limit int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	offset := (page - 1) * limit

	if err := database.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := database.DB.Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}
