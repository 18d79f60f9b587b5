package user

import (
	"net/http"

	"labelens-backend/internal/database"
	"labelens-backend/internal/models"
	"labelens-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// CurrentUser returns the authenticated user's profile and quota summary.
func CurrentUser(c *gin.Context) {
	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	u := user.(models.User)

	// Quota counters must come from the source of truth, not the cached row
	// the middleware resolved.
	var latestUser models.User
	if err := database.DB.First(&latestUser, u.ID).Error; err == nil {
		u = latestUser
	}

	token, err := utils.GenerateToken(u.ID, u.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Could not generate token"))
		return
	}

	var usagePercentage float64
	if u.QuotaTotal > 0 {
		usagePercentage = float64(u.QuotaUsed) / float64(u.QuotaTotal) * 100
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("User information retrieved successfully", UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Quota: &QuotaInfo{
			Total:           u.QuotaTotal,
			Used:            u.QuotaUsed,
			Remaining:       u.RemainingCredits(),
			UsagePercentage: usagePercentage,
		},
		Token: token,
	}))
}
