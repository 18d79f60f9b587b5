package user

import (
	"errors"
	"net/http"
	"strconv"

	"labelens-backend/internal/models"
	"labelens-backend/internal/services"
	"labelens-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// ListUsers returns a paginated user list with quota counters.
func ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, total, err := services.FindUsers(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list users"))
		return
	}

	resp := UserListResponse{Total: total, Users: make([]UserSummary, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, UserSummary{
			ID:         u.ID,
			Username:   u.Username,
			Role:       u.Role,
			QuotaTotal: u.QuotaTotal,
			QuotaUsed:  u.QuotaUsed,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Users retrieved successfully", resp))
}

// GrantCredits applies a manual top-up to one user. The grant is recorded as
// a purchase row like any provider-driven top-up.
func GrantCredits(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid user ID"))
		return
	}

	var input GrantCreditsInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	operator := "admin"
	if u, exists := c.Get("user"); exists {
		operator = u.(models.User).Username
	}

	_, err = services.GrantCreditsManually(uint(id), input.Credits, operator)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "User not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to grant credits"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Credits granted successfully", nil))
}
