package upload

import (
	"net/http"
	"os"
	"path/filepath"

	"labelens-backend/internal/services"
	"labelens-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Store is swapped in tests.
var Store services.ImageUploader

func imageStore() services.ImageUploader {
	if Store != nil {
		return Store
	}
	return services.NewOSSImageStore()
}

// UploadImage accepts a multipart label image, stores it, and returns the
// URL to feed into an analysis request.
func UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Missing image file"))
		return
	}

	tmpName := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tmpName); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to buffer upload"))
		return
	}
	defer os.Remove(tmpName)

	url, err := imageStore().UploadImage(tmpName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to store image: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Image uploaded successfully", gin.H{
		"url":      url,
		"filename": file.Filename,
	}))
}

// GetOSSToken hands the client short-lived STS credentials for direct
// browser uploads.
func GetOSSToken(c *gin.Context) {
	token, err := services.GetOSSTSToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to get OSS token: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OSS token retrieved successfully", token))
}
