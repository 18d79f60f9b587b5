package billing

import (
	"errors"
	"net/http"

	"labelens-backend/config"
	"labelens-backend/internal/services"
	"labelens-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the provider's HMAC over the raw webhook body.
const SignatureHeader = "X-Payment-Signature"

// ListPackages returns the static credit package catalog.
func ListPackages(c *gin.Context) {
	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load catalog"))
		return
	}

	resp := PackageListResponse{Packages: make([]PackageResponse, 0, len(cfg.CreditPackages))}
	for _, p := range cfg.CreditPackages {
		resp.Packages = append(resp.Packages, PackageResponse{
			ID:              p.ID,
			Credits:         p.Credits,
			PriceMinorUnits: p.PriceMinorUnits,
			DisplayName:     p.DisplayName,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Credit packages retrieved", resp))
}

// PaymentWebhook receives provider deliveries. It reads the raw body before
// any parsing so the signature is verified against the exact bytes sent, and
// it answers quickly: the provider only needs an acknowledgement.
func PaymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Unreadable request body"))
		return
	}

	outcome, err := services.ApplyPaymentWebhook(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, services.ErrSignatureInvalid) {
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid signature"))
			return
		}
		// Storage-layer failure: do NOT acknowledge, the provider must
		// redeliver so the payment is not lost.
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to apply event"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("ok", gin.H{"outcome": string(outcome)}))
}
