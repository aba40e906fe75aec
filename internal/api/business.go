package api

import (
	"context"
	"net/http"
	"strconv"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/models"
	"waba-gateway/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ConnectionChecker is the slice of the provider client used by the
// connection test.
type ConnectionChecker interface {
	CheckPhoneNumber(ctx context.Context, token, phoneNumberID string) (*whatsapp.PhoneNumberInfo, error)
}

type BusinessHandler struct {
	DB       *gorm.DB
	Provider ConnectionChecker
}

func NewBusinessHandler(db *gorm.DB, provider ConnectionChecker) *BusinessHandler {
	return &BusinessHandler{DB: db, Provider: provider}
}

func (h *BusinessHandler) ListBusinesses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.BusinessAccount{}).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var accounts []models.BusinessAccount
	err := h.DB.WithContext(c.Request.Context()).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&accounts).Error
	if err != nil {
		respondError(c, err)
		return
	}

	if accounts == nil {
		accounts = []models.BusinessAccount{}
	}

	c.JSON(http.StatusOK, gin.H{
		"businesses": accounts,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

// DeleteBusiness is the administrative removal of a business's gateway
// configuration. Messages, webhook records and tasks are kept for audit.
func (h *BusinessHandler) DeleteBusiness(c *gin.Context) {
	businessID := c.Param("businessId")

	res := h.DB.WithContext(c.Request.Context()).
		Where("business_id = ?", businessID).
		Delete(&models.BusinessAccount{})
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, apperrors.NewNotFound("business", businessID))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "business configuration deleted", "business_id": businessID})
}

// TestConnection verifies the stored credentials against the provider.
func (h *BusinessHandler) TestConnection(c *gin.Context) {
	businessID := c.Param("businessId")

	var account models.BusinessAccount
	err := h.DB.WithContext(c.Request.Context()).Where("business_id = ?", businessID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperrors.NewNotFound("business", businessID))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if account.Status != models.OnboardingFinished || account.AccessToken == "" {
		respondError(c, &apperrors.NotOnboardedError{BusinessID: businessID})
		return
	}

	info, err := h.Provider.CheckPhoneNumber(c.Request.Context(), account.AccessToken, account.PhoneNumberID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "connected", "phone_number": info})
}
